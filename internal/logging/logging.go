// Package logging provides the process-wide zerolog logger used across the
// host process, plus an slog.Handler adapter for libraries (sutureslog) that
// require the standard library's slog.Logger interface.
//
// Quick start:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("socket", "main").Msg("listening")
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the global logger's level and output format.
type Config struct {
	// Level is one of: debug, info, warn, error. Default: info.
	Level string
	// Format is one of: json, console. Default: json.
	Format string
	// Caller includes the file:line of the log call site when true.
	Caller bool
}

var (
	mu     sync.RWMutex
	global zerolog.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Init configures the global logger. Safe to call again on reload to change
// verbosity without restarting the process.
func Init(cfg Config) {
	level := parseLevel(cfg.Level)

	var out io.Writer = os.Stderr
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}

	mu.Lock()
	global = ctx.Logger()
	mu.Unlock()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns the current global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func Debug() *zerolog.Event { return Logger().Debug() }
func Info() *zerolog.Event  { return Logger().Info() }
func Warn() *zerolog.Event  { return Logger().Warn() }
func Error() *zerolog.Event { return Logger().Error() }

// ChildLine routes a single line of the child runtime's stdout/stderr into
// the host logger at the given severity, matching §4.1's "stdout/stderr
// piped line-by-line to the host logger with severity coloring".
func ChildLine(stream string, line string) {
	ev := Logger().Info()
	if stream == "stderr" {
		ev = Logger().Warn()
	}
	ev.Str("source", "runtime").Str("stream", stream).Msg(line)
}
