package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// SlogHandler implements slog.Handler backed by the global zerolog logger.
// Needed because github.com/thejerf/sutureslog requires an *slog.Logger for
// the supervisor tree's event hook; this lets the orchestrator keep zerolog
// as the single source of truth for log output.
type SlogHandler struct {
	logger zerolog.Logger
	attrs  []slog.Attr
	groups []string
}

// NewSlogHandler wraps the current global zerolog logger.
func NewSlogHandler() *SlogHandler {
	return &SlogHandler{logger: Logger()}
}

func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return true
}

func (h *SlogHandler) Handle(_ context.Context, record slog.Record) error {
	var ev *zerolog.Event
	switch {
	case record.Level >= slog.LevelError:
		ev = h.logger.Error()
	case record.Level >= slog.LevelWarn:
		ev = h.logger.Warn()
	case record.Level >= slog.LevelDebug && record.Level < slog.LevelInfo:
		ev = h.logger.Debug()
	default:
		ev = h.logger.Info()
	}

	for _, a := range h.attrs {
		ev = ev.Interface(a.Key, a.Value.Any())
	}
	record.Attrs(func(a slog.Attr) bool {
		ev = ev.Interface(prefixed(h.groups, a.Key), a.Value.Any())
		return true
	})
	ev.Msg(record.Message)
	return nil
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

func prefixed(groups []string, key string) string {
	if len(groups) == 0 {
		return key
	}
	out := ""
	for _, g := range groups {
		out += g + "."
	}
	return out + key
}

// NewSlogLogger returns an *slog.Logger suitable for passing to
// sutureslog.Handler{Logger: ...}.
func NewSlogLogger() *slog.Logger {
	return slog.New(NewSlogHandler())
}
