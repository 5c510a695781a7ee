package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/localdev/hostd/internal/config"
	"github.com/localdev/hostd/internal/logging"
	"github.com/localdev/hostd/internal/orchestrator"
	"github.com/localdev/hostd/internal/router"
	"github.com/localdev/hostd/internal/sourcemap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator and loopback storage surface",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML configuration file")
	serveCmd.Flags().String("host", "127.0.0.1", "Bind host for the loopback HTTP surface")
	serveCmd.Flags().Int("port", 0, "Bind port for the loopback HTTP surface (0 lets the OS assign one)")
	serveCmd.Flags().String("persist-root", "", "Root directory for disk-backed storage simulators (defaults to a temp dir)")
	serveCmd.Flags().String("max-compatibility-date", "", "Maximum compatibility date the embedded runtime supports")
	serveCmd.Flags().String("runtime-binary", "", "Path to the child runtime binary to supervise")
	serveCmd.Flags().StringArray("runtime-arg", nil, "Extra argument to pass to the child runtime binary (repeatable)")
	serveCmd.Flags().StringSlice("cors-origin", []string{"*"}, "Allowed CORS origins for the loopback surface")
	serveCmd.Flags().Int("rate-limit-requests", 1000, "Loopback surface rate limit, requests per minute per client")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	host, _ := flags.GetString("host")
	port, _ := flags.GetInt("port")
	persistRoot, _ := flags.GetString("persist-root")
	maxCompatDate, _ := flags.GetString("max-compatibility-date")
	runtimeBinary, _ := flags.GetString("runtime-binary")
	runtimeArgs, _ := flags.GetStringArray("runtime-arg")
	corsOrigins, _ := flags.GetStringSlice("cors-origin")
	rateLimitRequests, _ := flags.GetInt("rate-limit-requests")

	if persistRoot == "" {
		dir, err := os.MkdirTemp("", "hostd-persist-")
		if err != nil {
			return fmt.Errorf("hostd: creating default persist root: %w", err)
		}
		persistRoot = dir
	}
	if err := os.MkdirAll(persistRoot, 0o755); err != nil {
		return fmt.Errorf("hostd: preparing persist root: %w", err)
	}

	opts, err := config.Load(configPath, config.Options{Host: host, Port: port})
	if err != nil {
		return fmt.Errorf("hostd: loading configuration: %w", err)
	}

	res, err := buildGateway(*opts, persistRoot)
	if err != nil {
		return err
	}
	defer res.Close()

	routerCfg := router.DefaultConfig()
	routerCfg.CORSAllowedOrigins = corsOrigins
	routerCfg.RateLimitRequests = rateLimitRequests

	sourceMaps := sourcemap.NewRegistry()

	surface := chi.NewRouter()
	surface.Mount("/", router.New(res.gw, routerCfg))
	surface.Mount("/__source-maps", sourcemap.Handler(sourceMaps))

	orch := orchestrator.New(orchestrator.Params{
		Binary:               orchestrator.RuntimeBinary{Path: runtimeBinary, Args: runtimeArgs},
		PersistRoot:          persistRoot,
		MaxCompatibilityDate: maxCompatDate,
		LoopbackAddr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		LoopbackHandler:      http.Handler(surface),
		TreeConfig:           orchestrator.DefaultTreeConfig(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ports, err := orch.Start(ctx, *opts)
	if err != nil {
		return fmt.Errorf("hostd: starting orchestrator: %w", err)
	}
	logging.Info().Interface("ports", ports).Str("persist_root", persistRoot).Msg("hostd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	cancel()

	if err := orch.Dispose(); err != nil {
		logging.Error().Err(err).Msg("error during orchestrator shutdown")
	}
	logging.Info().Msg("hostd stopped")
	return nil
}
