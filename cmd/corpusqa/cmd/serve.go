package cmd

import (
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/corpusqa/corpusqa/internal/api"
	"github.com/corpusqa/corpusqa/internal/config"
	"github.com/corpusqa/corpusqa/pkg/version"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP query API",
		Long: `Start the HTTP API server.

Endpoints:
  POST /api/v1/query    Answer a question over the corpus
  POST /api/v1/search   Retrieve relevant chunks without generation
  GET  /api/v1/metrics  Query telemetry snapshot
  GET  /health          Liveness probe`,
		Example: `  # Serve with the default config
  corpusqa serve

  # Override the listen port
  corpusqa serve --port 9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, port int) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Peek at config early so logging is up before wiring starts.
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cleanup, err := setupLogging(cfg, true)
	if err != nil {
		return err
	}
	defer cleanup()

	slog.Info("corpusqa_starting",
		slog.String("version", version.Version),
		slog.String("backend", cfg.Storage.Backend))

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	var opts []api.ServerOption
	if a.metrics != nil {
		opts = append(opts, api.WithMetricsEndpoint(a.metrics))
	}

	server, err := api.NewServer(a.engine, api.Config{
		Host:           a.cfg.Server.Host,
		Port:           port,
		RequestTimeout: config.Duration(a.cfg.Server.RequestTimeout, 90*time.Second),
	}, opts...)
	if err != nil {
		return err
	}

	err = server.Run(ctx)
	slog.Info("corpusqa_stopped")
	return err
}
