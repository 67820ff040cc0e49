package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spboyer/dea/internal/cache"
	"github.com/spboyer/dea/internal/orchestration"
	"github.com/spboyer/dea/internal/projectconfig"
	"github.com/spboyer/dea/internal/webserver"
)

func newServeCommand() *cobra.Command {
	var (
		port      int
		noBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the paste-and-evaluate web interface",
		Long: `Start a local HTTP server with a form for pasting a DMU table copied from a
spreadsheet, and a JSON API for programmatic use.

The server binds to 127.0.0.1 only.

Endpoints:
  GET  /               Paste form
  POST /               Evaluate the form and render the report
  GET  /api/health     Liveness probe
  POST /api/evaluate   Evaluate a table (?format=json|csv|markdown|html|junit)

Solver, summary and cache settings come from .dea.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := projectconfig.Load(".")
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				if port < 1 || port > 65535 {
					return fmt.Errorf("--port out of range: %d", port)
				}
				cfg.Server.Port = port
			}

			srv, err := webserver.New(webserver.Config{
				Port:          cfg.Server.Port,
				MaxBodySize:   cfg.Server.MaxBodySize,
				NoBrowser:     noBrowser,
				Logger:        slog.Default(),
				Out:           cmd.OutOrStdout(),
				RunnerOptions: serveRunnerOptions(cfg),
			})
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", projectconfig.DefaultServerPort, "Port to listen on (default: server.port from .dea.yaml)")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Do not open a browser")

	return cmd
}

// serveRunnerOptions maps the project configuration onto the options every
// request starts from.
func serveRunnerOptions(cfg *projectconfig.ProjectConfig) []orchestration.RunnerOption {
	opts := []orchestration.RunnerOption{
		orchestration.WithWorkers(cfg.Solver.Workers),
		orchestration.WithTolerance(cfg.Solver.Tolerance),
		orchestration.WithDecimals(*cfg.Solver.Decimals),
		orchestration.WithTimeout(cfg.Solver.Timeout),
		orchestration.WithLogger(slog.Default()),
	}
	if *cfg.Cache.Enabled {
		opts = append(opts, orchestration.WithCache(cache.New(cfg.Resolve(cfg.Cache.Dir))))
	}
	if *cfg.Output.Summary {
		opts = append(opts, orchestration.WithSummary(cfg.Output.ConfidenceLevel, -1))
	}
	return opts
}
