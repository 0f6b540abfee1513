package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/landing-lab/landing-lab/internal/combos"
	"github.com/landing-lab/landing-lab/internal/patterns"
	"github.com/landing-lab/landing-lab/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the landing-lab HTTP server.

The server provides:
  - Assignment endpoint and client script at /vl.js
  - Beacon endpoint for recording events
  - Token-protected management API under /api
  - Prometheus metrics at /metrics

Example:
  llab serve --port 8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return opts.withServices(cmd, func(svc *services) error {
				if cmd.Flags().Changed("port") {
					svc.cfg.Server.Port = port
				}

				deps := server.Deps{
					Registry:    svc.registry,
					Assigner:    svc.assigner,
					Ledger:      svc.ledger,
					Analyzer:    svc.analyzer,
					RankOptions: rankOptions(svc.cfg),
					Logger:      svc.logger,
				}

				// The API still serves experiments without a catalogue.
				source, err := patterns.NewSource(svc.cfg.Patterns.Catalogue, svc.logger)
				switch {
				case errors.Is(err, patterns.ErrCatalogueMissing):
					svc.logger.Warn("pattern catalogue not found, /api/combinations disabled", "path", svc.cfg.Patterns.Catalogue)
				case err != nil:
					return err
				default:
					if svc.cfg.Server.WatchCatalogue {
						if err := source.Watch(ctx); err != nil {
							svc.logger.Warn("catalogue hot reload disabled", "error", err)
						}
					}
					deps.Ranker = combos.NewRanker(source, svc.logger)
				}

				srv := server.New(deps, svc.cfg.Server.Port, svc.cfg.Server.TokenFile)
				return srv.ListenAndServe(ctx, true)
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on (overrides config and LL_PORT)")

	return cmd
}
