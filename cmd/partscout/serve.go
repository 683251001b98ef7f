package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/partscout/internal/api"
	"github.com/IshaanNene/partscout/internal/catalog"
	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/fetcher"
	"github.com/IshaanNene/partscout/internal/observability"
)

var serveAddr string

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve catalog lookups over HTTP",
		Long: `Start the HTTP service. It keeps the routes of the older scraper
services (/find-part, /get-car-details/:vin, /superetka/scrape,
/superetka/getVehicleInfo) and adds /api/v1/scrape for any site.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if serveAddr != "" {
				cfg.Server.Addr = serveAddr
			}
			ctx := cmd.Context()

			metrics := observability.NewMetrics(logger)
			if cfg.Metrics.Enabled {
				metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path)
			}

			proxies := newProxies(cfg, logger)
			checkProxies(ctx, cfg.Proxy, proxies)

			runner, cleanup, err := newRunnerWithMetrics(ctx, cfg, catalog.Default(logger), logger, metrics, proxies)
			if err != nil {
				return err
			}
			defer cleanup()

			srv := api.NewServer(cfg, runner, logger, api.WithMetrics(metrics))
			if err := srv.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			stats := runner.Stats().Snapshot()
			logger.Info("server stopped",
				"runs", stats["runs"],
				"failures", stats["failures"],
				"cache_hits", stats["cache_hits"],
				"uptime", stats["uptime"],
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// checkProxies health-checks pm against proxy.check_url once, then keeps
// checking in the background every proxy.check_interval.
func checkProxies(ctx context.Context, cfg config.ProxyConfig, pm *fetcher.ProxyManager) {
	if pm == nil || cfg.CheckURL == "" {
		return
	}
	pm.HealthCheck(ctx, cfg.CheckURL)
	if cfg.CheckInterval > 0 {
		go pm.Monitor(ctx, cfg.CheckURL, cfg.CheckInterval)
	}
}
