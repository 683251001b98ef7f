package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/partscout/internal/cache"
	"github.com/IshaanNene/partscout/internal/catalog"
	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/engine"
	"github.com/IshaanNene/partscout/internal/fetcher"
	"github.com/IshaanNene/partscout/internal/observability"
	"github.com/IshaanNene/partscout/internal/storage"
	"github.com/IshaanNene/partscout/internal/types"
)

// siteCmd creates "<site>" with one subcommand per operation.
func siteCmd(registry *catalog.Registry, c *catalog.Catalog, stdout io.Writer) *cobra.Command {
	var usage []string
	for _, op := range c.Operations() {
		usage = append(usage, "  partscout "+op.Usage)
	}
	cmd := &cobra.Command{
		Use:   c.Site + " <operation> <args...>",
		Short: fmt.Sprintf("Query the %s catalog", c.Site),
		Long:  "Operations:\n" + strings.Join(usage, "\n"),
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Help()
				return fmt.Errorf("%w: %s needs an operation", types.ErrInvalidInput, c.Site)
			}
			_, _, err := registry.Lookup(c.Site, args[0])
			return err
		},
	}
	for _, op := range c.Operations() {
		cmd.AddCommand(operationCmd(registry, c.Site, op, stdout))
	}
	return cmd
}

func operationCmd(registry *catalog.Registry, site string, op *catalog.Operation, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   op.Name + " <args...>",
		Short: op.Usage,
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildQuery(site, op, args)
			if err != nil {
				printEmpty(stdout, op.Kind)
				return err
			}
			cfg, logger, err := setup()
			if err != nil {
				printEmpty(stdout, op.Kind)
				return err
			}
			return runQuery(cmd.Context(), cfg, registry, logger, q, op.Kind, stdout)
		},
	}
}

// buildQuery maps positional arguments to a query. Operations keyed by VIN
// take it first; the remaining words are passed through as typed, so a quoted
// RealOEM group name stays one argument.
func buildQuery(site string, op *catalog.Operation, args []string) (*types.Query, error) {
	var vin string
	if op.NeedVIN && len(args) > 0 {
		vin, args = args[0], args[1:]
	}
	q, err := types.NewQuery(site, op.Name, vin, args...)
	if err != nil {
		return nil, err
	}
	if err := op.Check(q); err != nil {
		return nil, err
	}
	return q, nil
}

// printEmpty writes the empty value of kind, so stdout always holds one JSON
// document even when the query never ran.
func printEmpty(w io.Writer, kind types.ResultKind) {
	fmt.Fprintln(w, string(kind.EmptyJSON()))
}

// runQuery runs q once and prints its JSON result on stdout. A failed run
// still prints the empty value of the operation's result kind.
func runQuery(ctx context.Context, cfg *config.Config, registry *catalog.Registry, logger *slog.Logger, q *types.Query, kind types.ResultKind, stdout io.Writer) error {
	runner, cleanup, err := newRunner(ctx, cfg, registry, logger)
	if err != nil {
		printEmpty(stdout, kind)
		return err
	}
	defer cleanup()

	res, err := runner.Run(ctx, q, engine.RunOptions{NoCache: noCache})
	if res != nil {
		fmt.Fprintln(stdout, string(res.JSON()))
	} else {
		printEmpty(stdout, kind)
	}
	if err != nil {
		logger.Error("scrape failed", "query", q.String(), "error", err, "exit_code", types.ExitCode(err))
		return err
	}
	logger.Info("scrape finished",
		"query", q.String(),
		"cached", res.Cached,
		"duration", res.Duration,
		"record_id", res.RecordID,
	)
	return nil
}

// newRunner wires the runner with its cache, archive storage, HTTP fetcher
// and metrics. The returned cleanup closes all of them.
func newRunner(ctx context.Context, cfg *config.Config, registry *catalog.Registry, logger *slog.Logger) (*engine.Runner, func(), error) {
	return newRunnerWithMetrics(ctx, cfg, registry, logger, observability.NewMetrics(logger), newProxies(cfg, logger))
}

// newProxies returns the proxy rotation shared by the HTTP fetcher and the
// browser, or nil when proxies are off.
func newProxies(cfg *config.Config, logger *slog.Logger) *fetcher.ProxyManager {
	if !cfg.Proxy.Enabled || len(cfg.Proxy.URLs) == 0 {
		return nil
	}
	return fetcher.NewProxyManager(&cfg.Proxy, logger)
}

func newRunnerWithMetrics(ctx context.Context, cfg *config.Config, registry *catalog.Registry, logger *slog.Logger, m *observability.Metrics, proxies *fetcher.ProxyManager) (*engine.Runner, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("close failed", "error", err)
			}
		}
	}

	runner := engine.New(cfg, registry, logger)
	runner.SetMetrics(m)
	runner.SetProxies(proxies)

	if cfg.Cache.Enabled {
		c, err := cache.Open(ctx, cfg.Cache, logger, cache.WithMetrics(m))
		if err != nil {
			logger.Warn("result cache unavailable, continuing without it", "path", cfg.Cache.Path, "error", err)
		} else {
			runner.SetCache(c)
			closers = append(closers, c.Close)
		}
	}

	store, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, store.Close)
	if store.Len() > 0 {
		runner.SetStorage(store.WithMetrics(m))
	}

	fopts := []fetcher.HTTPOption{fetcher.WithMetrics(m)}
	if proxies != nil {
		fopts = append(fopts, fetcher.WithProxyManager(proxies))
	}
	f, err := fetcher.NewHTTPFetcher(cfg, logger, fopts...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create fetcher: %w", err)
	}
	closers = append(closers, f.Close)
	runner.SetFetcher(f)

	return runner, cleanup, nil
}
