// Package engine runs catalog queries end to end: validation, cache,
// browser lifecycle, archiving and counters.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/partscout/internal/browser"
	"github.com/IshaanNene/partscout/internal/catalog"
	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/fetcher"
	"github.com/IshaanNene/partscout/internal/observability"
	"github.com/IshaanNene/partscout/internal/types"
)

// Stats tracks runner statistics.
type Stats struct {
	Runs      atomic.Int64
	Failures  atomic.Int64
	CacheHits atomic.Int64
	Launches  atomic.Int64
	Active    atomic.Int32
	StartTime time.Time
	mu        sync.RWMutex
	siteStats map[string]*SiteStats
}

// SiteStats tracks per-site statistics.
type SiteStats struct {
	Runs     int64
	Failures int64
	LastRun  time.Time
	LastErr  string
}

func newStats() *Stats {
	return &Stats{StartTime: time.Now(), siteStats: make(map[string]*SiteStats)}
}

func (s *Stats) record(site string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.siteStats[site]
	if !ok {
		ss = &SiteStats{}
		s.siteStats[site] = ss
	}
	ss.Runs++
	ss.LastRun = time.Now()
	if err != nil {
		ss.Failures++
		ss.LastErr = err.Error()
	}
}

// Site returns a copy of the stats for one site.
func (s *Stats) Site(site string) (SiteStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ss, ok := s.siteStats[site]
	if !ok {
		return SiteStats{}, false
	}
	return *ss, true
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sites := make(map[string]int64, len(s.siteStats))
	for name, ss := range s.siteStats {
		sites[name] = ss.Runs
	}
	return map[string]any{
		"runs":       s.Runs.Load(),
		"failures":   s.Failures.Load(),
		"cache_hits": s.CacheHits.Load(),
		"launches":   s.Launches.Load(),
		"active":     s.Active.Load(),
		"sites":      sites,
		"uptime":     time.Since(s.StartTime).String(),
	}
}

// Cache is the result cache the runner consults.
type Cache interface {
	Get(ctx context.Context, q *types.Query) (json.RawMessage, error)
	Put(ctx context.Context, q *types.Query, payload json.RawMessage) error
}

// Storage archives finished runs.
type Storage interface {
	Store(ctx context.Context, records []*types.Record) error
}

// Browser is a launched browser the runner can open pages in.
type Browser interface {
	catalog.PageOpener
	Close() error
}

// Launcher starts a browser on first use.
type Launcher func(ctx context.Context) (Browser, error)

// ChromiumLauncher launches Chromium through rod with the configured proxy
// rotation. A nil pm is built from the proxy config when proxies are on.
func ChromiumLauncher(cfg *config.Config, logger *slog.Logger, m *observability.Metrics, pm *fetcher.ProxyManager) Launcher {
	opts := []browser.Option{browser.WithMetrics(m)}
	if pm == nil && cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
		pm = fetcher.NewProxyManager(&cfg.Proxy, logger)
	}
	if pm != nil {
		opts = append(opts, browser.WithProxy(pm))
	}
	return func(ctx context.Context) (Browser, error) {
		s, err := browser.Launch(ctx, cfg, logger, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Result is one finished run.
type Result struct {
	Query    *types.Query
	Kind     types.ResultKind
	Payload  json.RawMessage
	Cached   bool
	Duration time.Duration
	RecordID string
}

// JSON returns the payload, or the empty value of the result kind when
// there is none.
func (r *Result) JSON() []byte {
	if r == nil || len(r.Payload) == 0 {
		if r == nil {
			return types.KindObject.EmptyJSON()
		}
		return r.Kind.EmptyJSON()
	}
	return r.Payload
}

// RunOptions tweak a single run.
type RunOptions struct {
	// NoCache skips both the cache lookup and the write-back.
	NoCache bool
}

// Runner executes queries against the catalog registry.
type Runner struct {
	cfg      *config.Config
	base     *slog.Logger
	logger   *slog.Logger
	registry *catalog.Registry
	metrics  *observability.Metrics
	cache    Cache
	storage  Storage
	fetcher  fetcher.Fetcher
	proxies  *fetcher.ProxyManager
	launch   Launcher

	stats *Stats
	mu    sync.RWMutex
}

// New creates a Runner. Browsers are launched through ChromiumLauncher
// unless SetLauncher replaces it.
func New(cfg *config.Config, registry *catalog.Registry, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		base:     logger,
		logger:   logger.With("component", "runner"),
		registry: registry,
		stats:    newStats(),
	}
}

// SetMetrics sets the counters updated by runs and launched browsers.
func (r *Runner) SetMetrics(m *observability.Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// SetCache sets the result cache.
func (r *Runner) SetCache(c Cache) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = c
}

// SetStorage sets the archive.
func (r *Runner) SetStorage(s Storage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage = s
}

// SetFetcher sets the HTTP fetcher used by server-rendered catalogs.
func (r *Runner) SetFetcher(f fetcher.Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetcher = f
}

// SetProxies shares pm with browsers launched by the default launcher.
func (r *Runner) SetProxies(pm *fetcher.ProxyManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies = pm
}

// SetLauncher replaces the browser launcher.
func (r *Runner) SetLauncher(l Launcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launch = l
}

// Stats returns the runner statistics.
func (r *Runner) Stats() *Stats {
	return r.stats
}

// Registry returns the catalog registry.
func (r *Runner) Registry() *catalog.Registry {
	return r.registry
}

// Kind reports the result kind of an operation, defaulting to an object for
// unknown ones.
func (r *Runner) Kind(site, operation string) types.ResultKind {
	if _, op, err := r.registry.Lookup(site, operation); err == nil {
		return op.Kind
	}
	return types.KindObject
}

// Run executes q. The returned Result is non-nil whenever the operation
// exists, so callers can always print Result.JSON.
func (r *Runner) Run(ctx context.Context, q *types.Query, opts RunOptions) (*Result, error) {
	cat, op, err := r.registry.Lookup(q.Site, q.Operation)
	if err != nil {
		return nil, err
	}
	res := &Result{Query: q, Kind: op.Kind}
	if err := op.Check(q); err != nil {
		return res, err
	}
	if cat.Credentials {
		if _, err := r.cfg.RequireCredentials(cat.Site); err != nil {
			return res, err
		}
	}

	r.mu.RLock()
	cache, storage, fetch, launch, metrics, proxies := r.cache, r.storage, r.fetcher, r.launch, r.metrics, r.proxies
	r.mu.RUnlock()
	if launch == nil {
		launch = ChromiumLauncher(r.cfg, r.base, metrics, proxies)
	}

	log := r.logger.With("site", q.Site, "operation", q.Operation)
	if q.VIN != "" {
		log = log.With("vin", q.VIN)
	}

	r.stats.Runs.Add(1)
	r.stats.Active.Add(1)
	defer r.stats.Active.Add(-1)
	if metrics != nil {
		metrics.ScrapesTotal.Add(1)
	}
	start := time.Now()

	if cache != nil && !opts.NoCache {
		payload, err := cache.Get(ctx, q)
		switch {
		case err == nil:
			r.stats.CacheHits.Add(1)
			res.Payload, res.Cached, res.Duration = payload, true, time.Since(start)
			log.Info("served from cache")
			r.stats.record(q.Site, nil)
			return res, nil
		case !errors.Is(err, types.ErrCacheMiss):
			log.Warn("cache read failed", "error", err)
		}
	}

	lb := &lazyBrowser{launch: launch, stats: r.stats, logger: log}
	defer lb.Close()
	env := &catalog.Env{
		Config:  r.cfg,
		Browser: lb,
		Fetcher: fetch,
		Metrics: metrics,
		Logger:  r.base,
	}

	log.Info("run started", "args", q.Args)
	value, err := op.Run(ctx, env, q)
	res.Duration = time.Since(start)
	if err != nil {
		err = r.fail(ctx, q, err, metrics)
		log.Error("run failed", "error", err, "duration", res.Duration)
		return res, err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		err = r.fail(ctx, q, fmt.Errorf("encode result: %w", err), metrics)
		return res, err
	}
	res.Payload = payload
	r.stats.record(q.Site, nil)
	log.Info("run finished", "duration", res.Duration, "bytes", len(payload))

	if cache != nil && !opts.NoCache {
		if err := cache.Put(ctx, q, payload); err != nil {
			log.Warn("cache write failed", "error", err)
		}
	}
	if storage != nil {
		rec := &types.Record{
			ID:        uuid.NewString(),
			Site:      q.Site,
			Operation: q.Operation,
			VIN:       q.VIN,
			Query:     q.Term(),
			Result:    payload,
			ScrapedAt: start.UTC(),
			Duration:  res.Duration,
		}
		if err := storage.Store(ctx, []*types.Record{rec}); err != nil {
			log.Warn("archive failed", "error", err)
		} else {
			res.RecordID = rec.ID
		}
	}
	return res, nil
}

// fail counts a failed run and wraps err with the site and operation. A
// flow cut off by the caller's deadline is reported as a timeout.
func (r *Runner) fail(ctx context.Context, q *types.Query, err error, metrics *observability.Metrics) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", types.ErrTimeout, err)
	}
	r.stats.Failures.Add(1)
	r.stats.record(q.Site, err)
	if metrics != nil {
		if errors.Is(err, types.ErrNoMatch) || errors.Is(err, types.ErrNotFound) {
			metrics.ScrapesNoMatch.Add(1)
		} else {
			metrics.ScrapesFailed.Add(1)
		}
	}
	return &types.ScrapeError{Site: q.Site, Operation: q.Operation, Err: err}
}

// lazyBrowser launches on the first NewPage so HTTP-only flows never start
// Chromium.
type lazyBrowser struct {
	launch Launcher
	stats  *Stats
	logger *slog.Logger

	mu      sync.Mutex
	browser Browser
}

func (b *lazyBrowser) NewPage(ctx context.Context) (*browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		if b.launch == nil {
			return nil, fmt.Errorf("no browser launcher configured")
		}
		br, err := b.launch(ctx)
		if err != nil {
			return nil, err
		}
		b.stats.Launches.Add(1)
		b.browser = br
	}
	return b.browser.NewPage(ctx)
}

func (b *lazyBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	if err != nil {
		b.logger.Warn("browser close failed", "error", err)
	}
	return err
}
