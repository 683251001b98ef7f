package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters for catalog scrapes.
type Metrics struct {
	// Scrape metrics
	ScrapesTotal   atomic.Int64
	ScrapesFailed  atomic.Int64
	ScrapesNoMatch atomic.Int64

	// Cache metrics
	CacheHits   atomic.Int64
	CacheMisses atomic.Int64

	// Browser metrics
	ActiveSessions    atomic.Int32
	PagesOpened       atomic.Int64
	NavigationRetries atomic.Int64
	ClickFallbacks    atomic.Int64
	OverlaysDismissed atomic.Int64
	DiagnosticsSaved  atomic.Int64

	// HTTP fetch metrics
	HTTPRequests    atomic.Int64
	HTTPFailures    atomic.Int64
	BytesDownloaded atomic.Int64

	// Row metrics
	RowsParsed  atomic.Int64
	RowsDropped atomic.Int64

	// Storage metrics
	RecordsStored atomic.Int64
	StorageErrors atomic.Int64

	// API metrics
	APIRequests    atomic.Int64
	APIRateLimited atomic.Int64
	APIBusy        atomic.Int64

	// Proxy metrics
	ProxyRotations atomic.Int64
	ProxyErrors    atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

type metricLine struct {
	name  string
	help  string
	kind  string
	value int64
}

func (m *Metrics) lines() []metricLine {
	return []metricLine{
		{"partscout_scrapes_total", "Total catalog operations run", "counter", m.ScrapesTotal.Load()},
		{"partscout_scrapes_failed_total", "Catalog operations that failed", "counter", m.ScrapesFailed.Load()},
		{"partscout_scrapes_no_match_total", "Catalog operations with no matching entries", "counter", m.ScrapesNoMatch.Load()},
		{"partscout_cache_hits_total", "Result cache hits", "counter", m.CacheHits.Load()},
		{"partscout_cache_misses_total", "Result cache misses", "counter", m.CacheMisses.Load()},
		{"partscout_active_sessions", "Browser sessions currently open", "gauge", int64(m.ActiveSessions.Load())},
		{"partscout_pages_opened_total", "Browser pages opened", "counter", m.PagesOpened.Load()},
		{"partscout_navigation_retries_total", "Navigation attempts that were retried", "counter", m.NavigationRetries.Load()},
		{"partscout_click_fallbacks_total", "Clicks that needed a fallback strategy", "counter", m.ClickFallbacks.Load()},
		{"partscout_overlays_dismissed_total", "Consent or modal overlays dismissed", "counter", m.OverlaysDismissed.Load()},
		{"partscout_diagnostics_saved_total", "Failure screenshots written", "counter", m.DiagnosticsSaved.Load()},
		{"partscout_http_requests_total", "Plain HTTP requests made", "counter", m.HTTPRequests.Load()},
		{"partscout_http_failures_total", "Plain HTTP requests that failed", "counter", m.HTTPFailures.Load()},
		{"partscout_bytes_downloaded_total", "Bytes downloaded by the HTTP fetcher", "counter", m.BytesDownloaded.Load()},
		{"partscout_rows_parsed_total", "Part rows parsed from catalog pages", "counter", m.RowsParsed.Load()},
		{"partscout_rows_dropped_total", "Part rows dropped by filters", "counter", m.RowsDropped.Load()},
		{"partscout_records_stored_total", "Result records archived", "counter", m.RecordsStored.Load()},
		{"partscout_storage_errors_total", "Archive writes that failed", "counter", m.StorageErrors.Load()},
		{"partscout_api_requests_total", "API requests received", "counter", m.APIRequests.Load()},
		{"partscout_api_rate_limited_total", "API requests rejected by the rate limiter", "counter", m.APIRateLimited.Load()},
		{"partscout_api_busy_total", "API requests rejected because every session was busy", "counter", m.APIBusy.Load()},
		{"partscout_proxy_rotations_total", "Total proxy rotations", "counter", m.ProxyRotations.Load()},
		{"partscout_proxy_errors_total", "Total proxy errors", "counter", m.ProxyErrors.Load()},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, metric := range m.lines() {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", metric.name, metric.kind)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts the metrics HTTP server in the background. The server
// stops when ctx is cancelled.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return srv
}

// Snapshot returns all metrics keyed by name without the partscout_ prefix.
func (m *Metrics) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	for _, l := range m.lines() {
		out[l.name[len("partscout_"):]] = l.value
	}
	return out
}

// Names lists the exported metric names in sorted order.
func (m *Metrics) Names() []string {
	lines := m.lines()
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		names = append(names, l.name)
	}
	sort.Strings(names)
	return names
}
