// Package cache keeps scrape results in a local SQLite table so repeated
// lookups for the same VIN skip the browser.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/observability"
	"github.com/IshaanNene/partscout/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	site       TEXT    NOT NULL,
	operation  TEXT    NOT NULL,
	vin        TEXT    NOT NULL,
	query      TEXT    NOT NULL,
	payload    BLOB    NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (site, operation, vin, query)
);
CREATE INDEX IF NOT EXISTS results_created_at ON results (created_at);
`

// Cache is a TTL-bounded result cache.
type Cache struct {
	db      *sql.DB
	ttl     time.Duration
	now     func() time.Time
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics counts hits and misses.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Open creates the database file and table if needed.
func Open(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger, opts ...Option) (*Cache, error) {
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	// a single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure cache: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	c := &Cache{
		db:     db,
		ttl:    cfg.TTL,
		now:    time.Now,
		logger: logger.With("component", "cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger.Debug("cache opened", "path", cfg.Path, "ttl", cfg.TTL)
	return c, nil
}

// Get returns the cached payload for q, or ErrCacheMiss when there is none
// or it is older than the TTL.
func (c *Cache) Get(ctx context.Context, q *types.Query) (json.RawMessage, error) {
	var (
		payload   []byte
		createdAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, created_at FROM results WHERE site = ? AND operation = ? AND vin = ? AND query = ?`,
		q.Site, q.Operation, q.VIN, q.Term(),
	).Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		c.miss()
		return nil, types.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	age := c.now().Sub(time.Unix(0, createdAt))
	if c.ttl > 0 && age > c.ttl {
		c.logger.Debug("cache entry expired", "query", q.String(), "age", age)
		c.miss()
		return nil, types.ErrCacheMiss
	}

	if c.metrics != nil {
		c.metrics.CacheHits.Add(1)
	}
	return json.RawMessage(payload), nil
}

func (c *Cache) miss() {
	if c.metrics != nil {
		c.metrics.CacheMisses.Add(1)
	}
}

// Put stores or replaces the payload for q.
func (c *Cache) Put(ctx context.Context, q *types.Query, payload json.RawMessage) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO results (site, operation, vin, query, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (site, operation, vin, query)
		 DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`,
		q.Site, q.Operation, q.VIN, q.Term(), []byte(payload), c.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Purge deletes expired entries, or every entry when all is set. It returns
// the number of rows removed.
func (c *Cache) Purge(ctx context.Context, all bool) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if all {
		res, err = c.db.ExecContext(ctx, `DELETE FROM results`)
	} else {
		cutoff := c.now().Add(-c.ttl).UnixNano()
		res, err = c.db.ExecContext(ctx, `DELETE FROM results WHERE created_at < ?`, cutoff)
	}
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	n, _ := res.RowsAffected()
	c.logger.Info("cache purged", "removed", n, "all", all)
	return n, nil
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}
