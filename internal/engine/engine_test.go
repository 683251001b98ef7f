package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IshaanNene/partscout/internal/browser"
	"github.com/IshaanNene/partscout/internal/catalog"
	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/observability"
	"github.com/IshaanNene/partscout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const testVIN = "WBA3A5C55CF256651"

type memCache struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
	puts int
}

func newMemCache() *memCache { return &memCache{data: make(map[string]json.RawMessage)} }

func (c *memCache) Get(_ context.Context, q *types.Query) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.data[q.Key()]
	if !ok {
		return nil, types.ErrCacheMiss
	}
	return p, nil
}

func (c *memCache) Put(_ context.Context, q *types.Query, payload json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[q.Key()] = payload
	c.puts++
	return nil
}

type memStorage struct {
	mu      sync.Mutex
	records []*types.Record
}

func (s *memStorage) Store(_ context.Context, recs []*types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, recs...)
	return nil
}

// testRunner builds a runner over a "fake" site whose operations do not
// touch a real browser.
func testRunner(t *testing.T, calls *atomic.Int32) (*Runner, *config.Config) {
	t.Helper()
	reg := catalog.NewRegistry(testLogger)
	err := reg.Register(catalog.NewCatalog("fake", false,
		&catalog.Operation{
			Name: "parts", Kind: types.KindList, NeedVIN: true, MinArgs: 1,
			Run: func(ctx context.Context, env *catalog.Env, q *types.Query) (any, error) {
				calls.Add(1)
				return []string{"64 52 9 216 467", q.Term()}, nil
			},
		},
		&catalog.Operation{
			Name: "missing", Kind: types.KindScalar, NeedVIN: true,
			Run: func(ctx context.Context, env *catalog.Env, q *types.Query) (any, error) {
				calls.Add(1)
				return nil, types.ErrNotFound
			},
		},
		&catalog.Operation{
			Name: "page", Kind: types.KindObject, NeedVIN: true,
			Run: func(ctx context.Context, env *catalog.Env, q *types.Query) (any, error) {
				calls.Add(1)
				if _, err := env.Browser.NewPage(ctx); err != nil {
					return nil, err
				}
				return map[string]string{}, nil
			},
		},
		&catalog.Operation{
			Name: "slow", Kind: types.KindObject, NeedVIN: true,
			Run: func(ctx context.Context, env *catalog.Env, q *types.Query) (any, error) {
				calls.Add(1)
				<-ctx.Done()
				return nil, errors.New("page closed")
			},
		},
	))
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(catalog.NewCatalog("locked", true, &catalog.Operation{
		Name: "vehicle", Kind: types.KindObject, NeedVIN: true,
		Run: func(ctx context.Context, env *catalog.Env, q *types.Query) (any, error) {
			calls.Add(1)
			return map[string]string{"model": "x"}, nil
		},
	})); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	r := New(cfg, reg, testLogger)
	r.SetLauncher(func(ctx context.Context) (Browser, error) {
		return nil, errors.New("browser disabled in tests")
	})
	return r, cfg
}

func mustQuery(t *testing.T, site, op, vin string, args ...string) *types.Query {
	t.Helper()
	q, err := types.NewQuery(site, op, vin, args...)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func TestRunCachesAndArchives(t *testing.T) {
	var calls atomic.Int32
	r, _ := testRunner(t, &calls)
	cache, store := newMemCache(), &memStorage{}
	m := observability.NewMetrics(testLogger)
	r.SetCache(cache)
	r.SetStorage(store)
	r.SetMetrics(m)

	q := mustQuery(t, "fake", "parts", testVIN, "Expansion", "Valve")
	res, err := r.Run(context.Background(), q, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := string(res.JSON()), `["64 52 9 216 467","expansion valve"]`; got != want {
		t.Errorf("payload = %s, want %s", got, want)
	}
	if res.Cached {
		t.Error("first run should not be cached")
	}
	if len(store.records) != 1 || store.records[0].ID != res.RecordID || store.records[0].Query != "expansion valve" {
		t.Errorf("archived records = %+v", store.records)
	}

	res, err = r.Run(context.Background(), q, RunOptions{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !res.Cached || calls.Load() != 1 {
		t.Errorf("second run cached=%v calls=%d, want cached and 1 call", res.Cached, calls.Load())
	}

	if _, err := r.Run(context.Background(), q, RunOptions{NoCache: true}); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("NoCache should bypass the cache, calls = %d", calls.Load())
	}
	if cache.puts != 1 {
		t.Errorf("NoCache should not write back, puts = %d", cache.puts)
	}
	if m.ScrapesTotal.Load() != 3 {
		t.Errorf("ScrapesTotal = %d, want 3", m.ScrapesTotal.Load())
	}
	if r.Stats().CacheHits.Load() != 1 {
		t.Errorf("CacheHits = %d", r.Stats().CacheHits.Load())
	}
}

func TestRunFailure(t *testing.T) {
	var calls atomic.Int32
	r, _ := testRunner(t, &calls)
	m := observability.NewMetrics(testLogger)
	r.SetMetrics(m)
	cache := newMemCache()
	r.SetCache(cache)

	res, err := r.Run(context.Background(), mustQuery(t, "fake", "missing", testVIN), RunOptions{})
	var se *types.ScrapeError
	if !errors.As(err, &se) || se.Site != "fake" || se.Operation != "missing" {
		t.Fatalf("err = %v, want ScrapeError", err)
	}
	if types.ExitCode(err) != types.ExitNoMatch {
		t.Errorf("exit code = %d", types.ExitCode(err))
	}
	if string(res.JSON()) != "null" {
		t.Errorf("failed scalar should print null, got %s", res.JSON())
	}
	if m.ScrapesNoMatch.Load() != 1 || m.ScrapesFailed.Load() != 0 {
		t.Errorf("no-match counters = %d/%d", m.ScrapesNoMatch.Load(), m.ScrapesFailed.Load())
	}
	if cache.puts != 0 {
		t.Error("failures must not be cached")
	}
	ss, ok := r.Stats().Site("fake")
	if !ok || ss.Failures != 1 || ss.LastErr == "" {
		t.Errorf("site stats = %+v", ss)
	}
}

func TestRunValidation(t *testing.T) {
	var calls atomic.Int32
	r, cfg := testRunner(t, &calls)

	tests := []struct {
		name string
		q    *types.Query
		want error
	}{
		{"unknown site", mustQuery(t, "nope", "parts", testVIN), types.ErrUnsupportedOperation},
		{"unknown op", mustQuery(t, "fake", "nope", testVIN), types.ErrUnsupportedOperation},
		{"missing args", mustQuery(t, "fake", "parts", testVIN), types.ErrInvalidInput},
		{"missing vin", mustQuery(t, "fake", "parts", "", "compressor"), types.ErrInvalidInput},
		{"credentials", mustQuery(t, "locked", "vehicle", testVIN), types.ErrMissingCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Run(context.Background(), tt.q, RunOptions{})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if calls.Load() != 0 {
		t.Errorf("handlers ran %d times on invalid input", calls.Load())
	}

	cfg.Catalogs["locked"] = config.CatalogConfig{Username: "u", Password: "p"}
	if _, err := r.Run(context.Background(), mustQuery(t, "locked", "vehicle", testVIN), RunOptions{}); err != nil {
		t.Errorf("with credentials: %v", err)
	}
}

func TestRunLaunchesLazily(t *testing.T) {
	var calls atomic.Int32
	r, _ := testRunner(t, &calls)

	var launches atomic.Int32
	r.SetLauncher(func(ctx context.Context) (Browser, error) {
		launches.Add(1)
		return nil, errors.New("no chromium")
	})

	if _, err := r.Run(context.Background(), mustQuery(t, "fake", "parts", testVIN, "x"), RunOptions{}); err != nil {
		t.Fatal(err)
	}
	if launches.Load() != 0 {
		t.Errorf("browser launched for a flow that never opened a page")
	}

	_, err := r.Run(context.Background(), mustQuery(t, "fake", "page", testVIN), RunOptions{})
	if err == nil || launches.Load() != 1 {
		t.Errorf("err = %v, launches = %d", err, launches.Load())
	}
}

type fakeBrowser struct {
	closed atomic.Bool
}

func (b *fakeBrowser) NewPage(ctx context.Context) (*browser.Page, error) { return nil, nil }
func (b *fakeBrowser) Close() error                                         { b.closed.Store(true); return nil }

func TestRunClosesBrowser(t *testing.T) {
	var calls atomic.Int32
	r, _ := testRunner(t, &calls)
	fb := &fakeBrowser{}
	r.SetLauncher(func(ctx context.Context) (Browser, error) { return fb, nil })

	if _, err := r.Run(context.Background(), mustQuery(t, "fake", "page", testVIN), RunOptions{}); err != nil {
		t.Fatal(err)
	}
	if !fb.closed.Load() {
		t.Error("browser not closed after the run")
	}
	if r.Stats().Launches.Load() != 1 {
		t.Errorf("Launches = %d", r.Stats().Launches.Load())
	}
}

func TestRunDeadlineIsTimeout(t *testing.T) {
	var calls atomic.Int32
	r, _ := testRunner(t, &calls)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Run(ctx, mustQuery(t, "fake", "slow", testVIN), RunOptions{})
	if !errors.Is(err, types.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if types.ExitCode(err) != types.ExitTimeout {
		t.Errorf("exit code = %d", types.ExitCode(err))
	}
}

func TestResultJSONEmpty(t *testing.T) {
	var r *Result
	if string(r.JSON()) != "{}" {
		t.Errorf("nil result = %s", r.JSON())
	}
	r = &Result{Kind: types.KindGroup}
	if string(r.JSON()) != `{"subgroups":[]}` {
		t.Errorf("empty group = %s", r.JSON())
	}
}

func TestStatsSnapshot(t *testing.T) {
	s := newStats()
	s.Runs.Add(3)
	s.record("realoem", nil)
	s.record("realoem", errors.New("boom"))

	snap := s.Snapshot()
	if snap["runs"].(int64) != 3 {
		t.Errorf("runs = %v", snap["runs"])
	}
	if snap["sites"].(map[string]int64)["realoem"] != 2 {
		t.Errorf("sites = %v", snap["sites"])
	}
}

func waitJob(t *testing.T, s *Scheduler, id string) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := s.Get(id)
		if !ok {
			t.Fatalf("job %s vanished", id)
		}
		if job.Status == JobDone || job.Status == JobFailed {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func TestScheduler(t *testing.T) {
	var calls atomic.Int32
	r, _ := testRunner(t, &calls)
	s := NewScheduler(r.Run, 2, time.Second, testLogger)
	s.Start(context.Background())
	defer s.Stop()

	ok, err := s.Submit(mustQuery(t, "fake", "parts", testVIN, "condenser"), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if ok.Status != JobQueued || ok.ID == "" {
		t.Errorf("submitted job = %+v", ok)
	}
	bad, err := s.Submit(mustQuery(t, "fake", "missing", testVIN), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}

	done := waitJob(t, s, ok.ID)
	if done.Status != JobDone || string(done.Result) != `["64 52 9 216 467","condenser"]` {
		t.Errorf("done job = %+v (%s)", done, done.Result)
	}
	failed := waitJob(t, s, bad.ID)
	if failed.ExitCode != types.ExitNoMatch || failed.Error == "" || string(failed.Result) != "null" {
		t.Errorf("failed job = %+v (%s)", failed, failed.Result)
	}

	if _, ok := s.Get("nope"); ok {
		t.Error("unknown job found")
	}
}

func TestSchedulerClosed(t *testing.T) {
	var calls atomic.Int32
	r, _ := testRunner(t, &calls)
	s := NewScheduler(r.Run, 1, 0, testLogger)
	s.Start(context.Background())
	s.Stop()

	if _, err := s.Submit(mustQuery(t, "fake", "parts", testVIN, "x"), RunOptions{}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("err = %v, want ErrQueueClosed", err)
	}
}
