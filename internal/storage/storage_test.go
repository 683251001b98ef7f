package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/observability"
	"github.com/IshaanNene/partscout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func testRecord(id string) *types.Record {
	return &types.Record{
		ID:        id,
		Site:      "realoem",
		Operation: "find-part",
		VIN:       "WBA3A5C50CF256651",
		Query:     "compressor",
		Result:    json.RawMessage(`["64529122618"]`),
		ScrapedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
	}
}

func TestJSONLStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "records.jsonl")
	ctx := context.Background()

	for i, id := range []string{"a", "b"} {
		s, err := NewJSONLStorage(path, testLogger)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Store(ctx, []*types.Record{testRecord(id)}); err != nil {
			t.Fatalf("store %d: %v", i, err)
		}
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec types.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		if string(rec.Result) != `["64529122618"]` {
			t.Errorf("result = %s", rec.Result)
		}
		ids = append(ids, rec.ID)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ids = %v", ids)
	}
}

type fakeStorage struct {
	name   string
	err    error
	stored int
	closed bool
}

func (f *fakeStorage) Name() string { return f.name }
func (f *fakeStorage) Close() error { f.closed = true; return nil }
func (f *fakeStorage) Store(_ context.Context, records []*types.Record) error {
	if f.err != nil {
		return f.err
	}
	f.stored += len(records)
	return nil
}

func TestMultiStorage(t *testing.T) {
	ok := &fakeStorage{name: "ok"}
	bad := &fakeStorage{name: "bad", err: errors.New("disk full")}
	metrics := observability.NewMetrics(testLogger)
	m := NewMultiStorage([]Storage{bad, ok}, testLogger).WithMetrics(metrics)

	err := m.Store(context.Background(), []*types.Record{testRecord("x")})
	var se *types.StorageError
	if !errors.As(err, &se) || se.Backend != "bad" {
		t.Fatalf("expected StorageError from bad, got %v", err)
	}
	if ok.stored != 1 {
		t.Error("healthy backend should still receive the record")
	}
	if metrics.RecordsStored.Load() != 1 || metrics.StorageErrors.Load() != 1 {
		t.Errorf("stored=%d errors=%d", metrics.RecordsStored.Load(), metrics.StorageErrors.Load())
	}

	m.Close()
	if !ok.closed || !bad.closed {
		t.Error("all backends should be closed")
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.StorageConfig{Backends: []string{"jsonl"}, OutputPath: filepath.Join(t.TempDir(), "r.jsonl")}
	m, err := New(context.Background(), cfg, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if m.Len() != 1 {
		t.Errorf("Len = %d", m.Len())
	}

	_, err = New(context.Background(), config.StorageConfig{Backends: []string{"csv"}}, testLogger)
	if err == nil {
		t.Error("expected an error for an unknown backend")
	}

	empty, err := New(context.Background(), config.StorageConfig{}, testLogger)
	if err != nil || empty.Len() != 0 {
		t.Errorf("empty config: %v, len %d", err, empty.Len())
	}
}

func TestRecordDocument(t *testing.T) {
	doc, err := recordDocument(testRecord("id-1"))
	if err != nil {
		t.Fatal(err)
	}
	m := doc.Map()
	if m["_id"] != "id-1" || m["duration_ms"] != int64(1500) {
		t.Errorf("unexpected doc: %v", doc)
	}
	arr, ok := m["result"].(bson.A)
	if !ok || len(arr) != 1 || arr[0] != "64529122618" {
		t.Errorf("result = %#v", m["result"])
	}

	rec := testRecord("id-2")
	rec.Result = nil
	doc, err = recordDocument(rec)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := doc.Map()["result"]; !ok || v != nil {
		t.Errorf("empty result should store null, got %#v", v)
	}
}
