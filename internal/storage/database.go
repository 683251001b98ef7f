package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/partscout/internal/observability"
	"github.com/IshaanNene/partscout/internal/types"
)

// MongoStorage writes records to a MongoDB collection.
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoStorage connects and pings within ten seconds.
func NewMongoStorage(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoStorage{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

func (s *MongoStorage) Store(ctx context.Context, records []*types.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]any, len(records))
	for i, rec := range records {
		doc, err := recordDocument(rec)
		if err != nil {
			return err
		}
		docs[i] = doc
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongodb insert: %w", err)
	}

	s.count += len(records)
	s.logger.Debug("records stored in mongodb", "count", len(records), "total", s.count)
	return nil
}

// recordDocument converts a record to BSON with the JSON result decoded in place.
func recordDocument(rec *types.Record) (bson.D, error) {
	doc := bson.D{
		{Key: "_id", Value: rec.ID},
		{Key: "site", Value: rec.Site},
		{Key: "operation", Value: rec.Operation},
		{Key: "vin", Value: rec.VIN},
		{Key: "query", Value: rec.Query},
		{Key: "cached", Value: rec.Cached},
		{Key: "scraped_at", Value: rec.ScrapedAt},
		{Key: "duration_ms", Value: rec.Duration.Milliseconds()},
	}

	raw := rec.Result
	if len(raw) == 0 {
		raw = []byte("null")
	}
	var wrapped bson.D
	if err := bson.UnmarshalExtJSON(append(append([]byte(`{"v":`), raw...), '}'), false, &wrapped); err != nil {
		return nil, fmt.Errorf("decode result for %s: %w", rec.ID, err)
	}
	if len(wrapped) == 1 {
		doc = append(doc, bson.E{Key: "result", Value: wrapped[0].Value})
	}
	return doc, nil
}

func (s *MongoStorage) Close() error {
	s.logger.Debug("mongodb storage closing", "total_records", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes records to multiple backends.
type MultiStorage struct {
	backends []Storage
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

// WithMetrics counts stored records and backend failures.
func (s *MultiStorage) WithMetrics(m *observability.Metrics) *MultiStorage {
	s.metrics = m
	return s
}

func (s *MultiStorage) Name() string { return "multi" }

// Len returns the number of backends.
func (s *MultiStorage) Len() int { return len(s.backends) }

// Store writes to every backend, continuing past failures. The first error
// is returned wrapped in a StorageError.
func (s *MultiStorage) Store(ctx context.Context, records []*types.Record) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Store(ctx, records); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			if s.metrics != nil {
				s.metrics.StorageErrors.Add(1)
			}
			if firstErr == nil {
				firstErr = &types.StorageError{Backend: backend.Name(), Err: err}
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordsStored.Add(int64(len(records)))
		}
	}
	return firstErr
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
