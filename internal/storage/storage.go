// Package storage archives scrape results.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists a batch of records.
	Store(ctx context.Context, records []*types.Record) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New builds the backends listed in cfg.Backends behind a MultiStorage.
// An empty list yields a MultiStorage that stores nothing.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*MultiStorage, error) {
	var backends []Storage
	for _, name := range cfg.Backends {
		var (
			s   Storage
			err error
		)
		switch name {
		case "jsonl":
			s, err = NewJSONLStorage(cfg.OutputPath, logger)
		case "mongodb":
			s, err = NewMongoStorage(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
		default:
			err = fmt.Errorf("unsupported storage backend: %s", name)
		}
		if err != nil {
			for _, b := range backends {
				b.Close()
			}
			return nil, &types.StorageError{Backend: name, Err: err}
		}
		backends = append(backends, s)
	}
	return NewMultiStorage(backends, logger), nil
}
