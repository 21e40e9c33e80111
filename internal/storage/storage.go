package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/trendscope/internal/config"
	"github.com/IshaanNene/trendscope/internal/types"
)

// Storage archives finished runs.
type Storage interface {
	// Store persists one run.
	Store(ctx context.Context, run *types.Run) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New creates the backend named by cfg.Type. A comma-separated list fans out
// to every named backend; "none" yields a Storage that discards every run.
func New(cfg *config.StorageConfig, logger *slog.Logger) (Storage, error) {
	names := config.SplitList(cfg.Type)
	switch len(names) {
	case 0:
		return NopStorage{}, nil
	case 1:
		return newBackend(cfg, names[0], logger)
	}

	backends := make([]Storage, 0, len(names))
	for _, name := range names {
		b, err := newBackend(cfg, name, logger)
		if err != nil {
			for _, opened := range backends {
				_ = opened.Close()
			}
			return nil, err
		}
		backends = append(backends, b)
	}
	return NewMultiStorage(backends, logger), nil
}

func newBackend(cfg *config.StorageConfig, name string, logger *slog.Logger) (Storage, error) {
	switch name {
	case "", "none":
		return NopStorage{}, nil
	case "json", "jsonl", "csv":
		return NewFileStorage(name, cfg.OutputPath, logger)
	case "mongodb":
		return NewMongoStorage(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", name)
	}
}

// NopStorage discards runs.
type NopStorage struct{}

func (NopStorage) Store(context.Context, *types.Run) error { return nil }
func (NopStorage) Close() error                            { return nil }
func (NopStorage) Name() string                            { return "none" }
