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

	"github.com/IshaanNene/trendscope/internal/types"
)

// MongoStorage writes one document per project, tagged with the run's
// source and timestamp.
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoStorage creates a new MongoDB storage backend.
func NewMongoStorage(uri, database, collection string, logger *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoStorage{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

// runDocuments flattens a run into one BSON document per project.
func runDocuments(run *types.Run) []any {
	docs := make([]any, len(run.Projects))
	for i, p := range run.Projects {
		docs[i] = bson.M{
			"source":       string(run.Source),
			"generated_at": run.GeneratedAt,
			"rank":         i + 1,
			"repo":         p.RepoID,
			"description":  p.Description,
			"intro":        p.Intro,
			"highlights":   p.Highlights,
			"tags":         p.Tags,
			"stars":        p.Stars,
			"stars_today":  p.StarsToday,
			"language":     p.Language,
			"url":          p.URL,
			"enriched":     p.Enriched,
		}
	}
	return docs
}

func (s *MongoStorage) Store(ctx context.Context, run *types.Run) error {
	if run.Total() == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.collection.InsertMany(ctx, runDocuments(run)); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("mongodb insert: %w", err)}
	}

	s.count += run.Total()
	s.logger.Debug("run stored in mongodb", "source", run.Source, "projects", run.Total(), "total", s.count)
	return nil
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "total_projects", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes runs to multiple backends.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

func (s *MultiStorage) Store(ctx context.Context, run *types.Run) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Store(ctx, run); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
