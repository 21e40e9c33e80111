package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/IshaanNene/trendscope/internal/types"
)

// runFileName names a per-run export, one file per source and day.
func runFileName(run *types.Run, ext string) string {
	return fmt.Sprintf("%s_trending_%s.%s", run.Source, run.GeneratedAt.Format("20060102"), ext)
}

// --- JSON Storage ---

// JSONStorage writes each run as an indented JSON document.
type JSONStorage struct {
	dir    string
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONStorage creates a JSON file storage under dir.
func NewJSONStorage(dir string, logger *slog.Logger) (*JSONStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &JSONStorage{
		dir:    dir,
		logger: logger.With("component", "json_storage"),
	}, nil
}

func (s *JSONStorage) Name() string { return "json" }

func (s *JSONStorage) Store(_ context.Context, run *types.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := run.ToJSON()
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode JSON: %w", err)}
	}
	path := filepath.Join(s.dir, runFileName(run, "json"))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}

	s.count++
	s.logger.Info("JSON written", "path", path, "projects", run.Total())
	return nil
}

func (s *JSONStorage) Close() error { return nil }

// --- JSONL Storage ---

// archiveRecord is one project line in the JSONL archive.
type archiveRecord struct {
	Source      types.Source `json:"source"`
	GeneratedAt time.Time    `json:"generated_at"`
	Rank        int          `json:"rank"`
	*types.Project
}

// JSONLStorage appends every project of every run to one newline-delimited
// JSON archive.
type JSONLStorage struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLStorage opens (or creates) the archive at outputPath for appending.
func NewJSONLStorage(outputPath string, logger *slog.Logger) (*JSONLStorage, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}

	return &JSONLStorage{
		path:   outputPath,
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger.With("component", "jsonl_storage"),
	}, nil
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) Store(_ context.Context, run *types.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range run.Projects {
		rec := archiveRecord{
			Source:      run.Source,
			GeneratedAt: run.GeneratedAt,
			Rank:        i + 1,
			Project:     p,
		}
		if err := s.enc.Encode(rec); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode JSONL: %w", err)}
		}
		s.count++
	}
	return nil
}

func (s *JSONLStorage) Close() error {
	s.logger.Info("JSONL written", "path", s.path, "projects", s.count)
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// --- CSV Storage ---

// csvHeaders is the fixed column order of CSV exports.
var csvHeaders = []string{
	"rank", "repo", "description", "intro", "highlights",
	"tags", "stars", "stars_today", "language", "url",
}

// CSVStorage writes each run as a CSV file with one row per project.
type CSVStorage struct {
	dir    string
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewCSVStorage creates a CSV file storage under dir.
func NewCSVStorage(dir string, logger *slog.Logger) (*CSVStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &CSVStorage{
		dir:    dir,
		logger: logger.With("component", "csv_storage"),
	}, nil
}

func (s *CSVStorage) Name() string { return "csv" }

func (s *CSVStorage) Store(_ context.Context, run *types.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, runFileName(run, "csv"))
	f, err := os.Create(path)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeaders); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write CSV header: %w", err)}
	}
	for i, p := range run.Projects {
		flat := p.ToFlatMap()
		flat["rank"] = fmt.Sprint(i + 1)

		row := make([]string, len(csvHeaders))
		for j, h := range csvHeaders {
			row[j] = flat[h]
		}
		if err := w.Write(row); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write CSV row: %w", err)}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}

	s.count++
	s.logger.Info("CSV written", "path", path, "projects", run.Total())
	return nil
}

func (s *CSVStorage) Close() error { return nil }

// NewFileStorage creates the appropriate file-based storage by type.
func NewFileStorage(storageType, outputDir string, logger *slog.Logger) (Storage, error) {
	switch storageType {
	case "json":
		return NewJSONStorage(outputDir, logger)
	case "jsonl":
		return NewJSONLStorage(filepath.Join(outputDir, "trending.jsonl"), logger)
	case "csv":
		return NewCSVStorage(outputDir, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
