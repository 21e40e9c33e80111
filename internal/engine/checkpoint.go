package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/IshaanNene/trendscope/internal/types"
)

// CheckpointManager saves and loads the scheduler's last run per source, so
// a restarted scheduler can tell a missed slot from a fresh install.
type CheckpointManager struct {
	path string
	mu   sync.Mutex
}

// checkpointData is the serializable scheduler state.
type checkpointData struct {
	Timestamp time.Time                  `json:"timestamp"`
	LastRuns  map[types.Source]time.Time `json:"last_runs"`
}

// NewCheckpointManager creates a CheckpointManager writing to path.
func NewCheckpointManager(path string) *CheckpointManager {
	return &CheckpointManager{path: path}
}

// Path returns the checkpoint file location.
func (cm *CheckpointManager) Path() string {
	return cm.path
}

// Save writes lastRuns to disk.
func (cm *CheckpointManager) Save(lastRuns map[types.Source]time.Time) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(cm.path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data := checkpointData{
		Timestamp: time.Now(),
		LastRuns:  lastRuns,
	}

	// Write to temp file, then rename (atomic write)
	tmpPath := cm.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create checkpoint file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close checkpoint file: %w", err)
	}

	if err := os.Rename(tmpPath, cm.path); err != nil {
		return fmt.Errorf("rename checkpoint file: %w", err)
	}
	return nil
}

// Load reads the saved last runs. A missing file yields an empty map.
func (cm *CheckpointManager) Load() (map[types.Source]time.Time, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	f, err := os.Open(cm.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[types.Source]time.Time{}, nil
		}
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var data checkpointData
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if data.LastRuns == nil {
		data.LastRuns = map[types.Source]time.Time{}
	}
	return data.LastRuns, nil
}

// HasCheckpoint returns true if a checkpoint file exists.
func (cm *CheckpointManager) HasCheckpoint() bool {
	_, err := os.Stat(cm.path)
	return err == nil
}

// Clean removes the checkpoint file.
func (cm *CheckpointManager) Clean() error {
	if err := os.Remove(cm.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
