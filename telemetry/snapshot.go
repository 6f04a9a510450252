package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the optimizer state needed to resume training.
type Snapshot struct {
	Version int   `json:"version"`
	Seed    int64 `json:"seed"` // optimizer seed of the run

	Generation int       `json:"generation"` // completed generations
	Center     []float64 `json:"center"`

	Best       []float64 `json:"best,omitempty"`
	BestReturn float64   `json:"best_return"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// Validate checks the snapshot against the expected parameter count.
func (s *Snapshot) Validate(numParams int) error {
	switch {
	case s.Version != SnapshotVersion:
		return fmt.Errorf("snapshot version %d, want %d", s.Version, SnapshotVersion)
	case len(s.Center) != numParams:
		return fmt.Errorf("snapshot center has %d params, want %d", len(s.Center), numParams)
	case s.Best != nil && len(s.Best) != numParams:
		return fmt.Errorf("snapshot best has %d params, want %d", len(s.Best), numParams)
	}
	return nil
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d", snapshot.Generation)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Generation, sanitized)
	}
	name += ".json"

	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}
