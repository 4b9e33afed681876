// Package checkpoint persists per-run training progress so an interrupted
// round can resume at the next epoch instead of restarting.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidRunName is returned when a run name contains path traversal or
// invalid characters.
var ErrInvalidRunName = errors.New("invalid run name: contains path traversal or invalid characters")

// RunCheckpoint records how far a training run has progressed. Epoch is the
// last fully completed epoch, -1 before any epoch finishes.
type RunCheckpoint struct {
	Name string `json:"name"`
	Mode string `json:"mode"`

	Epoch      int     `json:"epoch"`
	BestMetric float64 `json:"best_metric"`
	Labeled    int     `json:"labeled"`

	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	AttemptCount  int       `json:"attempt_count"`
	LastError     string    `json:"last_error,omitempty"`
}

// Manager stores run checkpoints as JSON files in one directory.
type Manager struct {
	dir string
}

// NewManager creates a checkpoint manager. An empty dir defaults to
// os.TempDir()/evidential-checkpoints.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "evidential-checkpoints")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the checkpoint directory path.
func (m *Manager) Dir() string {
	return m.dir
}

// validateRunName rejects names that are unsafe as file path components.
func validateRunName(name string) error {
	if name == "" {
		return ErrInvalidRunName
	}
	if strings.Contains(name, "..") {
		return ErrInvalidRunName
	}
	if strings.ContainsAny(name, `/\`) {
		return ErrInvalidRunName
	}
	if strings.ContainsRune(name, '\x00') {
		return ErrInvalidRunName
	}
	return nil
}

// isPathWithinDirectory reports whether the resolved path stays inside dir.
func isPathWithinDirectory(path, dir string) bool {
	cleanPath := filepath.Clean(path)
	cleanDir := filepath.Clean(dir)
	if !strings.HasSuffix(cleanDir, string(filepath.Separator)) {
		cleanDir += string(filepath.Separator)
	}
	return strings.HasPrefix(cleanPath, cleanDir)
}

// Path returns the checkpoint file path for a run name.
func (m *Manager) Path(name string) (string, error) {
	if err := validateRunName(name); err != nil {
		return "", err
	}
	full := filepath.Join(m.dir, fmt.Sprintf("checkpoint_%s.json", name))
	if !isPathWithinDirectory(full, m.dir) {
		return "", ErrInvalidRunName
	}
	return full, nil
}

// Save persists the checkpoint atomically.
func (m *Manager) Save(ck *RunCheckpoint) error {
	ck.LastUpdatedAt = time.Now()

	data, err := json.MarshalIndent(ck, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path, err := m.Path(ck.Name)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}
	return nil
}

// Load retrieves a run's checkpoint. A missing checkpoint returns nil, nil.
func (m *Manager) Load(name string) (*RunCheckpoint, error) {
	path, err := m.Path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var ck RunCheckpoint
	if err := json.Unmarshal(data, &ck); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &ck, nil
}

// Delete removes a run's checkpoint. Deleting a missing checkpoint is not an
// error.
func (m *Manager) Delete(name string) error {
	path, err := m.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint file: %w", err)
	}
	return nil
}

// Exists reports whether a checkpoint exists for the run.
func (m *Manager) Exists(name string) (bool, error) {
	path, err := m.Path(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check checkpoint existence: %w", err)
	}
	return true, nil
}

// List returns every readable checkpoint in the directory.
func (m *Manager) List() ([]*RunCheckpoint, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var out []*RunCheckpoint
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			continue
		}
		var ck RunCheckpoint
		if err := json.Unmarshal(data, &ck); err != nil {
			continue
		}
		out = append(out, &ck)
	}
	return out, nil
}

// CleanOld removes checkpoints not updated within maxAge and returns how many
// were removed.
func (m *Manager) CleanOld(maxAge time.Duration) (int, error) {
	checkpoints, err := m.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, ck := range checkpoints {
		if ck.LastUpdatedAt.Before(cutoff) {
			if err := m.Delete(ck.Name); err != nil {
				continue
			}
			removed++
		}
	}
	return removed, nil
}
