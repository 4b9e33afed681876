package checkpoint

import (
	"fmt"
	"time"
)

// New creates a checkpoint for a run that has not completed any epoch yet.
func New(name, mode string) *RunCheckpoint {
	now := time.Now()
	return &RunCheckpoint{
		Name:          name,
		Mode:          mode,
		Epoch:         -1,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// LoadOrCreate loads a run's checkpoint or creates and persists a fresh one.
// The boolean reports whether an existing checkpoint was found.
func (m *Manager) LoadOrCreate(name, mode string) (*RunCheckpoint, bool, error) {
	existing, err := m.Load(name)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}

	ck := New(name, mode)
	if err := m.Save(ck); err != nil {
		return nil, false, err
	}
	return ck, false, nil
}

// SaveWithError records a failed attempt and persists in one operation.
func (m *Manager) SaveWithError(ck *RunCheckpoint, runErr error) error {
	ck.AttemptCount++
	ck.LastError = runErr.Error()
	return m.Save(ck)
}

// CanRetry reports whether a failed run should be retried, based on attempt
// count and checkpoint age.
func (c *RunCheckpoint) CanRetry(maxAttempts int, maxAge time.Duration) bool {
	if c.AttemptCount >= maxAttempts {
		return false
	}
	return time.Since(c.CreatedAt) <= maxAge
}

// Summary returns a human-readable description of the checkpoint.
func (c *RunCheckpoint) Summary() string {
	s := fmt.Sprintf("Run: %s\n", c.Name)
	s += fmt.Sprintf("Mode: %s\n", c.Mode)
	s += fmt.Sprintf("Completed Epochs: %d\n", c.Epoch+1)
	s += fmt.Sprintf("Best Metric: %.4f\n", c.BestMetric)
	s += fmt.Sprintf("Labeled: %d\n", c.Labeled)
	s += fmt.Sprintf("Created: %s\n", c.CreatedAt.Format(time.RFC3339))
	s += fmt.Sprintf("Last Updated: %s\n", c.LastUpdatedAt.Format(time.RFC3339))
	if c.AttemptCount > 0 {
		s += fmt.Sprintf("Attempts: %d\n", c.AttemptCount)
	}
	if c.LastError != "" {
		s += fmt.Sprintf("Last Error: %s\n", c.LastError)
	}
	return s
}

// FindStalled returns checkpoints that have not been updated within
// stalledDuration.
func (m *Manager) FindStalled(stalledDuration time.Duration) ([]*RunCheckpoint, error) {
	checkpoints, err := m.List()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-stalledDuration)
	var stalled []*RunCheckpoint
	for _, ck := range checkpoints {
		if ck.LastUpdatedAt.Before(cutoff) {
			stalled = append(stalled, ck)
		}
	}
	return stalled, nil
}
