package server

import (
	"sync"
	"time"
)

// Status is a snapshot of the training run for the status endpoint.
type Status struct {
	State         string    `json:"state"` // idle, pretraining, training, validating, promoting, done
	Mode          string    `json:"mode"`
	Epoch         int       `json:"epoch"`
	Step          int       `json:"step"`
	TotalSteps    int       `json:"total_steps"`
	Loss          float64   `json:"loss"`
	BestMetric    float64   `json:"best_metric"`
	LabeledTotal  int       `json:"labeled_total"`
	PromotedTotal int       `json:"promoted_total"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Tracker holds the current Status behind a lock. The trainer writes, the
// HTTP handlers read.
type Tracker struct {
	mu     sync.RWMutex
	status Status
}

// NewTracker creates a Tracker in the idle state.
func NewTracker() *Tracker {
	return &Tracker{status: Status{State: "idle", UpdatedAt: time.Now().UTC()}}
}

// Publish replaces the mutable fields of the status.
func (t *Tracker) Publish(state string, epoch, step int, loss float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.State = state
	t.status.Epoch = epoch
	t.status.Step = step
	t.status.Loss = loss
	t.status.UpdatedAt = time.Now().UTC()
}

// SetRun records the run-level constants.
func (t *Tracker) SetRun(mode string, totalSteps int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Mode = mode
	t.status.TotalSteps = totalSteps
	t.status.UpdatedAt = time.Now().UTC()
}

// SetBestMetric records the best validation metric seen so far.
func (t *Tracker) SetBestMetric(v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.BestMetric = v
	t.status.UpdatedAt = time.Now().UTC()
}

// SetEvidence records the evidence label counters.
func (t *Tracker) SetEvidence(labeled, promoted int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.LabeledTotal = labeled
	t.status.PromotedTotal += promoted
	t.status.UpdatedAt = time.Now().UTC()
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}
