package metrics

import (
	"time"
)

// AverageMeter keeps a running, weighted average of a scalar.
type AverageMeter struct {
	sum   float64
	count int
}

// Update adds value with weight n observations.
func (m *AverageMeter) Update(value float64, n int) {
	if n <= 0 {
		n = 1
	}
	m.sum += value * float64(n)
	m.count += n
}

// Avg returns the current average, 0 when nothing was observed.
func (m *AverageMeter) Avg() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Count returns the number of observations.
func (m *AverageMeter) Count() int {
	return m.count
}

// Reset clears the meter.
func (m *AverageMeter) Reset() {
	m.sum = 0
	m.count = 0
}

// Timer measures elapsed wall time for epoch reporting.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since start or the last reset.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Reset restarts the timer.
func (t *Timer) Reset() {
	t.start = time.Now()
}
