// Package telemetry persists training traces as Parquet files: loss curves,
// validation results and evidence promotions, one schema per record type.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

// TrainRecord captures one logged training interval.
type TrainRecord struct {
	ID        string    `parquet:"id"`
	Timestamp time.Time `parquet:"timestamp"`
	RunID     string    `parquet:"run_id"`
	Mode      string    `parquet:"mode"`
	Epoch     int       `parquet:"epoch"`
	Step      int       `parquet:"step"`
	Loss      float64   `parquet:"loss"`
}

// ValidationRecord captures one validation pass.
type ValidationRecord struct {
	ID         string    `parquet:"id"`
	Timestamp  time.Time `parquet:"timestamp"`
	RunID      string    `parquet:"run_id"`
	Split      string    `parquet:"split"`
	Epoch      int       `parquet:"epoch"`
	ExactMatch float64   `parquet:"exact_match"`
	F1         float64   `parquet:"f1"`
	Examples   int       `parquet:"examples"`
}

// PromotionRecord captures the outcome of one evidence promotion phase.
type PromotionRecord struct {
	ID         string    `parquet:"id"`
	Timestamp  time.Time `parquet:"timestamp"`
	RunID      string    `parquet:"run_id"`
	Epoch      int       `parquet:"epoch"`
	Promoted   int       `parquet:"promoted"`
	Considered int       `parquet:"considered"`
	Budget     int       `parquet:"budget"`
	MeanProb   float64   `parquet:"mean_prob"`
	MeanScore  float64   `parquet:"mean_score"`
}

// Recorder buffers records of one type and writes them to Parquet files in
// batches.
type Recorder[T any] struct {
	dir    string
	prefix string

	mu        sync.Mutex
	buffer    []T
	batchSize int
}

// NewRecorder creates a recorder writing <prefix>_*.parquet files under dir.
func NewRecorder[T any](dir, prefix string) (*Recorder[T], error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}
	return &Recorder[T]{dir: dir, prefix: prefix, batchSize: 256}, nil
}

// Record buffers one record.
func (r *Recorder[T]) Record(rec T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = append(r.buffer, rec)
	if len(r.buffer) >= r.batchSize {
		return r.flush()
	}
	return nil
}

// Flush writes any buffered records out immediately.
func (r *Recorder[T]) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flush()
}

// Close flushes remaining records.
func (r *Recorder[T]) Close() error {
	return r.Flush()
}

// flush writes the buffer to a new file. Caller must hold the lock.
func (r *Recorder[T]) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}
	filename := fmt.Sprintf("%s_%s_%d.parquet", r.prefix, time.Now().Format("20060102_150405"), time.Now().UnixNano())
	path := filepath.Join(r.dir, filename)
	if err := parquet.WriteFile(path, r.buffer); err != nil {
		return fmt.Errorf("failed to write %s telemetry: %w", r.prefix, err)
	}
	r.buffer = r.buffer[:0]
	return nil
}

// NewID returns a fresh record id.
func NewID() string {
	return uuid.New().String()
}
