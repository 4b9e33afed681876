package evidence

import (
	"fmt"
)

// Key identifies one example within one evidence-update pass by its loader
// coordinates: the batch (step) index and the position inside that batch.
type Key struct {
	Batch int
	Index int
}

func (k Key) String() string {
	return fmt.Sprintf("%d|%d", k.Batch, k.Index)
}

// Record is the model's confidence output for one example: the scalar
// probability that the question should accept evidence at all, plus the best
// attention score over the candidate documents and which document earned it.
// BestDoc is Unlabeled when no document received a usable score.
type Record struct {
	Prob      float64
	BestScore float64
	BestDoc   int
}

// Accumulator collects one Record per example over a full evidence-update
// pass, preserving visitation order for deterministic tie-breaks during
// promotion. Single-writer; the promoter needs a fully materialized,
// consistent view of the pass.
type Accumulator struct {
	records map[Key]Record
	order   []Key
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{records: make(map[Key]Record)}
}

// Add stores the record for key. Writing the same key twice fails with
// ErrDuplicateKey: reprocessing an example in one pass would corrupt the
// global ranking, so it aborts the pass rather than silently overwriting.
func (a *Accumulator) Add(key Key, rec Record) error {
	if _, exists := a.records[key]; exists {
		return fmt.Errorf("%s: %w", key, ErrDuplicateKey)
	}
	a.records[key] = rec
	a.order = append(a.order, key)
	return nil
}

// Len returns the number of accumulated records.
func (a *Accumulator) Len() int {
	return len(a.records)
}

// Get returns the record for key.
func (a *Accumulator) Get(key Key) (Record, bool) {
	rec, ok := a.records[key]
	return rec, ok
}
