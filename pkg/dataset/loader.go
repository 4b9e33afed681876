package dataset

import (
	"github.com/soundprediction/evidential/pkg/types"
)

// Loader serves a split as batched steps. Step order and batch composition
// are deterministic functions of the split, so every pass over the loader
// (training, pretraining, evidence update) sees identical coordinates. That
// stability is what makes (batch, index) a valid persistent key for the
// evidence subsystem.
type Loader struct {
	split     *Split
	batchSize int
	numDocs   int
}

// NewLoader creates a loader over split with the given batch size and
// document pool size D.
func NewLoader(split *Split, batchSize, numDocs int) *Loader {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Loader{split: split, batchSize: batchSize, numDocs: numDocs}
}

// NumSteps returns the number of steps in one pass.
func (l *Loader) NumSteps() int {
	return (l.split.Len() + l.batchSize - 1) / l.batchSize
}

// NumDocs returns the document pool size D.
func (l *Loader) NumDocs() int {
	return l.numDocs
}

// Example returns the example with the given id.
func (l *Loader) Example(id int) *Example {
	return l.split.Examples[id]
}

// ExampleIDAt resolves loader coordinates (step, in-batch index) to the
// owning example id.
func (l *Loader) ExampleIDAt(step, index int) (int, bool) {
	id := step*l.batchSize + index
	if step < 0 || index < 0 || index >= l.batchSize || id >= l.split.Len() {
		return 0, false
	}
	return id, true
}

// Step materializes step id: D batches in document-slot order, each holding
// the same examples. Document slot d of an example with a pool smaller than
// D wraps to d modulo the pool size.
func (l *Loader) Step(id int) *types.Step {
	lo := id * l.batchSize
	hi := lo + l.batchSize
	if hi > l.split.Len() {
		hi = l.split.Len()
	}
	size := hi - lo

	step := &types.Step{ID: id, Docs: make([]*types.Batch, l.numDocs)}
	ids := make([]int, size)
	for i := range ids {
		ids[i] = lo + i
	}

	for d := 0; d < l.numDocs; d++ {
		batch := &types.Batch{
			Size:       size,
			ExampleIDs: ids,
			DocTokens:  make([][]string, size),
		}
		for i := 0; i < size; i++ {
			docs := l.split.Examples[lo+i].Docs
			batch.DocTokens[i] = docs[d%len(docs)]
		}
		step.Docs[d] = batch
	}
	return step
}
