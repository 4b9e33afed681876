// Package cache memoizes ground-truth answer matching per batch.
//
// Resolving HasAnswer annotations costs one span-matcher call per
// (document, example) cell and is invariant across repeated visits to the
// same batch, so the grid is computed once per batch id per process and
// reused by every later pass (training, pretraining, evidence update).
package cache

import (
	"github.com/soundprediction/evidential/pkg/types"
)

// Grid holds the resolved HasAnswerRecords for one batch,
// indexed as Grid[documentSlot][inBatchIndex].
type Grid [][]types.HasAnswerRecord

// LookupFunc resolves the annotation for a single (document slot, example)
// cell. It is only invoked on a cache miss.
type LookupFunc func(docSlot, exampleIndex int) types.HasAnswerRecord

// HasAnswerCache is an owned, write-once-per-key map from batch id to its
// annotation grid. It lives for one self-training round and is handed to the
// driver by reference. Not safe for concurrent writers; the driver consumes
// batches on a single goroutine.
type HasAnswerCache struct {
	entries map[int]Grid
}

// New creates an empty cache.
func New() *HasAnswerCache {
	return &HasAnswerCache{entries: make(map[int]Grid)}
}

// GetOrCompute returns the grid for batchID, computing it with lookup on the
// first visit. The returned grid is shared: callers must not mutate it.
func (c *HasAnswerCache) GetOrCompute(batchID, numDocs, batchSize int, lookup LookupFunc) Grid {
	if grid, ok := c.entries[batchID]; ok {
		return grid
	}

	grid := make(Grid, numDocs)
	for d := 0; d < numDocs; d++ {
		grid[d] = make([]types.HasAnswerRecord, batchSize)
		for i := 0; i < batchSize; i++ {
			grid[d][i] = lookup(d, i)
		}
	}
	c.entries[batchID] = grid
	return grid
}

// Get returns the cached grid for batchID, if present.
func (c *HasAnswerCache) Get(batchID int) (Grid, bool) {
	grid, ok := c.entries[batchID]
	return grid, ok
}

// Len returns the number of cached batches.
func (c *HasAnswerCache) Len() int {
	return len(c.entries)
}
