// Package sampler draws per-step document orderings used to bound the number
// of documents scored per update.
package sampler

import (
	"math/rand"
)

// Strategy produces a permutation of the document pool for one training step.
// Implementations must return a fresh, independent draw on every call.
type Strategy interface {
	// SampleOrder returns a permutation of [0, poolSize) and its inverse
	// mapping from original document index to sampled slot. The inverse maps
	// the sentinel -1 to -1 so evidence labels of unlabeled examples pass
	// through unchanged.
	SampleOrder(poolSize int) (order []int, inverse map[int]int)
}

// Weighted samples documents without replacement, each draw proportional to
// its weight. With uniform weights this is a plain random shuffle, but the
// weights are a hook for confidence-biased sampling.
type Weighted struct {
	weights []float64
	rng     *rand.Rand
}

// NewUniform creates a Weighted strategy with all weights equal.
func NewUniform(seed int64) *Weighted {
	return &Weighted{rng: rand.New(rand.NewSource(seed))}
}

// NewWeighted creates a strategy using the given per-document weights. When
// poolSize exceeds len(weights), the extra documents get weight 1.
func NewWeighted(weights []float64, seed int64) *Weighted {
	return &Weighted{weights: weights, rng: rand.New(rand.NewSource(seed))}
}

func (w *Weighted) SampleOrder(poolSize int) ([]int, map[int]int) {
	remaining := make([]float64, poolSize)
	total := 0.0
	for i := range remaining {
		weight := 1.0
		if i < len(w.weights) {
			weight = w.weights[i]
		}
		remaining[i] = weight
		total += weight
	}

	order := make([]int, 0, poolSize)
	picked := make([]bool, poolSize)
	for len(order) < poolSize {
		idx := -1
		if total > 0 {
			r := w.rng.Float64() * total
			for i := range remaining {
				if picked[i] || remaining[i] <= 0 {
					continue
				}
				r -= remaining[i]
				idx = i
				if r < 0 {
					break
				}
			}
		}
		if idx == -1 {
			// Only zero-weight documents remain; take them in index order.
			for i := range remaining {
				if !picked[i] {
					idx = i
					break
				}
			}
		}
		picked[idx] = true
		total -= remaining[idx]
		order = append(order, idx)
	}

	return order, invert(order)
}

// Identity returns documents in their original order. Evidence-update passes
// require deterministic, full-pool coverage, so they must not shuffle.
type Identity struct{}

func (Identity) SampleOrder(poolSize int) ([]int, map[int]int) {
	order := make([]int, poolSize)
	for i := range order {
		order[i] = i
	}
	return order, invert(order)
}

func invert(order []int) map[int]int {
	inverse := make(map[int]int, len(order)+1)
	for slot, original := range order {
		inverse[original] = slot
	}
	inverse[-1] = -1
	return inverse
}
