package aggregate

import (
	"sort"
)

// RecallCounter computes the selector-quality oracle: the fraction of
// questions whose true answer appears somewhere in the union of their top-m
// documents by selection score, for every m in [1, depth]. The oracle is an
// upper bound on what the selector can deliver; it is reported, never
// trained on.
type RecallCounter struct {
	hits      []float64
	questions float64
}

// NewRecallCounter creates a counter reporting up to depth ranks.
func NewRecallCounter(depth int) *RecallCounter {
	return &RecallCounter{hits: make([]float64, depth)}
}

// Observe records one question: its per-document selection scores and
// per-document answer presence.
func (c *RecallCounter) Observe(selScores []float64, hasAnswer []bool) {
	order := make([]int, len(selScores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return selScores[order[i]] > selScores[order[j]]
	})

	c.questions++
	found := false
	for rank := 0; rank < len(c.hits); rank++ {
		if rank < len(order) && order[rank] < len(hasAnswer) && hasAnswer[order[rank]] {
			found = true
		}
		if found {
			c.hits[rank]++
		}
	}
}

// Fractions returns the cumulative recall at each rank. Ranks are all zero
// until at least one question was observed.
func (c *RecallCounter) Fractions() []float64 {
	fractions := make([]float64, len(c.hits))
	if c.questions == 0 {
		return fractions
	}
	for i, h := range c.hits {
		fractions[i] = h / c.questions
	}
	return fractions
}
