package evidence

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityResolver(key Key) (int, error) {
	// One question per record: batch*100 + index.
	return key.Batch*100 + key.Index, nil
}

func TestAccumulatorDuplicateKey(t *testing.T) {
	acc := NewAccumulator()
	require.NoError(t, acc.Add(Key{Batch: 0, Index: 1}, Record{Prob: 0.5, BestScore: 0.9, BestDoc: 2}))

	err := acc.Add(Key{Batch: 0, Index: 1}, Record{Prob: 0.1, BestScore: 0.2, BestDoc: 0})
	require.ErrorIs(t, err, ErrDuplicateKey)

	// The original record survives.
	rec, ok := acc.Get(Key{Batch: 0, Index: 1})
	require.True(t, ok)
	assert.Equal(t, 0.9, rec.BestScore)
	assert.Equal(t, 1, acc.Len())
}

func TestPromoteGlobalRanking(t *testing.T) {
	acc := NewAccumulator()
	require.NoError(t, acc.Add(Key{0, 0}, Record{Prob: 0.8, BestScore: 0.9, BestDoc: 1}))
	require.NoError(t, acc.Add(Key{0, 1}, Record{Prob: 0.6, BestScore: 0.5, BestDoc: 2}))
	require.NoError(t, acc.Add(Key{1, 0}, Record{Prob: 0.7, BestScore: 0.7, BestDoc: 3}))

	store := NewMemoryStore()
	report, err := Promote(acc, store, identityResolver, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Promoted)
	assert.Equal(t, 3, report.Considered)
	assert.Equal(t, 1, store.Get(0), "score 0.9 promoted")
	assert.Equal(t, 3, store.Get(100), "score 0.7 promoted")
	assert.Equal(t, Unlabeled, store.Get(1), "score 0.5 stays unlabeled")
	assert.InDelta(t, (0.8+0.7)/2, report.MeanProb, 1e-9)
	assert.InDelta(t, (0.9+0.7)/2, report.MeanScore, 1e-9)
}

func TestPromoteSkipsUnusableAndLabeled(t *testing.T) {
	acc := NewAccumulator()
	require.NoError(t, acc.Add(Key{0, 0}, Record{BestScore: 0.99, BestDoc: Unlabeled}))
	require.NoError(t, acc.Add(Key{0, 1}, Record{BestScore: 0.8, BestDoc: 4}))
	require.NoError(t, acc.Add(Key{0, 2}, Record{BestScore: 0.6, BestDoc: 5}))

	store := NewMemoryStore()
	// Question for record (0,1) is already labeled from a previous round.
	require.NoError(t, store.Promote(1, 9))

	report, err := Promote(acc, store, identityResolver, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Promoted)
	assert.Equal(t, 2, report.Considered, "no-doc record filtered out")
	assert.Equal(t, 9, store.Get(1), "existing label untouched")
	assert.Equal(t, 5, store.Get(2), "skip of labeled question does not consume budget")
}

func TestPromoteBudget(t *testing.T) {
	t.Run("budget exceeds eligible records", func(t *testing.T) {
		acc := NewAccumulator()
		require.NoError(t, acc.Add(Key{0, 0}, Record{BestScore: 0.4, BestDoc: 0}))
		require.NoError(t, acc.Add(Key{0, 1}, Record{BestScore: 0.3, BestDoc: 1}))

		store := NewMemoryStore()
		report, err := Promote(acc, store, identityResolver, 2000)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Promoted)
	})

	t.Run("promotions never exceed budget", func(t *testing.T) {
		acc := NewAccumulator()
		for i := 0; i < 50; i++ {
			require.NoError(t, acc.Add(Key{0, i}, Record{BestScore: float64(i), BestDoc: 0}))
		}
		store := NewMemoryStore()
		report, err := Promote(acc, store, identityResolver, 10)
		require.NoError(t, err)
		assert.Equal(t, 10, report.Promoted)
		assert.Equal(t, 10, store.Labeled())
	})

	t.Run("non-positive budget promotes nothing", func(t *testing.T) {
		for _, budget := range []int{0, -1} {
			acc := NewAccumulator()
			require.NoError(t, acc.Add(Key{0, 0}, Record{BestScore: 0.9, BestDoc: 0}))
			require.NoError(t, acc.Add(Key{0, 1}, Record{BestScore: 0.8, BestDoc: 1}))

			store := NewMemoryStore()
			report, err := Promote(acc, store, identityResolver, budget)
			require.NoError(t, err)
			assert.Equal(t, 0, report.Promoted, "budget %d", budget)
			assert.Equal(t, 2, report.Considered, "budget %d", budget)
			assert.Equal(t, 0, store.Labeled(), "budget %d", budget)
		}
	})
}

func TestPromoteTieOrder(t *testing.T) {
	acc := NewAccumulator()
	require.NoError(t, acc.Add(Key{0, 0}, Record{BestScore: 0.5, BestDoc: 1}))
	require.NoError(t, acc.Add(Key{0, 1}, Record{BestScore: 0.5, BestDoc: 2}))
	require.NoError(t, acc.Add(Key{0, 2}, Record{BestScore: 0.5, BestDoc: 3}))

	store := NewMemoryStore()
	_, err := Promote(acc, store, identityResolver, 2)
	require.NoError(t, err)

	// Ties resolve by visitation order.
	assert.Equal(t, 1, store.Get(0))
	assert.Equal(t, 2, store.Get(1))
	assert.Equal(t, Unlabeled, store.Get(2))
}

func TestPromoteResolverFailure(t *testing.T) {
	acc := NewAccumulator()
	require.NoError(t, acc.Add(Key{3, 4}, Record{BestScore: 1.0, BestDoc: 0}))

	store := NewMemoryStore()
	_, err := Promote(acc, store, func(Key) (int, error) {
		return 0, fmt.Errorf("unknown coordinates")
	}, 10)
	assert.Error(t, err)
}
