package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/evidential/pkg/types"
)

func TestGetOrCompute(t *testing.T) {
	t.Run("computes full grid on miss", func(t *testing.T) {
		c := New()
		grid := c.GetOrCompute(0, 3, 2, func(d, i int) types.HasAnswerRecord {
			return types.HasAnswerRecord{HasAnswer: d == i}
		})
		require.Len(t, grid, 3)
		require.Len(t, grid[0], 2)
		assert.True(t, grid[0][0].HasAnswer)
		assert.False(t, grid[0][1].HasAnswer)
		assert.True(t, grid[1][1].HasAnswer)
	})

	t.Run("lookup invoked exactly once per cell across repeated calls", func(t *testing.T) {
		c := New()
		calls := 0
		lookup := func(d, i int) types.HasAnswerRecord {
			calls++
			return types.HasAnswerRecord{HasAnswer: true, Spans: []types.Span{{Start: d, End: i}}}
		}

		first := c.GetOrCompute(7, 4, 3, lookup)
		second := c.GetOrCompute(7, 4, 3, lookup)

		assert.Equal(t, 4*3, calls)
		assert.Equal(t, first, second)
	})

	t.Run("distinct batch ids are independent", func(t *testing.T) {
		c := New()
		lookup := func(d, i int) types.HasAnswerRecord { return types.HasAnswerRecord{} }
		c.GetOrCompute(1, 2, 2, lookup)
		c.GetOrCompute(2, 2, 2, lookup)
		assert.Equal(t, 2, c.Len())

		_, ok := c.Get(1)
		assert.True(t, ok)
		_, ok = c.Get(3)
		assert.False(t, ok)
	})
}
