package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/evidential/pkg/types"
)

func TestFindSpansExact(t *testing.T) {
	m := NewMatcher(nil)

	t.Run("single token answer", func(t *testing.T) {
		rec := m.FindSpans([][]string{{"cat"}}, []string{"the", "cat", "sat"}, ModeExact)
		require.True(t, rec.HasAnswer)
		assert.Equal(t, []types.Span{{Start: 1, End: 1}}, rec.Spans)
	})

	t.Run("no match", func(t *testing.T) {
		rec := m.FindSpans([][]string{{"dog"}}, []string{"the", "cat", "sat"}, ModeExact)
		assert.False(t, rec.HasAnswer)
		assert.Empty(t, rec.Spans)
	})

	t.Run("case folding", func(t *testing.T) {
		rec := m.FindSpans([][]string{{"New", "York"}}, []string{"I", "love", "new", "york"}, ModeExact)
		require.True(t, rec.HasAnswer)
		assert.Equal(t, []types.Span{{Start: 2, End: 3}}, rec.Spans)
	})

	t.Run("multiple windows", func(t *testing.T) {
		rec := m.FindSpans([][]string{{"a"}}, []string{"a", "b", "a"}, ModeExact)
		require.True(t, rec.HasAnswer)
		assert.Equal(t, []types.Span{{Start: 0, End: 0}, {Start: 2, End: 2}}, rec.Spans)
	})

	t.Run("answer order then position", func(t *testing.T) {
		rec := m.FindSpans([][]string{{"sat"}, {"cat"}}, []string{"the", "cat", "sat"}, ModeExact)
		require.True(t, rec.HasAnswer)
		assert.Equal(t, []types.Span{{Start: 2, End: 2}, {Start: 1, End: 1}}, rec.Spans)
	})

	t.Run("answer longer than document", func(t *testing.T) {
		rec := m.FindSpans([][]string{{"a", "b", "c", "d"}}, []string{"a", "b"}, ModeExact)
		assert.False(t, rec.HasAnswer)
	})

	t.Run("empty answer matches nothing", func(t *testing.T) {
		rec := m.FindSpans([][]string{{}}, []string{"a", "b"}, ModeExact)
		assert.False(t, rec.HasAnswer)
	})
}

func TestFindSpansRegex(t *testing.T) {
	m := NewMatcher(nil)

	t.Run("pattern extracts fragment", func(t *testing.T) {
		doc := []string{"he", "was", "born", "in", "1912", "today"}
		rec := m.FindSpans([][]string{{`19\d\d`}}, doc, ModeRegex)
		require.True(t, rec.HasAnswer)
		assert.Equal(t, []types.Span{{Start: 4, End: 4}}, rec.Spans)
	})

	t.Run("case insensitive", func(t *testing.T) {
		doc := []string{"the", "Eiffel", "tower"}
		rec := m.FindSpans([][]string{{"EIFFEL"}}, doc, ModeRegex)
		require.True(t, rec.HasAnswer)
		assert.Equal(t, []types.Span{{Start: 1, End: 1}}, rec.Spans)
	})

	t.Run("malformed pattern recovers as no match", func(t *testing.T) {
		rec := m.FindSpans([][]string{{"(["}}, []string{"a", "b"}, ModeRegex)
		assert.False(t, rec.HasAnswer)
		assert.Empty(t, rec.Spans)
	})

	t.Run("alternation", func(t *testing.T) {
		doc := []string{"paris", "and", "lyon"}
		rec := m.FindSpans([][]string{{"paris|lyon"}}, doc, ModeRegex)
		require.True(t, rec.HasAnswer)
		assert.Len(t, rec.Spans, 2)
	})
}
