package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	t.Run("votes accumulate across documents", func(t *testing.T) {
		docs := [][]string{
			{"paris", "is", "nice"},
			{"visit", "Paris"},
			{"lyon", "france"},
		}
		preds := []DocPrediction{
			{Starts: []int{0}, Ends: []int{0}, Scores: []float64{0.8}},
			{Starts: []int{1}, Ends: []int{1}, Scores: []float64{0.3}},
			{Starts: []int{0}, Ends: []int{0}, Scores: []float64{0.5}},
		}
		answer, vote := Aggregate(docs, preds, []float64{1, 1, 1})
		assert.Equal(t, "paris", answer)
		assert.InDelta(t, 1.1, vote, 1e-9)
	})

	t.Run("selection score weights the vote", func(t *testing.T) {
		docs := [][]string{{"paris"}, {"lyon"}}
		preds := []DocPrediction{
			{Starts: []int{0}, Ends: []int{0}, Scores: []float64{0.6}},
			{Starts: []int{0}, Ends: []int{0}, Scores: []float64{0.6}},
		}
		answer, _ := Aggregate(docs, preds, []float64{0.1, 0.9})
		assert.Equal(t, "lyon", answer)
	})

	t.Run("out of range span skipped without aborting", func(t *testing.T) {
		docs := [][]string{{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}}
		preds := []DocPrediction{{
			Starts: []int{50, 1},
			Ends:   []int{52, 1},
			Scores: []float64{0.9, 0.2},
		}}
		answer, vote := Aggregate(docs, preds, []float64{1})
		assert.Equal(t, "b", answer)
		assert.InDelta(t, 0.2, vote, 1e-9)
	})

	t.Run("inverted span skipped", func(t *testing.T) {
		docs := [][]string{{"a", "b"}}
		preds := []DocPrediction{{Starts: []int{1}, Ends: []int{0}, Scores: []float64{1}}}
		answer, _ := Aggregate(docs, preds, []float64{1})
		assert.Equal(t, "", answer)
	})

	t.Run("multi token surface", func(t *testing.T) {
		docs := [][]string{{"New", "York", "City"}}
		preds := []DocPrediction{{Starts: []int{0}, Ends: []int{1}, Scores: []float64{1}}}
		answer, _ := Aggregate(docs, preds, []float64{0.5})
		assert.Equal(t, "new york", answer)
	})
}

func TestVoteBoardDeterminism(t *testing.T) {
	// Equal votes resolve by first-seen order, not map iteration order.
	for trial := 0; trial < 50; trial++ {
		b := NewVoteBoard()
		b.Add("first", 0.5)
		b.Add("second", 0.5)
		b.Add("third", 0.5)
		answer, vote := b.Best()
		require.Equal(t, "first", answer)
		require.InDelta(t, 0.5, vote, 1e-9)
	}
}

func TestVoteBoardEmpty(t *testing.T) {
	answer, vote := NewVoteBoard().Best()
	assert.Equal(t, "", answer)
	assert.Equal(t, 0.0, vote)
}

func TestRecallCounter(t *testing.T) {
	c := NewRecallCounter(3)

	// Question 1: answer only in the second-best document.
	c.Observe([]float64{0.9, 0.5, 0.1}, []bool{false, true, false})
	// Question 2: answer in the best document.
	c.Observe([]float64{0.2, 0.8, 0.4}, []bool{false, true, false})
	// Question 3: no document has the answer.
	c.Observe([]float64{0.3, 0.2, 0.1}, []bool{false, false, false})

	fractions := c.Fractions()
	require.Len(t, fractions, 3)
	assert.InDelta(t, 1.0/3.0, fractions[0], 1e-9)
	assert.InDelta(t, 2.0/3.0, fractions[1], 1e-9)
	assert.InDelta(t, 2.0/3.0, fractions[2], 1e-9)
}

func TestRecallCounterShortHasAnswer(t *testing.T) {
	c := NewRecallCounter(3)

	// More selection scores than presence entries: documents beyond the
	// presence slice are treated as answerless, not indexed.
	c.Observe([]float64{0.1, 0.9, 0.5}, []bool{true})

	fractions := c.Fractions()
	assert.Equal(t, 0.0, fractions[0], "best document has no presence entry")
	assert.Equal(t, 0.0, fractions[1])
	assert.Equal(t, 1.0, fractions[2], "document 0 is ranked last")
}

func TestRecallCounterEmpty(t *testing.T) {
	fractions := NewRecallCounter(2).Fractions()
	assert.Equal(t, []float64{0, 0}, fractions)
}
