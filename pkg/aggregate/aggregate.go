// Package aggregate combines per-document reader predictions and selector
// scores into a single ranked answer per question.
package aggregate

import (
	"strings"
)

// DocPrediction holds one document's top-N span predictions for a single
// example: parallel Starts/Ends/Scores slices, one entry per candidate.
type DocPrediction struct {
	Starts []int
	Ends   []int
	Scores []float64
}

// VoteBoard accumulates weighted votes keyed by answer surface string.
// Identical surface text from different documents lands in the same bucket.
// First-seen insertion order is preserved so ties resolve deterministically
// instead of by map iteration order.
type VoteBoard struct {
	votes map[string]float64
	order []string
}

// NewVoteBoard creates an empty board.
func NewVoteBoard() *VoteBoard {
	return &VoteBoard{votes: make(map[string]float64)}
}

// Add accumulates vote for the given answer string.
func (b *VoteBoard) Add(answer string, vote float64) {
	if _, seen := b.votes[answer]; !seen {
		b.order = append(b.order, answer)
	}
	b.votes[answer] += vote
}

// Best returns the answer with the highest accumulated vote, first-seen
// winning ties. An empty board returns ("", 0).
func (b *VoteBoard) Best() (string, float64) {
	best := ""
	bestVote := 0.0
	for _, answer := range b.order {
		if v := b.votes[answer]; v > bestVote {
			best = answer
			bestVote = v
		}
	}
	return best, bestVote
}

// Len returns the number of distinct answer strings seen.
func (b *VoteBoard) Len() int {
	return len(b.order)
}

// Aggregate votes every candidate span of every document with
// spanScore * documentSelectionScore and returns the best surface answer.
//
// docs[d] is document d's token sequence, preds[d] its reader predictions and
// selScores[d] its selector score. A candidate whose span indices fall
// outside its document is skipped; the model may legally predict past the end
// of a short document and that must not abort the remaining candidates.
func Aggregate(docs [][]string, preds []DocPrediction, selScores []float64) (string, float64) {
	board := NewVoteBoard()
	for d, pred := range preds {
		if d >= len(docs) || d >= len(selScores) {
			break
		}
		tokens := docs[d]
		for k := range pred.Starts {
			if k >= len(pred.Ends) || k >= len(pred.Scores) {
				break
			}
			surface, ok := spanSurface(tokens, pred.Starts[k], pred.Ends[k])
			if !ok {
				continue
			}
			board.Add(surface, pred.Scores[k]*selScores[d])
		}
	}
	return board.Best()
}

// spanSurface extracts the lower-cased joined text of an inclusive span,
// reporting false when the span does not fit the document.
func spanSurface(tokens []string, start, end int) (string, bool) {
	if start < 0 || end < start || end >= len(tokens) {
		return "", false
	}
	return strings.ToLower(strings.Join(tokens[start:end+1], " ")), true
}
