// Package metrics implements the answer-accuracy measures used during
// validation and best-checkpoint selection.
package metrics

import (
	"strings"
	"unicode"
)

// NormalizeAnswer lower-cases, strips punctuation and articles, and collapses
// whitespace, the standard normalization applied before comparing predicted
// and ground-truth answers.
func NormalizeAnswer(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}

	var kept []string
	for _, tok := range strings.Fields(b.String()) {
		if tok == "a" || tok == "an" || tok == "the" {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// ExactMatch returns 1 when the normalized prediction equals the normalized
// ground truth, else 0.
func ExactMatch(prediction, groundTruth string) float64 {
	if NormalizeAnswer(prediction) == NormalizeAnswer(groundTruth) {
		return 1
	}
	return 0
}

// F1 returns the token-level F1 overlap between prediction and ground truth
// after normalization.
func F1(prediction, groundTruth string) float64 {
	predTokens := strings.Fields(NormalizeAnswer(prediction))
	truthTokens := strings.Fields(NormalizeAnswer(groundTruth))
	if len(predTokens) == 0 || len(truthTokens) == 0 {
		return 0
	}

	counts := make(map[string]int, len(truthTokens))
	for _, tok := range truthTokens {
		counts[tok]++
	}
	common := 0
	for _, tok := range predTokens {
		if counts[tok] > 0 {
			counts[tok]--
			common++
		}
	}
	if common == 0 {
		return 0
	}

	precision := float64(common) / float64(len(predTokens))
	recall := float64(common) / float64(len(truthTokens))
	return 2 * precision * recall / (precision + recall)
}

// MaxOverGroundTruths applies score against every accepted ground truth and
// returns the maximum.
func MaxOverGroundTruths(score func(prediction, groundTruth string) float64, prediction string, groundTruths []string) float64 {
	best := 0.0
	for _, truth := range groundTruths {
		if s := score(prediction, truth); s > best {
			best = s
		}
	}
	return best
}
