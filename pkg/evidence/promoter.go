package evidence

import (
	"fmt"
	"sort"
)

// Resolver maps accumulator coordinates back to the owning question id.
type Resolver func(key Key) (questionID int, err error)

// Report summarizes one promotion phase.
type Report struct {
	// Promoted is the number of labels assigned, always <= the budget.
	Promoted int
	// Considered is the number of records with a usable best document.
	Considered int
	// MeanProb and MeanScore average the probability and attention score of
	// the promoted records, for reporting only.
	MeanProb  float64
	MeanScore float64
}

// Promote runs phase 2 of the evidence update: it globally ranks every
// accumulated record by attention score and greedily assigns evidence labels
// to the most confident unlabeled questions, up to budget labels.
//
// Records without a usable best document are skipped. Ties keep the pass's
// visitation order (the sort is stable over insertion order). Questions that
// already carry a label are skipped without consuming budget. Running out of
// eligible records before the budget is exhausted is not an error. A
// non-positive budget promotes nothing; eligible records are still counted.
//
// Global ranking, rather than per-batch top-k, is what keeps iterative
// self-training promoting the K most confident predictions of the whole
// unlabeled pool.
func Promote(acc *Accumulator, store Store, resolve Resolver, budget int) (Report, error) {
	type entry struct {
		key Key
		rec Record
	}

	entries := make([]entry, 0, acc.Len())
	for _, key := range acc.order {
		rec := acc.records[key]
		if rec.BestDoc == Unlabeled {
			continue
		}
		entries = append(entries, entry{key: key, rec: rec})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].rec.BestScore > entries[j].rec.BestScore
	})

	report := Report{Considered: len(entries)}
	var sumProb, sumScore float64
	for _, e := range entries {
		if report.Promoted >= budget {
			break
		}
		questionID, err := resolve(e.key)
		if err != nil {
			return report, fmt.Errorf("failed to resolve record %s: %w", e.key, err)
		}
		if store.Get(questionID) != Unlabeled {
			continue
		}
		if err := store.Promote(questionID, e.rec.BestDoc); err != nil {
			return report, fmt.Errorf("failed to promote record %s: %w", e.key, err)
		}
		report.Promoted++
		sumProb += e.rec.Prob
		sumScore += e.rec.BestScore
	}

	if report.Promoted > 0 {
		report.MeanProb = sumProb / float64(report.Promoted)
		report.MeanScore = sumScore / float64(report.Promoted)
	}
	return report, nil
}
