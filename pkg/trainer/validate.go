package trainer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soundprediction/evidential/pkg/aggregate"
	"github.com/soundprediction/evidential/pkg/dataset"
	"github.com/soundprediction/evidential/pkg/metrics"
	"github.com/soundprediction/evidential/pkg/telemetry"
)

// recallDepth is how many selector ranks the recall oracle reports.
const recallDepth = 10

// trainValidateCap bounds the abbreviated in-training validation pass.
const trainValidateCap = 1000

// ValidationResult summarizes one validation pass.
type ValidationResult struct {
	ExactMatch float64
	F1         float64
	Examples   int
	// Recall[m] is the fraction of questions whose true answer appears in
	// the union of their top-(m+1) documents by selection score.
	Recall []float64
}

// Metric returns the named metric value.
func (r *ValidationResult) Metric(name string) float64 {
	if name == "f1" {
		return r.F1
	}
	return r.ExactMatch
}

// Validate runs one validation pass over loader: per question, combine the
// reader's top-10 spans per document with the selector's document scores into
// a single voted answer, then score it against the ground truths. On the
// train split the pass is abbreviated to a fixed example prefix.
func (t *Trainer) Validate(ctx context.Context, loader *dataset.Loader, split string, epoch int) (*ValidationResult, error) {
	evalTime := metrics.NewTimer()
	em := &metrics.AverageMeter{}
	f1 := &metrics.AverageMeter{}
	recall := aggregate.NewRecallCounter(recallDepth)
	examples := 0

	numSteps := loader.NumSteps()
	for idx := 0; idx < numSteps; idx++ {
		step := loader.Step(idx)
		batchSize := step.BatchSize()
		grid := t.annotations(loader, step)

		selScores, err := t.model.PredictWithDoc(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("selector prediction failed: %w", err)
		}

		preds := make([]*predBatch, step.NumDocs())
		for d := 0; d < step.NumDocs(); d++ {
			pred, err := t.model.Predict(ctx, step.Docs[d], 10)
			if err != nil {
				return nil, fmt.Errorf("reader prediction failed: %w", err)
			}
			preds[d] = &predBatch{starts: pred.Starts, ends: pred.Ends, scores: pred.Scores}
		}

		for i := 0; i < batchSize; i++ {
			docs := make([][]string, step.NumDocs())
			docPreds := make([]aggregate.DocPrediction, step.NumDocs())
			hasAnswer := make([]bool, step.NumDocs())
			for d := 0; d < step.NumDocs(); d++ {
				docs[d] = step.Docs[d].DocTokens[i]
				docPreds[d] = aggregate.DocPrediction{
					Starts: preds[d].starts[i],
					Ends:   preds[d].ends[i],
					Scores: preds[d].scores[i],
				}
				hasAnswer[d] = grid[d][i].HasAnswer
			}

			prediction, _ := aggregate.Aggregate(docs, docPreds, selScores[i])
			recall.Observe(selScores[i], hasAnswer)

			groundTruths := t.groundTruths(loader, step.Docs[0].ExampleIDs[i])
			em.Update(metrics.MaxOverGroundTruths(metrics.ExactMatch, prediction, groundTruths), 1)
			f1.Update(metrics.MaxOverGroundTruths(metrics.F1, prediction, groundTruths), 1)
		}

		examples += batchSize
		if split == "train" && examples >= trainValidateCap {
			break
		}
	}

	result := &ValidationResult{
		ExactMatch: em.Avg(),
		F1:         f1.Avg(),
		Examples:   examples,
		Recall:     recall.Fractions(),
	}

	t.logger.Info("validation",
		"split", split, "epoch", epoch,
		"exact_match", fmt.Sprintf("%.2f", result.ExactMatch*100),
		"f1", fmt.Sprintf("%.2f", result.F1*100),
		"examples", examples,
		"recall", formatRecall(result.Recall),
		"elapsed", evalTime.Elapsed().Round(time.Millisecond))
	t.recordValidation(split, epoch, result)

	return result, nil
}

type predBatch struct {
	starts [][]int
	ends   [][]int
	scores [][]float64
}

// groundTruths joins each accepted answer's tokens into a scorable string.
func (t *Trainer) groundTruths(loader *dataset.Loader, exampleID int) []string {
	answers := loader.Example(exampleID).Answers
	truths := make([]string, 0, len(answers))
	for _, tokens := range answers {
		truths = append(truths, strings.Join(tokens, " "))
	}
	return truths
}

func formatRecall(fractions []float64) []string {
	out := make([]string, len(fractions))
	for i, f := range fractions {
		out[i] = fmt.Sprintf("%.3f", f)
	}
	return out
}

func (t *Trainer) recordValidation(split string, epoch int, result *ValidationResult) {
	if t.telemetry == nil || t.telemetry.Validation == nil {
		return
	}
	err := t.telemetry.Validation.Record(telemetry.ValidationRecord{
		ID:         telemetry.NewID(),
		Timestamp:  time.Now().UTC(),
		RunID:      t.runID,
		Split:      split,
		Epoch:      epoch,
		ExactMatch: result.ExactMatch,
		F1:         result.F1,
		Examples:   result.Examples,
	})
	if err != nil {
		t.logger.Warn("failed to record validation telemetry", "error", err)
	}
}
