package trainer

import (
	"context"
	"fmt"
	"time"

	"github.com/soundprediction/evidential/pkg/evidence"
	"github.com/soundprediction/evidential/pkg/metrics"
	"github.com/soundprediction/evidential/pkg/model"
	"github.com/soundprediction/evidential/pkg/sampler"
	"github.com/soundprediction/evidential/pkg/telemetry"
	"github.com/soundprediction/evidential/pkg/types"
)

// UpdateEvidence runs the two-phase evidence update over the train split.
//
// Phase 1 walks every step in identity document order (full-pool coverage,
// no shuffle), scores it with the model without updating parameters, and
// accumulates one confidence record per example. Phase 2 globally ranks the
// records and promotes up to the configured budget of new labels into the
// store. The store is not persisted here; the caller decides when to write
// it out.
func (t *Trainer) UpdateEvidence(ctx context.Context, epoch int) (evidence.Report, error) {
	budget := t.cfg.Evidence.TopK
	t.logger.Info("update evidence", "top_k", budget)

	acc := evidence.NewAccumulator()
	probMeter := &metrics.AverageMeter{}
	attMeter := &metrics.AverageMeter{}
	epochTime := metrics.NewTimer()
	identity := sampler.Identity{}
	numSteps := t.train.NumSteps()

	for idx := 0; idx < numSteps; idx++ {
		step := t.train.Step(idx)
		batchSize := step.BatchSize()
		grid := t.annotations(t.train, step)

		for _, id := range step.Docs[0].ExampleIDs {
			if err := t.store.Ensure(id); err != nil {
				return evidence.Report{}, fmt.Errorf("failed to initialize evidence labels: %w", err)
			}
		}

		order, _ := identity.SampleOrder(step.NumDocs())
		hasAnswer := make([][]types.HasAnswerRecord, len(order))
		for slot, d := range order {
			hasAnswer[slot] = grid[d]
		}

		predStarts, predEnds, _, err := t.predictAll(ctx, step.Docs, t.cfg.Train.TopN)
		if err != nil {
			return evidence.Report{}, err
		}

		probs, attentions, err := t.model.ScoreWithDoc(ctx, &model.UpdateWithDocInput{
			Step:       t.updateStep,
			Docs:       step.Docs,
			PredStarts: predStarts,
			PredEnds:   predEnds,
			TopN:       t.cfg.Train.TopN,
			Targets:    targetsFor(grid, order, batchSize),
			HasAnswer:  hasAnswer,
		})
		if err != nil {
			return evidence.Report{}, fmt.Errorf("scoring failed at step %d: %w", idx, err)
		}
		t.updateStep = (t.updateStep + 1) % 4

		for i := 0; i < batchSize; i++ {
			probMeter.Update(probs[i], 1)
			attMeter.Update(attentions[i].Score, 1)
			err := acc.Add(evidence.Key{Batch: idx, Index: i}, evidence.Record{
				Prob:      probs[i],
				BestScore: attentions[i].Score,
				BestDoc:   attentions[i].Doc,
			})
			if err != nil {
				return evidence.Report{}, fmt.Errorf("confidence accumulation failed: %w", err)
			}
		}

		if idx%t.cfg.Train.DisplayIter == 0 {
			t.logger.Info("update evidence",
				"epoch", epoch, "iter", fmt.Sprintf("%d/%d", idx, numSteps),
				"avg_prob", probMeter.Avg(), "avg_attention", attMeter.Avg(),
				"elapsed", epochTime.Elapsed().Round(time.Millisecond))
			t.publish("promoting", epoch, idx, 0)
		}
	}

	report, err := evidence.Promote(acc, t.store, func(key evidence.Key) (int, error) {
		id, ok := t.train.ExampleIDAt(key.Batch, key.Index)
		if !ok {
			return 0, fmt.Errorf("no example at batch %d index %d", key.Batch, key.Index)
		}
		return id, nil
	}, budget)
	if err != nil {
		return report, fmt.Errorf("promotion failed: %w", err)
	}

	t.logger.Info("update evidence done",
		"epoch", epoch,
		"promoted", report.Promoted, "considered", report.Considered,
		"labeled_total", t.store.Labeled(),
		"avg_prob", report.MeanProb, "avg_attention", report.MeanScore,
		"elapsed", epochTime.Elapsed().Round(time.Millisecond))
	t.recordPromotion(epoch, budget, report)
	if t.tracker != nil {
		t.tracker.SetEvidence(t.store.Labeled(), report.Promoted)
	}

	return report, nil
}

func (t *Trainer) recordPromotion(epoch, budget int, report evidence.Report) {
	if t.telemetry == nil || t.telemetry.Promotion == nil {
		return
	}
	err := t.telemetry.Promotion.Record(telemetry.PromotionRecord{
		ID:         telemetry.NewID(),
		Timestamp:  time.Now().UTC(),
		RunID:      t.runID,
		Epoch:      epoch,
		Promoted:   report.Promoted,
		Considered: report.Considered,
		Budget:     budget,
		MeanProb:   report.MeanProb,
		MeanScore:  report.MeanScore,
	})
	if err != nil {
		t.logger.Warn("failed to record promotion telemetry", "error", err)
	}
}
