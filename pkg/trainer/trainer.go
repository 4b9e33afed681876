// Package trainer drives the self-training loop: epoch passes over the data,
// periodic validation, and the end-of-run evidence update that turns the
// model's most confident predictions into persisted pseudo-labels.
package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/soundprediction/evidential/pkg/cache"
	"github.com/soundprediction/evidential/pkg/checkpoint"
	"github.com/soundprediction/evidential/pkg/config"
	"github.com/soundprediction/evidential/pkg/dataset"
	"github.com/soundprediction/evidential/pkg/evidence"
	"github.com/soundprediction/evidential/pkg/match"
	"github.com/soundprediction/evidential/pkg/metrics"
	"github.com/soundprediction/evidential/pkg/model"
	"github.com/soundprediction/evidential/pkg/sampler"
	"github.com/soundprediction/evidential/pkg/server"
	"github.com/soundprediction/evidential/pkg/telemetry"
	"github.com/soundprediction/evidential/pkg/types"
)

// Telemetry bundles the per-concern Parquet recorders. Any of the fields, or
// the bundle itself, may be nil; recording is then skipped.
type Telemetry struct {
	Train      *telemetry.Recorder[telemetry.TrainRecord]
	Validation *telemetry.Recorder[telemetry.ValidationRecord]
	Promotion  *telemetry.Recorder[telemetry.PromotionRecord]
}

// Close flushes and closes every recorder.
func (t *Telemetry) Close() error {
	if t == nil {
		return nil
	}
	var firstErr error
	for _, c := range []interface{ Close() error }{t.Train, t.Validation, t.Promotion} {
		if c == nil {
			continue
		}
		if err := c.Close(); firstErr == nil && err != nil {
			firstErr = err
		}
	}
	return firstErr
}

// Params carries everything a Trainer needs. Loaders, caches, the label store
// and the accumulator are owned by one self-training round and handed in by
// reference.
type Params struct {
	Config  *config.Config
	Model   model.Service
	Matcher *match.Matcher
	Mode    match.Mode

	Train *dataset.Loader
	Dev   *dataset.Loader
	Test  *dataset.Loader

	Store   evidence.Store
	Sampler sampler.Strategy

	Logger    *slog.Logger
	Tracker   *server.Tracker
	Telemetry *Telemetry
	RunID     string

	// ModelFile is where the best-validation model is saved.
	ModelFile string
	// SaveEvidenceFile, when non-empty, triggers the end-of-run evidence
	// update and names the file the labels are persisted to.
	SaveEvidenceFile string

	// Checkpoints, when non-nil, records per-epoch run progress under
	// CheckpointName so an interrupted run resumes at the next epoch.
	Checkpoints    *checkpoint.Manager
	CheckpointName string
}

// Trainer runs training rounds. All cache, accumulator and label-store
// mutation happens on the calling goroutine; model calls block one at a time.
type Trainer struct {
	cfg     *config.Config
	model   model.Service
	matcher *match.Matcher
	mode    match.Mode

	train *dataset.Loader
	dev   *dataset.Loader
	test  *dataset.Loader

	// One annotation cache per split, alive for the whole round.
	caches map[*dataset.Loader]*cache.HasAnswerCache

	store   evidence.Store
	sampler sampler.Strategy

	logger    *slog.Logger
	tracker   *server.Tracker
	telemetry *Telemetry
	runID     string

	modelFile        string
	saveEvidenceFile string

	checkpoints    *checkpoint.Manager
	checkpointName string

	// updateStep cycles with period 4 across update calls; the model uses it
	// for gradient-accumulation scheduling.
	updateStep int
	bestValid  float64
}

// New creates a Trainer.
func New(p Params) *Trainer {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	smp := p.Sampler
	if smp == nil {
		smp = sampler.NewUniform(p.Config.Train.Seed)
	}
	t := &Trainer{
		cfg:              p.Config,
		model:            p.Model,
		matcher:          p.Matcher,
		mode:             p.Mode,
		train:            p.Train,
		dev:              p.Dev,
		test:             p.Test,
		caches:           make(map[*dataset.Loader]*cache.HasAnswerCache),
		store:            p.Store,
		sampler:          smp,
		logger:           logger,
		tracker:          p.Tracker,
		telemetry:        p.Telemetry,
		runID:            p.RunID,
		modelFile:        p.ModelFile,
		saveEvidenceFile: p.SaveEvidenceFile,
		checkpoints:      p.Checkpoints,
		checkpointName:   p.CheckpointName,
	}
	for _, l := range []*dataset.Loader{p.Train, p.Dev, p.Test} {
		if l != nil {
			t.caches[l] = cache.New()
		}
	}
	return t
}

// annotations returns the HasAnswer grid for one step of loader, memoized per
// step id for the lifetime of the round.
func (t *Trainer) annotations(loader *dataset.Loader, step *types.Step) cache.Grid {
	c := t.caches[loader]
	return c.GetOrCompute(step.ID, step.NumDocs(), step.BatchSize(), func(docSlot, i int) types.HasAnswerRecord {
		ex := loader.Example(step.Docs[docSlot].ExampleIDs[i])
		return t.matcher.FindSpans(ex.Answers, step.Docs[docSlot].DocTokens[i], t.mode)
	})
}

// targetsFor builds per-document ground-truth span targets from an annotation
// grid in the given document order. Cells without a match carry the single
// NoSpan sentinel.
func targetsFor(grid cache.Grid, order []int, batchSize int) [][][]types.Span {
	targets := make([][][]types.Span, len(order))
	for slot, d := range order {
		targets[slot] = make([][]types.Span, batchSize)
		for i := 0; i < batchSize; i++ {
			if grid[d][i].HasAnswer {
				targets[slot][i] = grid[d][i].Spans
			} else {
				targets[slot][i] = []types.Span{types.NoSpan}
			}
		}
	}
	return targets
}

// predictAll runs the reader's top-N prediction over the given documents.
func (t *Trainer) predictAll(ctx context.Context, docs []*types.Batch, topN int) (starts, ends [][][]int, scores [][][]float64, err error) {
	starts = make([][][]int, len(docs))
	ends = make([][][]int, len(docs))
	scores = make([][][]float64, len(docs))
	for slot, batch := range docs {
		pred, err := t.model.Predict(ctx, batch, topN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("reader prediction failed: %w", err)
		}
		starts[slot] = pred.Starts
		ends[slot] = pred.Ends
		scores[slot] = pred.Scores
	}
	return starts, ends, scores, nil
}

// translateLabels maps each example's stored evidence label from original
// document coordinates into the current sampled slot order. A label whose
// document was not drawn, and the Unlabeled sentinel itself, both come out as
// Unlabeled; consumers must treat that as "no evidence in this sample", never
// as slot 0.
func (t *Trainer) translateLabels(ids []int, inverse map[int]int) []int {
	labels := make([]int, len(ids))
	for i, id := range ids {
		slot, ok := inverse[t.store.Get(id)]
		if !ok {
			slot = evidence.Unlabeled
		}
		labels[i] = slot
	}
	return labels
}

// TrainEpoch runs one epoch of combined reader+selector training.
func (t *Trainer) TrainEpoch(ctx context.Context, epoch int) error {
	trainLoss := &metrics.AverageMeter{}
	epochTime := metrics.NewTimer()
	numSteps := t.train.NumSteps()

	for idx := 0; idx < numSteps; idx++ {
		step := t.train.Step(idx)
		batchSize := step.BatchSize()
		grid := t.annotations(t.train, step)

		ids := step.Docs[0].ExampleIDs
		for _, id := range ids {
			if err := t.store.Ensure(id); err != nil {
				return fmt.Errorf("failed to initialize evidence labels: %w", err)
			}
		}

		order, inverse := t.sampler.SampleOrder(step.NumDocs())
		docs := make([]*types.Batch, len(order))
		hasAnswer := make([][]types.HasAnswerRecord, len(order))
		for slot, d := range order {
			docs[slot] = step.Docs[d]
			hasAnswer[slot] = grid[d]
		}

		predStarts, predEnds, _, err := t.predictAll(ctx, docs, t.cfg.Train.TopN)
		if err != nil {
			return err
		}

		loss, err := t.model.UpdateWithDoc(ctx, &model.UpdateWithDocInput{
			Step:           t.updateStep,
			Docs:           docs,
			PredStarts:     predStarts,
			PredEnds:       predEnds,
			TopN:           t.cfg.Train.TopN,
			Targets:        targetsFor(grid, order, batchSize),
			HasAnswer:      hasAnswer,
			EvidenceLabels: t.translateLabels(ids, inverse),
		})
		if err != nil {
			return fmt.Errorf("update failed at step %d: %w", idx, err)
		}
		trainLoss.Update(loss.Loss, loss.Count)
		t.updateStep = (t.updateStep + 1) % 4

		if idx%t.cfg.Train.DisplayIter == 0 {
			t.logger.Info("train",
				"epoch", epoch, "iter", fmt.Sprintf("%d/%d", idx, numSteps),
				"loss", trainLoss.Avg(), "elapsed", epochTime.Elapsed().Round(time.Millisecond))
			t.recordTrain("all", epoch, idx, trainLoss.Avg())
			t.publish("training", epoch, idx, trainLoss.Avg())
			trainLoss.Reset()
		}
		if idx%t.cfg.Train.ValidateEvery == t.cfg.Train.ValidateEvery-1 {
			if _, err := t.Validate(ctx, t.train, "train", epoch); err != nil {
				return err
			}
		}
	}

	t.logger.Info("train epoch done", "epoch", epoch, "elapsed", epochTime.Elapsed().Round(time.Millisecond))

	if t.cfg.Train.Checkpoint {
		if err := t.model.Checkpoint(t.modelFile+".checkpoint", epoch+1); err != nil {
			return fmt.Errorf("failed to checkpoint: %w", err)
		}
	}
	return nil
}

// PretrainReader runs one epoch of reader-only pretraining. Every document is
// visited in original order; documents without a ground-truth span train
// against the model's own current top-1 prediction.
func (t *Trainer) PretrainReader(ctx context.Context, epoch int) error {
	trainLoss := &metrics.AverageMeter{}
	epochTime := metrics.NewTimer()
	numSteps := t.train.NumSteps()
	countAns, countTot := 0, 0

	for idx := 0; idx < numSteps; idx++ {
		step := t.train.Step(idx)
		batchSize := step.BatchSize()
		grid := t.annotations(t.train, step)

		for d := 0; d < step.NumDocs(); d++ {
			batch := step.Docs[d]
			pred, err := t.model.Predict(ctx, batch, 1)
			if err != nil {
				return fmt.Errorf("reader prediction failed: %w", err)
			}
			targets := make([][]types.Span, batchSize)
			for i := 0; i < batchSize; i++ {
				if grid[d][i].HasAnswer {
					countAns += len(grid[d][i].Spans)
					countTot++
					targets[i] = grid[d][i].Spans
				} else {
					targets[i] = []types.Span{{Start: pred.Starts[i][0], End: pred.Ends[i][0]}}
				}
			}
			loss, err := t.model.Update(ctx, batch, targets, nil, grid[d])
			if err != nil {
				return fmt.Errorf("reader update failed at step %d doc %d: %w", idx, d, err)
			}
			trainLoss.Update(loss.Loss, loss.Count)
		}

		if idx%t.cfg.Train.DisplayIter == 0 {
			t.logger.Info("pretrain reader",
				"epoch", epoch, "iter", fmt.Sprintf("%d/%d", idx, numSteps),
				"loss", trainLoss.Avg(),
				"span_coverage", float64(countAns)/float64(countTot+1),
				"elapsed", epochTime.Elapsed().Round(time.Millisecond))
			t.recordTrain("reader", epoch, idx, trainLoss.Avg())
			t.publish("pretraining", epoch, idx, trainLoss.Avg())
			trainLoss.Reset()
		}
	}

	t.logger.Info("pretrain reader epoch done", "epoch", epoch, "elapsed", epochTime.Elapsed().Round(time.Millisecond))
	return nil
}

// PretrainSelector runs one epoch of selector-only pretraining against the
// binary has-answer labels, with weighted-random document subsampling.
func (t *Trainer) PretrainSelector(ctx context.Context, epoch int) error {
	trainLoss := &metrics.AverageMeter{}
	epochTime := metrics.NewTimer()
	numSteps := t.train.NumSteps()
	totAns, totNum := 0, 0

	for idx := 0; idx < numSteps; idx++ {
		step := t.train.Step(idx)
		batchSize := step.BatchSize()
		grid := t.annotations(t.train, step)

		for d := 0; d < step.NumDocs(); d++ {
			for i := 0; i < batchSize; i++ {
				if grid[d][i].HasAnswer {
					totAns++
				}
				totNum++
			}
		}

		order, _ := t.sampler.SampleOrder(step.NumDocs())
		docs := make([]*types.Batch, len(order))
		hasAnswer := make([][]types.HasAnswerRecord, len(order))
		for slot, d := range order {
			docs[slot] = step.Docs[d]
			hasAnswer[slot] = grid[d]
		}

		loss, err := t.model.PretrainSelector(ctx, docs, hasAnswer)
		if err != nil {
			return fmt.Errorf("selector update failed at step %d: %w", idx, err)
		}
		trainLoss.Update(loss.Loss, loss.Count)

		if idx%t.cfg.Train.DisplayIter == 0 {
			t.logger.Info("pretrain selector",
				"epoch", epoch, "iter", fmt.Sprintf("%d/%d", idx, numSteps),
				"loss", trainLoss.Avg(),
				"answer_coverage", float64(totAns)/float64(totNum),
				"elapsed", epochTime.Elapsed().Round(time.Millisecond))
			t.recordTrain("selector", epoch, idx, trainLoss.Avg())
			t.publish("pretraining", epoch, idx, trainLoss.Avg())
			trainLoss.Reset()
		}
	}

	t.logger.Info("pretrain selector epoch done",
		"epoch", epoch, "answered", totAns, "total", totNum,
		"elapsed", epochTime.Elapsed().Round(time.Millisecond))
	return nil
}

func (t *Trainer) publish(state string, epoch, step int, loss float64) {
	if t.tracker != nil {
		t.tracker.Publish(state, epoch, step, loss)
	}
}

func (t *Trainer) recordTrain(mode string, epoch, step int, loss float64) {
	if t.telemetry == nil || t.telemetry.Train == nil {
		return
	}
	err := t.telemetry.Train.Record(telemetry.TrainRecord{
		ID:        telemetry.NewID(),
		Timestamp: time.Now().UTC(),
		RunID:     t.runID,
		Mode:      mode,
		Epoch:     epoch,
		Step:      step,
		Loss:      loss,
	})
	if err != nil {
		t.logger.Warn("failed to record training telemetry", "error", err)
	}
}
