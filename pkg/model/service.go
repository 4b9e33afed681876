// Package model defines the contract with the external neural reader and
// selector. The core never looks inside these calls: it supplies batches,
// targets and labels, and consumes scores.
package model

import (
	"context"

	"github.com/soundprediction/evidential/pkg/types"
)

// UpdateWithDocInput carries everything one combined cross-document update
// needs. All per-document slices are in the sampled slot order.
type UpdateWithDocInput struct {
	// Step is a cyclic counter (period 4) threaded through to the model for
	// its own accumulation scheduling; the driver only cycles it.
	Step int

	// Docs are the sampled document batches.
	Docs []*types.Batch

	// PredStarts and PredEnds are the reader's own top-N predictions per
	// document per example, used as pseudo-targets where ground truth is
	// absent: [doc][example][topN].
	PredStarts [][][]int
	PredEnds   [][][]int
	TopN       int

	// Targets holds the ground-truth spans per document per example; an
	// example without a ground-truth match carries the single sentinel
	// types.NoSpan.
	Targets [][][]types.Span

	// Negatives holds negative spans per document per example; may be empty.
	Negatives [][][]types.Span

	// HasAnswer is the annotation grid for the sampled documents.
	HasAnswer [][]types.HasAnswerRecord

	// EvidenceLabels maps each example to its evidence document in sampled
	// slot coordinates, or -1 when this sample carries no evidence for it.
	EvidenceLabels []int
}

// Attention is the selector's best attention over the document pool for one
// example: the maximum score and the document slot that earned it. Doc is -1
// when no document received a usable score.
type Attention struct {
	Score float64
	Doc   int
}

// Service is the blocking contract with the neural reader/selector. Calls
// are issued one at a time by the driver; a failed call terminates the pass.
type Service interface {
	// Predict returns the reader's top-N span predictions for one document
	// batch.
	Predict(ctx context.Context, batch *types.Batch, topN int) (*types.Prediction, error)

	// PredictWithDoc returns the selector's per-document selection scores
	// for every example of a step: scores[example][docSlot].
	PredictWithDoc(ctx context.Context, step *types.Step) ([][]float64, error)

	// Update performs one single-document parameter update.
	Update(ctx context.Context, batch *types.Batch, targets [][]types.Span, negatives [][]types.Span, hasAnswer []types.HasAnswerRecord) (types.LossStats, error)

	// UpdateWithDoc performs one combined parameter update across all
	// sampled documents of a step.
	UpdateWithDoc(ctx context.Context, in *UpdateWithDocInput) (types.LossStats, error)

	// ScoreWithDoc runs the same forward pass as UpdateWithDoc but returns,
	// per example, the model's evidence-acceptance probability and its best
	// attention over the documents, without updating parameters.
	ScoreWithDoc(ctx context.Context, in *UpdateWithDocInput) (probs []float64, attentions []Attention, err error)

	// PretrainSelector trains only the document selector against binary
	// has-answer labels.
	PretrainSelector(ctx context.Context, docs []*types.Batch, hasAnswer [][]types.HasAnswerRecord) (types.LossStats, error)

	// Save persists the current parameters; Load restores them.
	Save(path string) error
	Load(path string) error
	// Checkpoint persists parameters plus optimizer state for resumption at
	// the given epoch.
	Checkpoint(path string, epoch int) error
}
