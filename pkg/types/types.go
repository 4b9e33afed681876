package types

// Span is an inclusive [Start, End] token range within a document.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NoSpan is the sentinel span used when an example has no ground-truth
// annotation for a document. The model contract interprets it as "no target".
var NoSpan = Span{Start: -1, End: -1}

// HasAnswerRecord records whether a candidate document lexically contains one
// of a question's accepted answers, and if so where.
type HasAnswerRecord struct {
	HasAnswer bool   `json:"has_answer"`
	Spans     []Span `json:"spans,omitempty"`
}

// Question is one training/evaluation example: a normalized question string
// and the set of accepted ground-truth answers, each pre-tokenized.
type Question struct {
	ID      int
	Text    string
	Answers [][]string
}

// Batch is the per-document-slot view of one loader step: for a single
// candidate-document slot, the batched examples and each example's document
// tokens for that slot.
type Batch struct {
	Size       int
	ExampleIDs []int
	DocTokens  [][]string
}

// Step is one data-loader step: NumDocs batches, one per document slot, in a
// stable order that is identical across repeated passes over the same split.
type Step struct {
	ID   int
	Docs []*Batch
}

// BatchSize returns the number of examples in this step.
func (s *Step) BatchSize() int {
	if len(s.Docs) == 0 {
		return 0
	}
	return s.Docs[0].Size
}

// NumDocs returns the document pool size D for this step.
func (s *Step) NumDocs() int {
	return len(s.Docs)
}

// Prediction holds the reader's top-N span predictions for every example in a
// batch: Starts[i][k] / Ends[i][k] / Scores[i][k] for example i, candidate k.
type Prediction struct {
	Starts [][]int
	Ends   [][]int
	Scores [][]float64
}

// LossStats is the scalar result of one model update call.
type LossStats struct {
	Loss  float64
	Count int
}

// ContextKey is the type used for context values threaded through logging and
// telemetry.
type ContextKey string

// ContextKeyRunID identifies the training run in telemetry records.
const ContextKeyRunID ContextKey = "run_id"
