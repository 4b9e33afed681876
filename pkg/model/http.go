package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/soundprediction/evidential/pkg/types"
)

// HTTPConfig configures the HTTP model backend.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPService talks to a neural reader/selector served over HTTP. The backend
// owns the parameters and the optimizer; this client only moves batches and
// scores. Requests are issued one at a time and block until the backend
// answers.
type HTTPService struct {
	config     HTTPConfig
	httpClient *http.Client
}

// NewHTTPService creates a client for the backend at config.BaseURL.
func NewHTTPService(config HTTPConfig) *HTTPService {
	if config.Timeout <= 0 {
		// Combined updates over large document pools are slow.
		config.Timeout = 10 * time.Minute
	}
	return &HTTPService{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// batchPayload is the wire form of one document batch.
type batchPayload struct {
	Size       int        `json:"size"`
	ExampleIDs []int      `json:"example_ids"`
	DocTokens  [][]string `json:"doc_tokens"`
}

func toBatchPayload(b *types.Batch) batchPayload {
	return batchPayload{Size: b.Size, ExampleIDs: b.ExampleIDs, DocTokens: b.DocTokens}
}

func toBatchPayloads(docs []*types.Batch) []batchPayload {
	out := make([]batchPayload, len(docs))
	for i, b := range docs {
		out[i] = toBatchPayload(b)
	}
	return out
}

type predictRequest struct {
	Batch batchPayload `json:"batch"`
	TopN  int          `json:"top_n"`
}

type predictResponse struct {
	Starts [][]int     `json:"starts"`
	Ends   [][]int     `json:"ends"`
	Scores [][]float64 `json:"scores"`
}

type predictWithDocRequest struct {
	Step int            `json:"step"`
	Docs []batchPayload `json:"docs"`
}

type predictWithDocResponse struct {
	Scores [][]float64 `json:"scores"`
}

type updateRequest struct {
	Batch     batchPayload            `json:"batch"`
	Targets   [][]types.Span          `json:"targets"`
	Negatives [][]types.Span          `json:"negatives,omitempty"`
	HasAnswer []types.HasAnswerRecord `json:"has_answer"`
}

type updateWithDocRequest struct {
	Step           int                       `json:"step"`
	Docs           []batchPayload            `json:"docs"`
	PredStarts     [][][]int                 `json:"pred_starts"`
	PredEnds       [][][]int                 `json:"pred_ends"`
	TopN           int                       `json:"top_n"`
	Targets        [][][]types.Span          `json:"targets"`
	Negatives      [][][]types.Span          `json:"negatives,omitempty"`
	HasAnswer      [][]types.HasAnswerRecord `json:"has_answer"`
	EvidenceLabels []int                     `json:"evidence_labels,omitempty"`
	ReturnProb     bool                      `json:"return_prob"`
}

type attentionPayload struct {
	Score float64 `json:"score"`
	Doc   int     `json:"doc"`
}

type scoreWithDocResponse struct {
	Probs      []float64          `json:"probs"`
	Attentions []attentionPayload `json:"attentions"`
}

type lossResponse struct {
	Loss  float64 `json:"loss"`
	Count int     `json:"count"`
}

type pretrainSelectorRequest struct {
	Docs      []batchPayload            `json:"docs"`
	HasAnswer [][]types.HasAnswerRecord `json:"has_answer"`
}

type checkpointRequest struct {
	Path  string `json:"path"`
	Epoch int    `json:"epoch,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toUpdateWithDocRequest(in *UpdateWithDocInput, returnProb bool) updateWithDocRequest {
	return updateWithDocRequest{
		Step:           in.Step,
		Docs:           toBatchPayloads(in.Docs),
		PredStarts:     in.PredStarts,
		PredEnds:       in.PredEnds,
		TopN:           in.TopN,
		Targets:        in.Targets,
		Negatives:      in.Negatives,
		HasAnswer:      in.HasAnswer,
		EvidenceLabels: in.EvidenceLabels,
		ReturnProb:     returnProb,
	}
}

// post sends one JSON request and decodes the JSON response into out.
func (s *HTTPService) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := s.config.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model backend request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read model backend response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("model backend error (status %d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("model backend error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode model backend response: %w", err)
		}
	}
	return nil
}

func (s *HTTPService) Predict(ctx context.Context, batch *types.Batch, topN int) (*types.Prediction, error) {
	var resp predictResponse
	err := s.post(ctx, "/v1/predict", predictRequest{Batch: toBatchPayload(batch), TopN: topN}, &resp)
	if err != nil {
		return nil, err
	}
	return &types.Prediction{Starts: resp.Starts, Ends: resp.Ends, Scores: resp.Scores}, nil
}

func (s *HTTPService) PredictWithDoc(ctx context.Context, step *types.Step) ([][]float64, error) {
	var resp predictWithDocResponse
	err := s.post(ctx, "/v1/predict_with_doc", predictWithDocRequest{Step: step.ID, Docs: toBatchPayloads(step.Docs)}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Scores, nil
}

func (s *HTTPService) Update(ctx context.Context, batch *types.Batch, targets [][]types.Span, negatives [][]types.Span, hasAnswer []types.HasAnswerRecord) (types.LossStats, error) {
	var resp lossResponse
	err := s.post(ctx, "/v1/update", updateRequest{
		Batch:     toBatchPayload(batch),
		Targets:   targets,
		Negatives: negatives,
		HasAnswer: hasAnswer,
	}, &resp)
	if err != nil {
		return types.LossStats{}, err
	}
	return types.LossStats{Loss: resp.Loss, Count: resp.Count}, nil
}

func (s *HTTPService) UpdateWithDoc(ctx context.Context, in *UpdateWithDocInput) (types.LossStats, error) {
	var resp lossResponse
	if err := s.post(ctx, "/v1/update_with_doc", toUpdateWithDocRequest(in, false), &resp); err != nil {
		return types.LossStats{}, err
	}
	return types.LossStats{Loss: resp.Loss, Count: resp.Count}, nil
}

func (s *HTTPService) ScoreWithDoc(ctx context.Context, in *UpdateWithDocInput) ([]float64, []Attention, error) {
	var resp scoreWithDocResponse
	if err := s.post(ctx, "/v1/update_with_doc", toUpdateWithDocRequest(in, true), &resp); err != nil {
		return nil, nil, err
	}
	attentions := make([]Attention, len(resp.Attentions))
	for i, a := range resp.Attentions {
		attentions[i] = Attention{Score: a.Score, Doc: a.Doc}
	}
	return resp.Probs, attentions, nil
}

func (s *HTTPService) PretrainSelector(ctx context.Context, docs []*types.Batch, hasAnswer [][]types.HasAnswerRecord) (types.LossStats, error) {
	var resp lossResponse
	err := s.post(ctx, "/v1/pretrain_selector", pretrainSelectorRequest{
		Docs:      toBatchPayloads(docs),
		HasAnswer: hasAnswer,
	}, &resp)
	if err != nil {
		return types.LossStats{}, err
	}
	return types.LossStats{Loss: resp.Loss, Count: resp.Count}, nil
}

func (s *HTTPService) Save(path string) error {
	return s.post(context.Background(), "/v1/save", checkpointRequest{Path: path}, nil)
}

func (s *HTTPService) Load(path string) error {
	return s.post(context.Background(), "/v1/load", checkpointRequest{Path: path}, nil)
}

func (s *HTTPService) Checkpoint(path string, epoch int) error {
	return s.post(context.Background(), "/v1/checkpoint", checkpointRequest{Path: path, Epoch: epoch}, nil)
}
