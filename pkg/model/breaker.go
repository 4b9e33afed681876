package model

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/soundprediction/evidential/pkg/types"
)

// BreakerConfig configures circuit breaking around the model service.
type BreakerConfig struct {
	Enabled          bool
	MaxRequests      uint32
	Interval         int // seconds
	Timeout          int // seconds
	ReadyToTripRatio float64
}

// CircuitBreakerService wraps a Service with circuit breaking. A model
// backend that starts failing consistently (device loss, OOM churn) trips
// the breaker so the run terminates with a clear signal instead of grinding
// through thousands of doomed calls.
type CircuitBreakerService struct {
	svc    Service
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewCircuitBreakerService wraps svc according to cfg.
func NewCircuitBreakerService(svc Service, cfg BreakerConfig, logger *slog.Logger) *CircuitBreakerService {
	if logger == nil {
		logger = slog.Default()
	}

	st := gobreaker.Settings{
		Name:        "model-service",
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("model service circuit breaker state change",
				"name", name, "from", from.String(), "to", to.String())
		},
	}

	return &CircuitBreakerService{
		svc:    svc,
		cb:     gobreaker.NewCircuitBreaker(st),
		logger: logger,
	}
}

func (c *CircuitBreakerService) Predict(ctx context.Context, batch *types.Batch, topN int) (*types.Prediction, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.svc.Predict(ctx, batch, topN)
	})
	if err != nil {
		return nil, err
	}
	return res.(*types.Prediction), nil
}

func (c *CircuitBreakerService) PredictWithDoc(ctx context.Context, step *types.Step) ([][]float64, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.svc.PredictWithDoc(ctx, step)
	})
	if err != nil {
		return nil, err
	}
	return res.([][]float64), nil
}

func (c *CircuitBreakerService) Update(ctx context.Context, batch *types.Batch, targets [][]types.Span, negatives [][]types.Span, hasAnswer []types.HasAnswerRecord) (types.LossStats, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.svc.Update(ctx, batch, targets, negatives, hasAnswer)
	})
	if err != nil {
		return types.LossStats{}, err
	}
	return res.(types.LossStats), nil
}

func (c *CircuitBreakerService) UpdateWithDoc(ctx context.Context, in *UpdateWithDocInput) (types.LossStats, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.svc.UpdateWithDoc(ctx, in)
	})
	if err != nil {
		return types.LossStats{}, err
	}
	return res.(types.LossStats), nil
}

type scoreResult struct {
	probs      []float64
	attentions []Attention
}

func (c *CircuitBreakerService) ScoreWithDoc(ctx context.Context, in *UpdateWithDocInput) ([]float64, []Attention, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		probs, attentions, err := c.svc.ScoreWithDoc(ctx, in)
		if err != nil {
			return nil, err
		}
		return scoreResult{probs: probs, attentions: attentions}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	sr := res.(scoreResult)
	return sr.probs, sr.attentions, nil
}

func (c *CircuitBreakerService) PretrainSelector(ctx context.Context, docs []*types.Batch, hasAnswer [][]types.HasAnswerRecord) (types.LossStats, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.svc.PretrainSelector(ctx, docs, hasAnswer)
	})
	if err != nil {
		return types.LossStats{}, err
	}
	return res.(types.LossStats), nil
}

func (c *CircuitBreakerService) Save(path string) error { return c.svc.Save(path) }
func (c *CircuitBreakerService) Load(path string) error { return c.svc.Load(path) }
func (c *CircuitBreakerService) Checkpoint(path string, epoch int) error {
	return c.svc.Checkpoint(path, epoch)
}
