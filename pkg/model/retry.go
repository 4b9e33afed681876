package model

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/soundprediction/evidential/pkg/types"
)

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int
	// InitialDelay is the delay before the first retry (default: 1 second)
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries (default: 60 seconds)
	MaxDelay time.Duration
	// BackoffMultiplier is the exponential backoff factor (default: 2.0)
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryService wraps a Service and retries transient failures of read-only
// calls with exponential backoff.
//
// Only Predict, PredictWithDoc and ScoreWithDoc are retried. Update calls
// apply a gradient step on the backend; a call that succeeded there but
// failed in transport would be double-applied on retry, so they pass through
// unretried.
type RetryService struct {
	svc    Service
	config *RetryConfig
}

// NewRetryService wraps svc with retry behavior.
func NewRetryService(svc Service, config *RetryConfig) *RetryService {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 1 * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 60 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}

	return &RetryService{
		svc:    svc,
		config: config,
	}
}

// retry runs call up to MaxRetries+1 times, backing off between attempts.
func retry[T any](ctx context.Context, cfg *RetryConfig, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(cfg.delay(attempt)):
			case <-ctx.Done():
				return zero, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}

		result, err := call()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

func (r *RetryService) Predict(ctx context.Context, batch *types.Batch, topN int) (*types.Prediction, error) {
	return retry(ctx, r.config, func() (*types.Prediction, error) {
		return r.svc.Predict(ctx, batch, topN)
	})
}

func (r *RetryService) PredictWithDoc(ctx context.Context, step *types.Step) ([][]float64, error) {
	return retry(ctx, r.config, func() ([][]float64, error) {
		return r.svc.PredictWithDoc(ctx, step)
	})
}

func (r *RetryService) ScoreWithDoc(ctx context.Context, in *UpdateWithDocInput) ([]float64, []Attention, error) {
	res, err := retry(ctx, r.config, func() (scoreResult, error) {
		probs, attentions, err := r.svc.ScoreWithDoc(ctx, in)
		if err != nil {
			return scoreResult{}, err
		}
		return scoreResult{probs: probs, attentions: attentions}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res.probs, res.attentions, nil
}

func (r *RetryService) Update(ctx context.Context, batch *types.Batch, targets [][]types.Span, negatives [][]types.Span, hasAnswer []types.HasAnswerRecord) (types.LossStats, error) {
	return r.svc.Update(ctx, batch, targets, negatives, hasAnswer)
}

func (r *RetryService) UpdateWithDoc(ctx context.Context, in *UpdateWithDocInput) (types.LossStats, error) {
	return r.svc.UpdateWithDoc(ctx, in)
}

func (r *RetryService) PretrainSelector(ctx context.Context, docs []*types.Batch, hasAnswer [][]types.HasAnswerRecord) (types.LossStats, error) {
	return r.svc.PretrainSelector(ctx, docs, hasAnswer)
}

func (r *RetryService) Save(path string) error { return r.svc.Save(path) }
func (r *RetryService) Load(path string) error { return r.svc.Load(path) }
func (r *RetryService) Checkpoint(path string, epoch int) error {
	return r.svc.Checkpoint(path, epoch)
}

// delay computes the backoff for a given retry attempt.
func (c *RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}

// isRetryableError determines if an error is worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"500", "internal server error",
		"502", "bad gateway",
		"503", "service unavailable",
		"504", "gateway timeout",
		"timeout",
		"connection reset",
		"connection refused",
		"temporary failure",
		"too many requests",
		"429",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	type httpErrorWithStatusCode interface {
		HTTPStatusCode() int
	}
	if httpErr, ok := err.(httpErrorWithStatusCode); ok {
		code := httpErr.HTTPStatusCode()
		if code >= 500 || code == http.StatusTooManyRequests {
			return true
		}
	}

	return false
}
