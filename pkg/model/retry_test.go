package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/evidential/pkg/types"
)

// flakyService fails a configured number of times before succeeding.
type flakyService struct {
	Service

	failures int
	err      error

	predictCalls int
	updateCalls  int
}

func (f *flakyService) Predict(_ context.Context, batch *types.Batch, _ int) (*types.Prediction, error) {
	f.predictCalls++
	if f.predictCalls <= f.failures {
		return nil, f.err
	}
	return &types.Prediction{}, nil
}

func (f *flakyService) UpdateWithDoc(_ context.Context, _ *UpdateWithDocInput) (types.LossStats, error) {
	f.updateCalls++
	return types.LossStats{}, f.err
}

func fastRetryConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:        maxRetries,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryServiceRecoversFromTransientFailures(t *testing.T) {
	flaky := &flakyService{failures: 2, err: errors.New("503 service unavailable")}
	svc := NewRetryService(flaky, fastRetryConfig(3))

	pred, err := svc.Predict(context.Background(), &types.Batch{}, 1)

	require.NoError(t, err)
	assert.NotNil(t, pred)
	assert.Equal(t, 3, flaky.predictCalls)
}

func TestRetryServiceGivesUpAfterMaxRetries(t *testing.T) {
	flaky := &flakyService{failures: 10, err: errors.New("connection refused")}
	svc := NewRetryService(flaky, fastRetryConfig(2))

	_, err := svc.Predict(context.Background(), &types.Batch{}, 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, 3, flaky.predictCalls)
}

func TestRetryServiceDoesNotRetryNonRetryableErrors(t *testing.T) {
	flaky := &flakyService{failures: 10, err: errors.New("400 bad request: malformed batch")}
	svc := NewRetryService(flaky, fastRetryConfig(3))

	_, err := svc.Predict(context.Background(), &types.Batch{}, 1)

	require.Error(t, err)
	assert.Equal(t, 1, flaky.predictCalls)
}

func TestRetryServiceNeverRetriesUpdates(t *testing.T) {
	flaky := &flakyService{err: errors.New("503 service unavailable")}
	svc := NewRetryService(flaky, fastRetryConfig(3))

	_, err := svc.UpdateWithDoc(context.Background(), &UpdateWithDocInput{})

	require.Error(t, err)
	assert.Equal(t, 1, flaky.updateCalls)
}

func TestRetryServiceHonorsContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	flaky := &flakyService{failures: 10, err: errors.New("timeout")}
	svc := NewRetryService(flaky, &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      time.Minute,
		MaxDelay:          time.Minute,
		BackoffMultiplier: 2.0,
	})

	_, err := svc.Predict(ctx, &types.Batch{}, 1)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, flaky.predictCalls)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(errors.New("circuit breaker is open")))
	assert.True(t, isRetryableError(errors.New("502 bad gateway")))
	assert.True(t, isRetryableError(errors.New("request timeout exceeded")))
}
