package parallel

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolPreservesOrder(t *testing.T) {
	pool := NewWorkerPool(4, func(_ context.Context, item string) (int, error) {
		return len(item), nil
	})

	results, errs := pool.Process(context.Background(), []string{"a", "bb", "ccc", "", "ddddd"})

	require.Nil(t, FirstError(errs))
	assert.Equal(t, []int{1, 2, 3, 0, 5}, results)
}

func TestWorkerPoolPropagatesErrors(t *testing.T) {
	pool := NewWorkerPool(2, func(_ context.Context, item int) (int, error) {
		if item%2 == 1 {
			return 0, fmt.Errorf("odd item %d", item)
		}
		return item * 10, nil
	})

	results, errs := pool.Process(context.Background(), []int{0, 1, 2, 3})

	assert.Equal(t, 0, results[0])
	assert.Equal(t, 20, results[2])
	assert.NoError(t, errs[0])
	assert.ErrorContains(t, errs[1], "odd item 1")
	assert.ErrorContains(t, errs[3], "odd item 3")
	assert.ErrorContains(t, FirstError(errs), "odd item 1")
}

func TestWorkerPoolRecoversPanics(t *testing.T) {
	pool := NewWorkerPool(1, func(_ context.Context, item int) (int, error) {
		if item == 2 {
			panic("worker blew up")
		}
		return item, nil
	})

	_, errs := pool.Process(context.Background(), []int{1, 2, 3})

	require.Error(t, errs[1])
	var panicErr *PanicError
	require.True(t, errors.As(errs[1], &panicErr))
	assert.Contains(t, panicErr.Error(), "worker blew up")
	assert.NotEmpty(t, panicErr.StackTrace)
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[2])
}

func TestWorkerPoolEmptyInput(t *testing.T) {
	pool := NewWorkerPool[int, int](3, func(_ context.Context, item int) (int, error) {
		return item, nil
	})

	results, errs := pool.Process(context.Background(), nil)

	assert.Nil(t, results)
	assert.Nil(t, errs)
}

func TestWorkerPoolCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := NewWorkerPool(1, func(_ context.Context, item int) (int, error) {
		return item, nil
	})

	items := make([]int, 100)
	_, errs := pool.Process(ctx, items)

	require.Error(t, FirstError(errs))
	assert.ErrorIs(t, FirstError(errs), context.Canceled)
}
