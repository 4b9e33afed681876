// Package parallel provides bounded-concurrency helpers with panic recovery.
package parallel

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// PanicError wraps a panic value recovered inside a worker as an error.
type PanicError struct {
	Value      interface{}
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// recoverWithCallback recovers from a panic and hands it to the callback as a
// PanicError. It must be called with defer.
func recoverWithCallback(callback func(error)) {
	if r := recover(); r != nil {
		callback(&PanicError{
			Value:      r,
			StackTrace: string(debug.Stack()),
		})
	}
}

// Worker processes one item into a result.
type Worker[T any, R any] func(ctx context.Context, item T) (R, error)

// WorkerPool fans items out across a fixed number of goroutines.
//
// Workers are started by Process and read from an internal channel until it
// drains or the context is cancelled; Process blocks until every worker has
// returned. Panics inside a worker are recovered and surface as a PanicError
// for that item.
type WorkerPool[T any, R any] struct {
	numWorkers int
	worker     Worker[T, R]
}

// NewWorkerPool creates a pool. A non-positive numWorkers defaults to the
// number of usable CPUs.
func NewWorkerPool[T any, R any](numWorkers int, worker Worker[T, R]) *WorkerPool[T, R] {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	return &WorkerPool[T, R]{
		numWorkers: numWorkers,
		worker:     worker,
	}
}

// Process runs the worker over items and returns results and errors aligned
// with the input order.
func (wp *WorkerPool[T, R]) Process(ctx context.Context, items []T) ([]R, []error) {
	if len(items) == 0 {
		return nil, nil
	}

	type indexed struct {
		item  T
		index int
	}
	itemsChan := make(chan indexed, len(items))
	for i, item := range items {
		itemsChan <- indexed{item: item, index: i}
	}
	close(itemsChan)

	results := make([]R, len(items))
	errs := make([]error, len(items))
	visited := make([]bool, len(items))
	var wg sync.WaitGroup

	for w := 0; w < wp.numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case it, ok := <-itemsChan:
					if !ok {
						return
					}
					visited[it.index] = true
					func() {
						defer recoverWithCallback(func(err error) {
							errs[it.index] = err
						})
						results[it.index], errs[it.index] = wp.worker(ctx, it.item)
					}()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	wg.Wait()

	// A cancelled context leaves later items untouched; mark them.
	if err := ctx.Err(); err != nil {
		for i := range errs {
			if !visited[i] && errs[i] == nil {
				errs[i] = err
			}
		}
	}
	return results, errs
}

// FirstError returns the first non-nil error, or nil.
func FirstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
