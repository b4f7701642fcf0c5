package engine

import (
	"context"
	"sync"
)

// Completion is the outcome of running fn over one item.
type Completion[T, R any] struct {
	Item   T
	Result R
	Err    error
}

type runOptions struct {
	concurrency int
}

// RunOption configures Run.
type RunOption func(*runOptions)

// WithConcurrency caps the number of items executing at once. Values <= 0
// mean one worker per item.
func WithConcurrency(n int) RunOption {
	return func(o *runOptions) {
		o.concurrency = n
	}
}

// Run calls fn for every item on a WorkerPool and returns the completions
// in the order they finished.
//
// Items are dispatched in input order. Once any call fails, or ctx is
// done, no further items are dispatched; calls already running are waited
// for rather than cancelled. The first failure is returned together with
// every completion gathered. hook, when non-nil, is called exactly once
// for each dispatched item, possibly from several goroutines at once.
func Run[T, R any](
	ctx context.Context,
	items []T,
	fn func(context.Context, T) (R, error),
	hook func(Completion[T, R]),
	opts ...RunOption,
) ([]Completion[T, R], error) {
	if len(items) == 0 {
		return nil, nil
	}

	o := runOptions{concurrency: len(items)}
	for _, opt := range opts {
		opt(&o)
	}
	width := o.concurrency
	if width <= 0 || width > len(items) {
		width = len(items)
	}

	var (
		mu          sync.Mutex
		completions = make([]Completion[T, R], 0, len(items))
		firstErr    error
		failed      = make(chan struct{})
	)

	work := make(chan T)
	pool := NewWorkerPool(context.WithoutCancel(ctx), work, func(ctx context.Context, item T) {
		res, err := fn(ctx, item)
		c := Completion[T, R]{Item: item, Result: res, Err: err}

		mu.Lock()
		completions = append(completions, c)
		if err != nil && firstErr == nil {
			firstErr = err
			close(failed)
		}
		mu.Unlock()

		if hook != nil {
			hook(c)
		}
	})
	defer pool.Stop()
	pool.SetWorkerCount(width)

dispatch:
	for _, item := range items {
		// A failure or cancellation must win over a worker that is ready.
		select {
		case <-failed:
			break dispatch
		case <-ctx.Done():
			break dispatch
		default:
		}

		select {
		case work <- item:
		case <-failed:
			break dispatch
		case <-ctx.Done():
			break dispatch
		}
	}
	close(work)
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if firstErr == nil && ctx.Err() != nil && len(completions) < len(items) {
		return completions, ctx.Err()
	}
	return completions, firstErr
}
