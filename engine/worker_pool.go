package engine

import (
	"context"
	"sync"
)

// Handler processes one item taken from a WorkerPool's channel.
type Handler[T any] func(context.Context, T)

// WorkerPool manages a dynamic set of workers draining a channel of items.
// Workers exit when the channel is closed, when they are decommissioned by
// SetWorkerCount, or when the pool's context is cancelled.
type WorkerPool[T any] struct {
	items   <-chan T
	handler Handler[T]

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	workers     map[int]chan struct{}
	workerCount int
	nextID      int
	wg          sync.WaitGroup
}

// NewWorkerPool creates a new dynamic worker pool with no workers.
func NewWorkerPool[T any](ctx context.Context, items <-chan T, handler Handler[T]) *WorkerPool[T] {
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool[T]{
		items:   items,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[int]chan struct{}),
	}
}

// SetWorkerCount scales the number of workers up or down gracefully.
// A decommissioned worker finishes its current item first.
func (p *WorkerPool[T]) SetWorkerCount(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.workerCount < count {
		p.addWorker()
	}

	for p.workerCount > count {
		p.removeWorker()
	}
}

// WorkerCount returns the current target number of workers.
func (p *WorkerPool[T]) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workerCount
}

func (p *WorkerPool[T]) addWorker() {
	quit := make(chan struct{})
	id := p.nextID
	p.nextID++
	p.workers[id] = quit
	p.workerCount++
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		for {
			// Quit and cancellation win over a ready item.
			select {
			case <-quit:
				return
			case <-p.ctx.Done():
				return
			default:
			}

			select {
			case <-quit:
				return
			case <-p.ctx.Done():
				return
			case item, ok := <-p.items:
				if !ok {
					return
				}
				p.handler(p.ctx, item)
			}
		}
	}()
}

func (p *WorkerPool[T]) removeWorker() {
	for id, quit := range p.workers {
		close(quit)
		delete(p.workers, id)
		p.workerCount--
		return
	}
}

// Wait blocks until every worker has exited. Callers close the item
// channel first; items already handed to a worker run to completion.
func (p *WorkerPool[T]) Wait() {
	p.wg.Wait()
}

// Stop cancels the pool's context and waits for all workers to exit.
// Items currently running see a cancelled context.
func (p *WorkerPool[T]) Stop() {
	p.cancel()
	p.wg.Wait()
}
