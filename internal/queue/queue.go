// Package queue limits concurrent AI subprocess invocations to avoid
// swamping the machine when several sessions finish parsing at once.
package queue

import (
	"context"
	"sync"
)

// TaskQueue is a buffered-channel semaphore bounding how many AI tasks
// (title generation, memory extraction, skill discovery) run at once.
type TaskQueue struct {
	tokens        chan struct{}
	maxConcurrent int
}

// New creates a queue that allows at most maxConcurrent tasks to hold a
// permit simultaneously. A non-positive value defaults to 3, the original's
// AiTaskQueue::default.
func New(maxConcurrent int) *TaskQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &TaskQueue{
		tokens:        make(chan struct{}, maxConcurrent),
		maxConcurrent: maxConcurrent,
	}
}

// Permit is held by a running task and must be released exactly once.
type Permit struct {
	release func()
	once    sync.Once
}

// Release returns the permit to the queue. Safe to call more than once;
// only the first call has an effect.
func (p *Permit) Release() {
	p.once.Do(p.release)
}

// Acquire blocks until a permit is available or ctx is canceled.
func (q *TaskQueue) Acquire(ctx context.Context) (*Permit, error) {
	select {
	case q.tokens <- struct{}{}:
		p := &Permit{}
		p.release = func() { <-q.tokens }
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AvailablePermits reports how many tasks could acquire a permit right now
// without blocking.
func (q *TaskQueue) AvailablePermits() int {
	return cap(q.tokens) - len(q.tokens)
}

// MaxConcurrent returns the queue's concurrency limit.
func (q *TaskQueue) MaxConcurrent() int {
	return q.maxConcurrent
}
