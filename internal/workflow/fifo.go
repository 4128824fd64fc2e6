package workflow

import (
	"context"
	"sync"
)

// fifo is an unbounded queue with task accounting. Every Put must be
// matched by a TaskDone once the item has been processed; Join waits for
// that count to reach zero.
type fifo[T any] struct {
	mu         sync.Mutex
	items      []T
	unfinished int
	wake       chan struct{}
	idle       chan struct{}
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{
		wake: make(chan struct{}),
		idle: make(chan struct{}),
	}
}

// Put appends item and wakes blocked readers.
func (q *fifo[T]) Put(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.unfinished++
	close(q.wake)
	q.wake = make(chan struct{})
	q.mu.Unlock()
}

// Get removes the oldest item, blocking until one is available or ctx ends.
func (q *fifo[T]) Get(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		wake := q.wake
		q.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of items waiting to be taken.
func (q *fifo[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns the waiting items in order.
func (q *fifo[T]) Snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]T(nil), q.items...)
}

// TaskDone marks one previously taken item as processed.
func (q *fifo[T]) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.done(1)
}

func (q *fifo[T]) done(n int) {
	q.unfinished -= n
	if q.unfinished < 0 {
		panic("workflow: TaskDone called more times than Put")
	}
	if q.unfinished == 0 {
		close(q.idle)
		q.idle = make(chan struct{})
	}
}

// Drain removes every waiting item and marks it processed.
func (q *fifo[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	if len(items) > 0 {
		q.done(len(items))
	}
	return items
}

// Join blocks until every item put so far has been processed.
func (q *fifo[T]) Join(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.unfinished == 0 {
			q.mu.Unlock()
			return nil
		}
		idle := q.idle
		q.mu.Unlock()
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
