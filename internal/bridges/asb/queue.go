package asb

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the capacity used when none is configured.
const DefaultQueueSize = 1024

// Queue is a bounded FIFO with many producers and one consumer.
//
// Push never blocks: when the queue is full the new item is dropped and
// counted, so a stalled consumer cannot grow memory without bound.
type Queue[T any] struct {
	items     chan T
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
	pushed    atomic.Uint64
}

// NewQueue creates a queue. capacity <= 0 uses DefaultQueueSize.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Queue[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}
}

// Push enqueues v. It returns false if the queue is full or closed.
func (q *Queue[T]) Push(v T) bool {
	select {
	case <-q.done:
		q.dropped.Add(1)
		return false
	default:
	}

	select {
	case q.items <- v:
		q.pushed.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop blocks until an item is available, ctx is done, or the queue is
// closed and empty.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T

	select {
	case v := <-q.items:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.done:
		select {
		case v := <-q.items:
			return v, nil
		default:
			return zero, ErrQueueClosed
		}
	}
}

// Close stops accepting items. Items already queued can still be popped.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.items)
}

// Dropped returns how many items were rejected.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

// Pushed returns how many items were accepted.
func (q *Queue[T]) Pushed() uint64 {
	return q.pushed.Load()
}
