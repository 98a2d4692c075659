package engine

import (
	"context"
	"sync"
)

// queue is a thread-safe bounded FIFO.
//
// Producers block in Enqueue while the queue holds capacity items; that is
// how a slow unit pushes back on telemetry ingress. Control items go in
// through Push, which ignores the bound so a reconfigure never waits
// behind a full queue.
//
// Two buffered (size 1) channels signal item availability to the consumer
// and free space to producers, so both sides can wait in a select next to
// ctx.Done().
type queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	closed   bool
	signal   chan struct{}
	space    chan struct{}
}

// newQueue creates an empty queue. capacity <= 0 means unbounded.
func newQueue[T any](capacity int) *queue[T] {
	prealloc := capacity
	if prealloc <= 0 || prealloc > 64 {
		prealloc = 64
	}
	return &queue[T]{
		items:    make([]T, 0, prealloc),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
	}
}

// Enqueue adds an item to the back of the queue, waiting for space while
// the queue is full. Returns false if the queue is closed, and ctx.Err()
// if ctx ends first.
func (q *queue[T]) Enqueue(ctx context.Context, item T) (bool, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return false, nil
		}
		if q.capacity <= 0 || len(q.items) < q.capacity {
			q.pushLocked(item)
			q.mu.Unlock()
			return true, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-q.space:
		}
	}
}

// Offer adds an item only if there is room, without waiting. ok is false
// when the item was not queued; closed tells a closed queue apart from a
// full one.
func (q *queue[T]) Offer(item T) (ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, true
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return false, false
	}
	q.pushLocked(item)
	return true, false
}

// Push adds an item regardless of capacity.
// Returns false if the queue is closed.
func (q *queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pushLocked(item)
	return true
}

func (q *queue[T]) pushLocked(item T) {
	q.items = append(q.items, item)
	notifyChan(q.signal)
}

// TryDequeue attempts to dequeue without blocking.
// Returns false if the queue is empty.
func (q *queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	// Release the slot so the backing array does not pin the payload.
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	if !q.closed {
		notifyChan(q.space)
	}
	return item, true
}

// Wait returns a channel that signals when items may be available.
// The channel is closed by Close.
func (q *queue[T]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drained reports whether the queue is closed and empty.
func (q *queue[T]) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// Close signals that no more items will be enqueued. Items already queued
// stay available to TryDequeue. Blocked producers and waiters wake up.
func (q *queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
	close(q.space)
}

// notifyChan performs a non-blocking send; the size-1 buffer coalesces
// multiple signals.
func notifyChan(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
