// Package queue holds the bounded sample buffer between a session's
// transport goroutine and its frame loop.
package queue

import (
	"sync"
)

// DefaultLimit bounds a queue created with a non-positive limit.
const DefaultLimit = 64

// Queue is a bounded FIFO safe for one producer and one consumer. Pushing
// onto a full queue evicts the oldest items; the producer never blocks.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	limit   int
	evicted uint64
}

// New creates an empty queue holding at most limit items.
func New[T any](limit int) *Queue[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Queue[T]{
		items: make([]T, 0, limit),
		limit: limit,
	}
}

// Push appends items, evicting from the front once the limit is reached. It
// returns how many items were evicted.
func (q *Queue[T]) Push(items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, items...)
	over := len(q.items) - q.limit
	if over <= 0 {
		return 0
	}
	n := copy(q.items, q.items[over:])
	clear(q.items[n:])
	q.items = q.items[:n]
	q.evicted += uint64(over)
	return over
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Evicted returns the total number of items dropped by Push.
func (q *Queue[T]) Evicted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}

// Drain returns every queued item in order and empties the queue. The
// returned slice is not reused by later pushes.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := make([]T, len(q.items))
	copy(out, q.items)
	clear(q.items)
	q.items = q.items[:0]
	return out
}

// Latest empties the queue and returns its newest item. ok is false when the
// queue was already empty. skipped counts the older items discarded.
func (q *Queue[T]) Latest() (item T, skipped int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item, 0, false
	}
	item = q.items[len(q.items)-1]
	skipped = len(q.items) - 1
	clear(q.items)
	q.items = q.items[:0]
	return item, skipped, true
}
