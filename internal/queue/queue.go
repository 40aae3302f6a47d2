// Package queue holds a mutex-guarded FIFO used for tick buffers and status
// lines.
package queue

import (
	"slices"
	"sync"
)

// Queue is a thread-safe FIFO. With a positive capacity it keeps only the
// most recent items, dropping the oldest on Push.
type Queue[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int
	size     int
	capacity int
}

// New returns an empty queue. A capacity of zero or less means unbounded.
func New[T any](capacity int) *Queue[T] {
	q := &Queue[T]{capacity: max(capacity, 0)}
	if q.capacity > 0 {
		q.buf = make([]T, q.capacity)
	}
	return q
}

func (q *Queue[T]) Capacity() int { return q.capacity }

// Push appends items and returns how many old items were dropped to stay
// within capacity.
func (q *Queue[T]) Push(items ...T) (dropped int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range items {
		if q.size == len(q.buf) {
			if q.capacity > 0 {
				q.buf[q.head] = it
				q.head = (q.head + 1) % len(q.buf)
				dropped++
				continue
			}
			q.grow()
		}
		q.buf[(q.head+q.size)%len(q.buf)] = it
		q.size++
	}
	return dropped
}

// grow doubles an unbounded buffer and unwraps it to start at index 0.
func (q *Queue[T]) grow() {
	next := make([]T, max(2*len(q.buf), 8))
	q.copyTo(next)
	q.buf, q.head = next, 0
}

func (q *Queue[T]) copyTo(dst []T) {
	if q.size == 0 {
		return
	}
	n := copy(dst, q.buf[q.head:min(q.head+q.size, len(q.buf))])
	copy(dst[n:], q.buf[:q.size-n])
}

// Pop removes the oldest item. ok is false when the queue is empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return item, false
	}
	var zero T
	item = q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return item, true
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *Queue[T]) Empty() bool { return q.Len() == 0 }

func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.buf)
	q.head, q.size = 0, 0
}

// Items returns a copy, oldest first.
func (q *Queue[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, q.size)
	q.copyTo(out)
	return out
}

// Newest returns a copy, newest first.
func (q *Queue[T]) Newest() []T {
	out := q.Items()
	slices.Reverse(out)
	return out
}

// Drain returns every item oldest first and leaves the queue empty.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, q.size)
	q.copyTo(out)
	clear(q.buf)
	q.head, q.size = 0, 0
	return out
}
