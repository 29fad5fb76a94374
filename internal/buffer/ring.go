// Package buffer holds the bounded queues that decoded frames are fanned out
// into: one drained by the display poller, one kept as a sliding window for
// quality analysis and one drained by the recorder.
package buffer

import "sync"

// Ring is a fixed-capacity FIFO queue. Pushing into a full ring evicts the
// oldest element. All methods are safe for concurrent use.
type Ring[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int // index of the oldest element
	n       int
	evicted uint64
}

// NewRing creates a ring holding at most capacity elements. A capacity below
// one is raised to one.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element if the ring is full. It
// reports whether an element was evicted.
func (r *Ring[T]) Push(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushLocked(v)
}

func (r *Ring[T]) pushLocked(v T) bool {
	c := len(r.items)
	if r.n == c {
		r.items[r.head] = v
		r.head = (r.head + 1) % c
		r.evicted++
		return true
	}
	r.items[(r.head+r.n)%c] = v
	r.n++
	return false
}

// Drain removes and returns every element, oldest first.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.copyLocked()
	r.clearLocked()
	return out
}

// Snapshot returns a copy of every element, oldest first, without removing
// them.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

// Clear discards every element.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Evicted returns how many elements have been pushed out by overflow.
func (r *Ring[T]) Evicted() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}

func (r *Ring[T]) copyLocked() []T {
	if r.n == 0 {
		return nil
	}
	out := make([]T, r.n)
	c := len(r.items)
	first := c - r.head
	if first >= r.n {
		copy(out, r.items[r.head:r.head+r.n])
	} else {
		copy(out, r.items[r.head:])
		copy(out[first:], r.items[:r.n-first])
	}
	return out
}

func (r *Ring[T]) clearLocked() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.n = 0
}
