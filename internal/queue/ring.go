// Package queue provides the bounded sample queue shared by the foreground
// and background consumers.
package queue

// Ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
// Entries can be marked stale in place; Pop discards them.
//
// The occupancy count alone decides full and empty. Ring does no locking;
// the owner serializes access.
type Ring[T any] struct {
	items []T
	stale []bool
	head  int
	count int
}

// New allocates a ring holding up to capacity entries (at least one).
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		items: make([]T, capacity),
		stale: make([]bool, capacity),
	}
}

func (r *Ring[T]) Cap() int { return len(r.items) }

// Len returns the number of occupied slots, stale ones included.
func (r *Ring[T]) Len() int { return r.count }

// Push appends v. When the ring is full the oldest entry is overwritten, the
// read position moves past it, and dropped is true.
func (r *Ring[T]) Push(v T) (dropped bool) {
	n := len(r.items)
	tail := (r.head + r.count) % n
	r.items[tail] = v
	r.stale[tail] = false
	if r.count == n {
		r.head = (r.head + 1) % n
		return true
	}
	r.count++
	return false
}

// Pop removes and returns the oldest live entry, discarding stale entries in
// front of it. ok is false when nothing live remains.
func (r *Ring[T]) Pop() (v T, ok bool) {
	var zero T
	for r.count > 0 {
		i := r.head
		v, stale := r.items[i], r.stale[i]
		r.items[i] = zero
		r.stale[i] = false
		r.head = (r.head + 1) % len(r.items)
		r.count--
		if !stale {
			return v, true
		}
	}
	return zero, false
}

// Invalidate marks every occupied entry for which match returns true as
// stale and returns how many were marked.
func (r *Ring[T]) Invalidate(match func(T) bool) int {
	marked := 0
	for k := 0; k < r.count; k++ {
		i := (r.head + k) % len(r.items)
		if !r.stale[i] && match(r.items[i]) {
			r.stale[i] = true
			marked++
		}
	}
	return marked
}

// Reset empties the ring without reallocating.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
		r.stale[i] = false
	}
	r.head = 0
	r.count = 0
}
