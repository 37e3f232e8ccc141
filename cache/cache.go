// Package cache provides the bounded history containers backing the
// streaming state caches. Both containers are owned by a single writer
// (the connection's message handler) and are not safe for concurrent
// mutation; readers receive copies taken on the handler goroutine.
package cache

// Ring is a bounded append-only sequence. Once the capacity is reached the
// oldest entry is evicted first. Arrival order is preserved.
type Ring[T any] struct {
	limit int
	items []T
}

// NewRing creates a ring with the given capacity. A non-positive limit
// falls back to 1000.
func NewRing[T any](limit int) *Ring[T] {
	if limit <= 0 {
		limit = 1000
	}
	return &Ring[T]{limit: limit}
}

// Append stores v, evicting the oldest entry when the ring is full.
func (r *Ring[T]) Append(v T) {
	if len(r.items) == r.limit {
		copy(r.items, r.items[1:])
		r.items[len(r.items)-1] = v
		return
	}
	r.items = append(r.items, v)
}

// Len returns the number of stored entries.
func (r *Ring[T]) Len() int {
	return len(r.items)
}

// Slice returns a copy of the stored entries in arrival order.
func (r *Ring[T]) Slice() []T {
	return append([]T(nil), r.items...)
}
