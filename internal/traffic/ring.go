package traffic

// Ring is a fixed-capacity buffer that keeps the most recently pushed items
// and evicts the oldest on overflow. It is not safe for concurrent use; the
// Monitor guards its rings with its own mutex.
type Ring[T any] struct {
	items []T
	size  int
	head  int // next write position
	count int
}

// NewRing creates a ring holding at most size items.
func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{
		items: make([]T, size),
		size:  size,
	}
}

// Push adds v as the newest item.
func (r *Ring[T]) Push(v T) {
	r.items[r.head] = v
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// Snapshot returns a copy of the contents, newest first.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.head - 1 - i + r.size) % r.size
		out[i] = r.items[idx]
	}
	return out
}

// Len returns the number of items held.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return r.size
}

// Clear drops every item.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.count = 0
}
