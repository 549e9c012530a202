// Package ring provides a fixed capacity FIFO buffer.
package ring

// Ring keeps the most recent items up to its capacity.
// When full, adding an item evicts the oldest one.
// Ring is not safe for concurrent use.
type Ring[T any] struct {
	items []T
	start int
	size  int
}

func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

func (r *Ring[T]) Cap() int { return len(r.items) }

func (r *Ring[T]) Len() int { return r.size }

// Add appends item. If the ring was full the oldest item is evicted and
// returned with ok set to true.
func (r *Ring[T]) Add(item T) (evicted T, ok bool) {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = item
		r.size++
		return evicted, false
	}
	evicted = r.items[r.start]
	r.items[r.start] = item
	r.start = (r.start + 1) % len(r.items)
	return evicted, true
}

// Items returns a copy of all items, oldest first.
func (r *Ring[T]) Items() []T {
	return r.Last(r.size)
}

// Last returns a copy of the newest n items, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return []T{}
	}
	ret := make([]T, n)
	offset := r.size - n
	for i := range n {
		ret[i] = r.items[(r.start+offset+i)%len(r.items)]
	}
	return ret
}

// Newest returns the most recently added item.
func (r *Ring[T]) Newest() (item T, ok bool) {
	if r.size == 0 {
		return item, false
	}
	return r.items[(r.start+r.size-1)%len(r.items)], true
}
