package vehiclestate

// RingBuffer keeps the most recent items up to a fixed capacity, oldest first
type RingBuffer[T any] struct {
	items []T
	start int
	size  int
}

func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Push appends the item, evicting the oldest once full
func (r *RingBuffer[T]) Push(item T) {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = item
		r.size++
		return
	}
	r.items[r.start] = item
	r.start = (r.start + 1) % len(r.items)
}

func (r *RingBuffer[T]) Len() int {
	return r.size
}

func (r *RingBuffer[T]) Cap() int {
	return len(r.items)
}

// At returns the i'th oldest item
func (r *RingBuffer[T]) At(i int) T {
	return r.items[(r.start+i)%len(r.items)]
}

func (r *RingBuffer[T]) Last() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}
	return r.At(r.size - 1), true
}

func (r *RingBuffer[T]) Items() []T {
	items := make([]T, r.size)
	for i := range items {
		items[i] = r.At(i)
	}
	return items
}

func (r *RingBuffer[T]) Clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.start, r.size = 0, 0
}
