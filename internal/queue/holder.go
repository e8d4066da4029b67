package queue

// Holder hands out exclusive access to a *Queue[T] and lets a consumer
// block until the queue is non-empty.
//
// The queue lives in exactly one of two single-slot channels: empty while
// it has no items, populated otherwise. Receiving from either acquires it.
type Holder[T any] struct {
	empty     chan *Queue[T]
	populated chan *Queue[T]
}

// NewHolder wraps q, which must be empty.
func NewHolder[T any](q *Queue[T]) *Holder[T] {
	h := &Holder[T]{
		empty:     make(chan *Queue[T], 1),
		populated: make(chan *Queue[T], 1),
	}
	h.empty <- q
	return h
}

// Acquire blocks until the queue is available and returns it.
// The caller MUST call Release when done.
func (h *Holder[T]) Acquire() *Queue[T] {
	select {
	case q := <-h.empty:
		return q
	case q := <-h.populated:
		return q
	}
}

// Wait returns a channel that yields the queue once it holds at least one
// item. Receiving from it acquires the queue.
func (h *Holder[T]) Wait() <-chan *Queue[T] {
	return h.populated
}

// Release returns q to the holder.
func (h *Holder[T]) Release(q *Queue[T]) {
	if q.Len() == 0 {
		h.empty <- q
		return
	}
	h.populated <- q
}

// Len returns the number of queued items.
func (h *Holder[T]) Len() int {
	q := h.Acquire()
	defer h.Release(q)
	return q.Len()
}
