// Package queue provides an unbounded FIFO built from a ring of fixed-size
// segments. Emptied segments stay in the ring and are reused, so a queue
// that oscillates around a steady depth stops allocating.
package queue

import "container/ring"

// Queue is a segmented FIFO. It is not safe for concurrent use; see Holder.
type Queue[T any] struct {
	head *ring.Ring // segment items are dequeued from
	tail *ring.Ring // segment items are enqueued into
	size int
	seg  int
}

// New creates a Queue whose segments hold size items each.
func New[T any](size int) *Queue[T] {
	if size < 1 {
		size = 1
	}
	r := &ring.Ring{Value: &segment[T]{items: make([]T, size)}}
	return &Queue[T]{
		head: r,
		tail: r,
		seg:  size,
	}
}

// Enqueue appends item to the end of the queue.
func (q *Queue[T]) Enqueue(item T) {
	seg := q.tail.Value.(*segment[T])
	if seg.tail == len(seg.items) {
		next := q.tail.Next()
		if next == q.head {
			// every other segment holds items; grow the ring
			next = &ring.Ring{Value: &segment[T]{items: make([]T, q.seg)}}
			q.tail.Link(next)
		}
		q.tail = next
		seg = next.Value.(*segment[T])
	}
	seg.items[seg.tail] = item
	seg.tail++
	q.size++
}

// Dequeue removes and returns the item at the front of the queue.
// It returns nil when the queue is empty.
func (q *Queue[T]) Dequeue() *T {
	seg := q.head.Value.(*segment[T])
	if seg.head == seg.tail {
		return nil
	}

	item := seg.items[seg.head]
	var zero T
	seg.items[seg.head] = zero
	seg.head++
	q.size--

	if seg.head == seg.tail {
		seg.head, seg.tail = 0, 0
		if q.head != q.tail {
			q.head = q.head.Next()
		}
	}
	return &item
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return q.size
}

type segment[T any] struct {
	items []T
	head  int
	tail  int
}
