package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func segOf[T any](t *testing.T, v any) *segment[T] {
	t.Helper()
	seg, ok := v.(*segment[T])
	require.True(t, ok)
	return seg
}

func TestQueueEnqueueDequeue(t *testing.T) {
	q := New[string](5)
	require.Zero(t, q.Len())
	require.Same(t, q.head, q.tail)
	require.Nil(t, q.Dequeue())

	q.Enqueue("one")
	q.Enqueue("two")
	require.EqualValues(t, 2, q.Len())
	seg := segOf[string](t, q.head.Value)
	require.EqualValues(t, 0, seg.head)
	require.EqualValues(t, 2, seg.tail)

	v := q.Dequeue()
	require.NotNil(t, v)
	require.Equal(t, "one", *v)
	require.EqualValues(t, 1, seg.head)

	v = q.Dequeue()
	require.NotNil(t, v)
	require.Equal(t, "two", *v)

	// drained segment is rewound in place
	require.EqualValues(t, 0, seg.head)
	require.EqualValues(t, 0, seg.tail)
	require.EqualValues(t, 1, q.head.Len())
	require.Nil(t, q.Dequeue())
}

func TestQueueGrowsAndAdvances(t *testing.T) {
	const size = 5
	q := New[int](size)
	for i := 1; i <= size; i++ {
		q.Enqueue(i)
	}
	require.Same(t, q.head, q.tail)

	q.Enqueue(size + 1)
	require.NotSame(t, q.head, q.tail)
	require.EqualValues(t, 2, q.head.Len())
	require.Same(t, q.tail, q.head.Next())
	require.EqualValues(t, 1, segOf[int](t, q.tail.Value).tail)

	for i := 1; i <= size; i++ {
		v := q.Dequeue()
		require.NotNil(t, v)
		require.Equal(t, i, *v)
	}

	// head moved onto the second segment, first one is empty
	require.Same(t, q.head, q.tail)
	first := segOf[int](t, q.head.Prev().Value)
	require.Zero(t, first.head)
	require.Zero(t, first.tail)

	v := q.Dequeue()
	require.NotNil(t, v)
	require.Equal(t, size+1, *v)
	require.Zero(t, q.Len())
	require.EqualValues(t, 2, q.head.Len())
}

func TestQueueReusesSegments(t *testing.T) {
	const segSize = 100
	q := New[int](segSize)

	for round := 0; round < 50; round++ {
		for i := 0; i < segSize*4; i++ {
			q.Enqueue(i)
		}
		require.EqualValues(t, segSize*4, q.Len())
		for i := 0; i < segSize*4; i++ {
			v := q.Dequeue()
			require.NotNil(t, v)
			require.Equal(t, i, *v)
		}
		require.Zero(t, q.Len())
		require.Same(t, q.head, q.tail)
		require.EqualValues(t, 4, q.head.Len())
	}
}

func TestQueueTailChasesHead(t *testing.T) {
	const segSize = 10
	q := New[int](segSize)

	for i := 0; i < segSize*2; i++ {
		q.Enqueue(i)
	}
	for i := 0; i < segSize; i++ {
		require.NotNil(t, q.Dequeue())
	}
	require.Same(t, q.head, q.tail)

	// the emptied segment is picked up again instead of growing the ring
	for i := 0; i < segSize; i++ {
		q.Enqueue(i)
	}
	require.EqualValues(t, 2, q.head.Len())
	require.NotSame(t, q.head, q.tail)

	// both segments full, the next item needs a third one
	q.Enqueue(-1)
	require.EqualValues(t, 3, q.head.Len())
	require.EqualValues(t, segSize*2+1, q.Len())

	for q.Dequeue() != nil {
	}
	require.Zero(t, q.Len())
	require.Same(t, q.head, q.tail)
}

func TestHolderWait(t *testing.T) {
	h := NewHolder(New[int](4))
	require.Zero(t, h.Len())

	select {
	case <-h.Wait():
		t.Fatal("unexpected populated queue")
	default:
	}

	go func() {
		q := h.Acquire()
		q.Enqueue(42)
		h.Release(q)
	}()

	select {
	case q := <-h.Wait():
		v := q.Dequeue()
		require.NotNil(t, v)
		require.Equal(t, 42, *v)
		h.Release(q)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for item")
	}
	require.Zero(t, h.Len())
}
