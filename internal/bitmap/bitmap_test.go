package bitmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitmapNextLowestFree(t *testing.T) {
	bm := New(200)
	for i := uint32(0); i < 130; i++ {
		bit, ok := bm.Next()
		require.True(t, ok)
		require.Equal(t, i, bit)
	}
	require.Equal(t, 130, bm.Count())

	bm.Remove(3)
	bm.Remove(70)
	require.False(t, bm.Contains(3))

	bit, ok := bm.Next()
	require.True(t, ok)
	require.EqualValues(t, 3, bit)

	bit, ok = bm.Next()
	require.True(t, ok)
	require.EqualValues(t, 70, bit)

	bit, ok = bm.Next()
	require.True(t, ok)
	require.EqualValues(t, 130, bit)
}

func TestBitmapMax(t *testing.T) {
	bm := New(2)
	for i := 0; i < 3; i++ {
		_, ok := bm.Next()
		require.True(t, ok)
	}
	_, ok := bm.Next()
	require.False(t, ok)

	bm.Remove(1)
	bit, ok := bm.Next()
	require.True(t, ok)
	require.EqualValues(t, 1, bit)

	bm = New(64)
	for i := 0; i < 65; i++ {
		_, ok := bm.Next()
		require.True(t, ok)
	}
	_, ok = bm.Next()
	require.False(t, ok)
}

func TestBitmapAddRemove(t *testing.T) {
	bm := New(1000)
	bm.Add(500)
	require.True(t, bm.Contains(500))
	require.Equal(t, 1, bm.Count())

	bit, ok := bm.Next()
	require.True(t, ok)
	require.Zero(t, bit)

	bm.Remove(500)
	bm.Remove(900)
	require.False(t, bm.Contains(500))
	require.Equal(t, 1, bm.Count())
}
