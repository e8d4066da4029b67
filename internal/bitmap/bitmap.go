// Package bitmap allocates the lowest free number in [0, max], used for
// connection channels and session link handles.
package bitmap

import "math/bits"

// Bitmap is a lazily grown bit set with an upper bound.
type Bitmap struct {
	max  uint32
	bits []uint64
}

// New creates a Bitmap whose largest allocatable value is max.
func New(max uint32) *Bitmap {
	return &Bitmap{max: max}
}

// Add marks bit as used.
func (b *Bitmap) Add(bit uint32) {
	idx, offset := bit/64, bit%64
	for int(idx) >= len(b.bits) {
		b.bits = append(b.bits, 0)
	}
	b.bits[idx] |= 1 << offset
}

// Remove marks bit as free.
func (b *Bitmap) Remove(bit uint32) {
	idx, offset := bit/64, bit%64
	if int(idx) >= len(b.bits) {
		return
	}
	b.bits[idx] &^= 1 << offset
}

// Contains reports whether bit is in use.
func (b *Bitmap) Contains(bit uint32) bool {
	idx, offset := bit/64, bit%64
	if int(idx) >= len(b.bits) {
		return false
	}
	return b.bits[idx]&(1<<offset) != 0
}

// Count returns the number of bits in use.
func (b *Bitmap) Count() int {
	var n int
	for _, v := range b.bits {
		n += bits.OnesCount64(v)
	}
	return n
}

// Next marks and returns the lowest free bit. ok is false when every bit
// up to max is in use.
func (b *Bitmap) Next() (bit uint32, ok bool) {
	for i, v := range b.bits {
		if v == ^uint64(0) {
			continue
		}
		bit = uint32(i*64 + bits.TrailingZeros64(^v))
		if bit > b.max {
			return 0, false
		}
		b.bits[i] |= 1 << (bit % 64)
		return bit, true
	}

	bit = uint32(len(b.bits) * 64)
	if len(b.bits) > 0 && bit == 0 {
		// wrapped past the uint32 range
		return 0, false
	}
	if bit > b.max {
		return 0, false
	}
	b.bits = append(b.bits, 1)
	return bit, true
}
