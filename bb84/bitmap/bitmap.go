// Package bitmap provides utilities for operating on densely-packed arrays of
// booleans.
package bitmap

import (
	"fmt"
	"math/bits"
	"strings"
)

// TODO: this could be more efficient on many architectures if we used larger
//   blocks than 8-bit bytes.
const byteSize = 8

// Empty returns an empty, dense bit array.
func Empty() Dense {
	return Dense{}
}

// FromString converts a string of '1's and '0's to a Dense. Spaces are
// ignored, so long literals may be grouped for readability.
func FromString(s string) (Dense, error) {
	d := Dense{}
	for _, c := range s {
		switch c {
		case '1':
			d.AppendBit(true)
		case '0':
			d.AppendBit(false)
		case ' ':
			continue
		default:
			return Dense{}, fmt.Errorf("invalid bitmap string rep: %q", s)
		}
	}
	return d, nil
}

// String renders d as a string of '0's and '1's, lowest index first.
func (d Dense) String() string {
	var sb strings.Builder
	sb.Grow(d.len)
	for i := 0; i < d.len; i++ {
		if d.Get(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Select selects a subset of bits from data, according to which bits are set in
// mask.
func Select(data, mask Dense) Dense {
	var d Dense
	for i := 0; i < data.Size(); i++ {
		if !mask.Get(i) {
			continue
		}
		d.AppendBit(data.Get(i))
	}
	return d
}

// Gather returns the bits of d at the given positions, in the order given.
// Positions past the end of d read as implicit zeros.
func Gather(d Dense, idx []int) Dense {
	r := Dense{bits: make([]byte, 0, BytesFor(len(idx)))}
	for _, i := range idx {
		r.AppendBit(d.Get(i))
	}
	return r
}

// Indices returns the positions of every set bit in d, in increasing order.
func Indices(d Dense) []int {
	var r []int
	for j, b := range d.bits {
		for b != 0 {
			pos := bits.TrailingZeros8(b)
			i := j*byteSize + pos
			if i >= d.len {
				return r
			}
			r = append(r, i)
			b &^= 1 << pos
		}
	}
	return r
}

// CountOnes returns the total number of bits set in d.
func CountOnes(d Dense) int {
	var sum int
	for _, b := range d.bits {
		sum += bits.OnesCount8(b)
	}
	return sum
}

// Equal returns true iff a and b have the same length and contain the same
// bits.
func Equal(a, b Dense) bool {
	return a.len == b.len && CountOnes(XOr(a, b)) == 0
}

// BytesFor returns the number of bytes necessary to hold the provided number of
// bits.
func BytesFor(bits int) int {
	return (bits + byteSize - 1) / byteSize
}
