package bitmap

// A Dense is a bitmap where every bit is explicitly represented. Bits past len
// are always kept clear, so whole-byte operations never observe them.
type Dense struct {
	bits []byte
	len  int
}

// NewDense returns a new dense bitmap whose contents are a copy of data, and
// whose length is bitLen. If bitLen is longer than data, then trailing zeros
// are added; if it is shorter, the surplus bits of data are dropped. If bitLen
// is negative, then it is inferred from data.
func NewDense(data []byte, bitLen int) Dense {
	if bitLen < 0 {
		bitLen = len(data) * byteSize
	}
	r := Dense{
		bits: make([]byte, BytesFor(bitLen)),
		len:  bitLen,
	}
	copy(r.bits, data)
	r.clearTail()
	return r
}

// Clone returns a deep copy of d.
func (d Dense) Clone() Dense {
	return NewDense(d.bits, d.len)
}

// Get returns the i-th bit in this bitmap.
func (d Dense) Get(i int) bool {
	if i < 0 || i >= d.len {
		return false
	}
	j, pos := i/byteSize, i%byteSize
	return 0 < d.bits[j]&(1<<pos)
}

// Size returns the number of bits in this bitmap, excluding implicit trailing
// zeros.
func (d Dense) Size() int {
	return d.len
}

// SizeBytes returns the number of bytes in this bitmap, excluding implicit
// trailing zeros.
func (d Dense) SizeBytes() int {
	return BytesFor(d.len)
}

// Data returns a view of the bytes underlying this bitmap. Modifying the
// returned slice modifies this bitmap.
func (d Dense) Data() []byte {
	return d.bits
}

// Set sets the i-th bit to v. It panics if i is out of range.
func (d *Dense) Set(i int, v bool) {
	if i < 0 || i >= d.len {
		panic("bitmap: index out of range")
	}
	j, pos := i/byteSize, i%byteSize
	if v {
		d.bits[j] |= 1 << pos
	} else {
		d.bits[j] &^= 1 << pos
	}
}

// Flip inverts the i-th bit. It panics if i is out of range.
func (d *Dense) Flip(i int) {
	if i < 0 || i >= d.len {
		panic("bitmap: index out of range")
	}
	j, pos := i/byteSize, i%byteSize
	d.bits[j] ^= 1 << pos
}

// AppendBit adds a single bit to the end of d.
func (d *Dense) AppendBit(bit bool) {
	i, pos := d.len/byteSize, d.len%byteSize
	d.len += 1
	if pos == 0 {
		d.bits = append(d.bits, 0)
	}
	if bit {
		d.bits[i] |= 1 << pos
	} else {
		d.bits[i] &^= 1 << pos
	}
}

func (d *Dense) clearTail() {
	off := d.len % byteSize
	if off == 0 || len(d.bits) == 0 {
		return
	}
	d.bits[len(d.bits)-1] &= 0xFF >> (byteSize - off)
}
