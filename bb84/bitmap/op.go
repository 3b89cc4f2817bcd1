package bitmap

// And returns the bitwise AND of two bitmaps. The result has the length of the
// shorter operand.
func And(a, b Dense) Dense {
	short := a
	if b.len < a.len {
		short = b
	}
	r := Dense{
		bits: make([]byte, 0, BytesFor(short.len)),
		len:  short.len,
	}
	for i := range short.bits {
		r.bits = append(r.bits, a.bits[i]&b.bits[i])
	}
	r.clearTail()
	return r
}

// Or returns the bitwise OR of two bitmaps, treating the shorter operand as
// padded with zeros.
func Or(a, b Dense) Dense {
	return zip(a, b, func(x, y byte) byte { return x | y })
}

// XOr returns the bitwise XOR of two bitmaps, treating the shorter operand as
// padded with zeros.
func XOr(a, b Dense) Dense {
	return zip(a, b, func(x, y byte) byte { return x ^ y })
}

// XNor returns the bitwise equality of two bitmaps, treating the shorter
// operand as padded with zeros.
func XNor(a, b Dense) Dense {
	return zip(a, b, func(x, y byte) byte { return ^(x ^ y) })
}

// Not returns the bitwise negation of a bitmap.
func Not(d Dense) Dense {
	return XNor(d, Dense{})
}

func zip(a, b Dense, f func(x, y byte) byte) Dense {
	short, long := a, b
	if b.len < a.len {
		short, long = b, a
	}
	r := Dense{
		bits: make([]byte, 0, BytesFor(long.len)),
		len:  long.len,
	}
	for i := range long.bits {
		var s byte
		if i < len(short.bits) {
			s = short.bits[i]
		}
		r.bits = append(r.bits, f(s, long.bits[i]))
	}
	r.clearTail()
	return r
}
