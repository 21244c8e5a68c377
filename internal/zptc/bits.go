package zptc

// bitReader reads MSB-first bit fields from a byte slice.
type bitReader struct {
	data []byte
	pos  int
}

func (b *bitReader) read(n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		bit := (b.data[b.pos/8] >> (7 - b.pos%8)) & 1
		v = v<<1 | uint32(bit)
		b.pos++
	}
	return v
}

// bitWriter is the counterpart of bitReader. data must be zeroed.
type bitWriter struct {
	data []byte
	pos  int
}

func (b *bitWriter) write(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		if (v>>i)&1 != 0 {
			b.data[b.pos/8] |= 1 << (7 - b.pos%8)
		}
		b.pos++
	}
}

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}
