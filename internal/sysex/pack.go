// Package sysex converts between raw bytes and the 7-bit payloads the pedal
// accepts inside system-exclusive messages.
package sysex

// groupSize is the number of data bytes sharing one leading high-bit byte.
const groupSize = 7

// Pack encodes data into 7-bit safe groups. Each group starts with a byte
// holding the high bits of up to seven following bytes, first byte in bit 6.
func Pack(data []byte) []byte {
	out := make([]byte, 0, PackedLen(len(data)))

	for start := 0; start < len(data); start += groupSize {
		end := min(start+groupSize, len(data))

		head := len(out)
		out = append(out, 0)
		for k, b := range data[start:end] {
			out[head] |= (b & 0x80) >> (k + 1)
			out = append(out, b&0x7F)
		}
	}

	return out
}

// Unpack reverses Pack. A trailing leading byte with no data after it
// contributes nothing.
func Unpack(packet []byte) []byte {
	out := make([]byte, 0, len(packet))

	for start := 0; start < len(packet); start += groupSize + 1 {
		hibits := packet[start]
		end := min(start+groupSize+1, len(packet))

		for k, b := range packet[start+1 : end] {
			if hibits&(0x40>>k) != 0 {
				b |= 0x80
			}
			out = append(out, b)
		}
	}

	return out
}

// PackedLen returns the size of Pack's output for n raw bytes.
func PackedLen(n int) int {
	return n + (n+groupSize-1)/groupSize
}
