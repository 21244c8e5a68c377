package sysex

import (
	"errors"
	"hash/crc32"
)

// ChecksumLen is the number of bytes a checksum occupies on the wire.
const ChecksumLen = 5

var ErrShortChecksum = errors.New("checksum needs 5 bytes")

// Checksum returns the IEEE CRC-32 of data.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// EncodeChecksum inverts crc and splits it into 7-bit slices, least
// significant first. The last slice carries the top 4 bits.
func EncodeChecksum(crc uint32) [ChecksumLen]byte {
	crc ^= 0xFFFFFFFF
	return [ChecksumLen]byte{
		byte(crc & 0x7F),
		byte((crc >> 7) & 0x7F),
		byte((crc >> 14) & 0x7F),
		byte((crc >> 21) & 0x7F),
		byte((crc >> 28) & 0x0F),
	}
}

// DecodeChecksum reassembles the first five bytes of wire into the CRC
// they were encoded from.
func DecodeChecksum(wire []byte) (uint32, error) {
	if len(wire) < ChecksumLen {
		return 0, ErrShortChecksum
	}

	v := uint32(wire[0]&0x7F) |
		uint32(wire[1]&0x7F)<<7 |
		uint32(wire[2]&0x7F)<<14 |
		uint32(wire[3]&0x7F)<<21 |
		uint32(wire[4]&0x0F)<<28

	return v ^ 0xFFFFFFFF, nil
}

// Verify reports whether wire carries the checksum of data.
func Verify(data, wire []byte) bool {
	crc, err := DecodeChecksum(wire)
	if err != nil {
		return false
	}
	return crc == Checksum(data)
}

// AppendChecksum appends the wire checksum of data to dst.
func AppendChecksum(dst, data []byte) []byte {
	wire := EncodeChecksum(Checksum(data))
	return append(dst, wire[:]...)
}
