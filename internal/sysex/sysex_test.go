package sysex

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackKnownVector(t *testing.T) {
	data := []byte{0x80, 0x01, 0xFF, 0x7F, 0x00, 0x81, 0x02, 0x83}

	packet := Pack(data)

	require.Equal(t, []byte{
		0x40 | 0x10 | 0x02, 0x00, 0x01, 0x7F, 0x7F, 0x00, 0x01, 0x02,
		0x40, 0x03,
	}, packet)
	require.Equal(t, data, Unpack(packet))
}

func TestPackEmpty(t *testing.T) {
	require.Empty(t, Pack(nil))
	require.Empty(t, Unpack(nil))
}

func TestPackRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	for n := 0; n <= 64; n++ {
		data := make([]byte, n)
		rnd.Read(data)

		packet := Pack(data)
		require.Len(t, packet, PackedLen(n))
		for _, b := range packet {
			require.Zero(t, b&0x80, "packed byte has bit 7 set")
		}

		got := Unpack(packet)
		require.Equal(t, len(data), len(got), "length %d", n)
		if n > 0 {
			require.Equal(t, data, got, "length %d", n)
		}
	}
}

func TestUnpackLoneLeadingByte(t *testing.T) {
	packet := append(Pack([]byte{1, 2, 3, 4, 5, 6, 7}), 0x7F)

	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7}, Unpack(packet))
}

func TestChecksumWireRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))

	for i := 0; i < 200; i++ {
		data := make([]byte, rnd.Intn(600))
		rnd.Read(data)

		crc := Checksum(data)
		wire := EncodeChecksum(crc)
		for _, b := range wire {
			require.Zero(t, b&0x80)
		}
		require.Zero(t, wire[4]&0xF0)

		got, err := DecodeChecksum(wire[:])
		require.NoError(t, err)
		require.Equal(t, crc, got)
		require.True(t, Verify(data, wire[:]))
	}
}

func TestChecksumKnownValue(t *testing.T) {
	// CRC-32/IEEE of "123456789".
	require.Equal(t, uint32(0xCBF43926), Checksum([]byte("123456789")))
}

func TestVerifyRejectsCorruption(t *testing.T) {
	data := []byte("FLST_SEQ.ZT2")
	wire := AppendChecksum(nil, data)

	require.True(t, Verify(data, wire))

	wire[0] ^= 0x01
	require.False(t, Verify(data, wire))
	require.False(t, Verify(data, wire[:3]))

	_, err := DecodeChecksum(wire[:4])
	require.ErrorIs(t, err, ErrShortChecksum)
}
