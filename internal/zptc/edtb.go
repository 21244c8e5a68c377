package zptc

import (
	"fmt"

	"zoomzt2/internal/binfmt"
)

const (
	// SlotCount is the number of effect records in an EDTB section.
	SlotCount  = 5
	recordSize = 24
	extraLen   = 9
	edtbLen    = SlotCount * recordSize

	// MaxEffectID is the largest id an EDTB record can carry.
	MaxEffectID = 1<<28 - 1
)

// paramBits holds the width of each parameter, param1 first.
var paramBits = [8]int{12, 12, 12, 12, 12, 8, 8, 8}

// Slot is one effect record of a patch.
//
// On disk a record is 24 bytes. Reversing their order gives 9 bytes that
// are kept verbatim in Extra, followed by a 120 bit field read MSB first:
//
//	reserved:6 param8:8 param7:8 param6:8 param5:12 param4:12 param3:12
//	param2:12 param1:12 zero:1 id:28 enabled:1
type Slot struct {
	Enabled bool      `json:"enabled"`
	ID      uint32    `json:"id"`
	Params  [8]uint16 `json:"params"`

	Reserved uint8          `json:"-"`
	Extra    [extraLen]byte `json:"-"`
}

// FXID is the effect number within its group, as used in ZT2 ids.
func (s *Slot) FXID() uint32 {
	return s.ID & 0xFFFF
}

// GID is the group part of the id.
func (s *Slot) GID() uint32 {
	return (s.ID & 0xFFFF0000) >> 21
}

func decodeSlot(r *binfmt.Reader, field string) (Slot, error) {
	var s Slot

	off := r.Offset()
	raw, err := r.Bytes(field, recordSize)
	if err != nil {
		return s, err
	}

	rev := reversed(raw)
	copy(s.Extra[:], raw[recordSize-extraLen:])

	br := bitReader{data: rev[extraLen:]}
	s.Reserved = uint8(br.read(6))
	for i := len(s.Params) - 1; i >= 0; i-- {
		s.Params[i] = uint16(br.read(paramBits[i]))
	}
	if zero := br.read(1); zero != 0 {
		return s, r.FailAt(field, off, ErrReservedBit)
	}
	s.ID = br.read(28)
	s.Enabled = br.read(1) == 1

	return s, nil
}

func encodeSlot(w *binfmt.Writer, field string, s Slot) {
	w.Check(field+".id", uint64(s.ID), MaxEffectID)
	w.Check(field+".reserved", uint64(s.Reserved), 1<<6-1)
	for i, p := range s.Params {
		w.Check(fmt.Sprintf("%s.param%d", field, i+1), uint64(p), 1<<paramBits[i]-1)
	}

	rev := make([]byte, recordSize)
	bw := bitWriter{data: rev[extraLen:]}
	bw.write(uint32(s.Reserved), 6)
	for i := len(s.Params) - 1; i >= 0; i-- {
		bw.write(uint32(s.Params[i]), paramBits[i])
	}
	bw.write(0, 1)
	bw.write(s.ID, 28)
	if s.Enabled {
		bw.write(1, 1)
	} else {
		bw.write(0, 1)
	}

	raw := reversed(rev)
	copy(raw[recordSize-extraLen:], s.Extra[:])
	w.Write(raw)
}
