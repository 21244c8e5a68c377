// Package zptc reads and writes patch assemblies: the PTCF, TXJ1, TXE1,
// EDTB and PPRM sections the pedal stores for each patch.
package zptc

import (
	"errors"
	"fmt"
	"strings"

	"zoomzt2/internal/binfmt"
)

var (
	ErrReservedBit = errors.New("reserved bit set")
	ErrEDTBLength  = errors.New("unexpected EDTB length")
)

const patchNameLen = 10

// Header is the PTCF section. The reserved areas are carried through
// unchanged.
type Header struct {
	Reserved0 [8]byte   `json:"-"`
	Effects   uint32    `json:"effects"`
	Reserved1 [10]byte  `json:"-"`
	Name      string    `json:"name"`
	IDs       [5]uint32 `json:"ids"`
}

// Patch is a decoded patch assembly. TXJ1, PPRM and anything after PPRM are
// opaque and kept byte for byte.
type Patch struct {
	Header      Header          `json:"header"`
	TXJ1        []byte          `json:"-"`
	Description string          `json:"description"`
	Slots       [SlotCount]Slot `json:"slots"`
	PPRM        []byte          `json:"-"`
	Trailer     []byte          `json:"-"`
}

// Parse decodes a patch assembly.
func Parse(data []byte) (*Patch, error) {
	p := &Patch{}
	r := binfmt.NewReader(data, "PTCF")

	if err := parseHeader(r, &p.Header); err != nil {
		return nil, err
	}

	var err error

	r.Record = "TXJ1"
	if p.TXJ1, err = section(r, "TXJ1"); err != nil {
		return nil, err
	}

	r.Record = "TXE1"
	if err = r.Expect("tag", []byte("TXE1")); err != nil {
		return nil, err
	}
	n, err := r.Uint32("length")
	if err != nil {
		return nil, err
	}
	if p.Description, err = r.RawString("text", int(n)); err != nil {
		return nil, err
	}

	r.Record = "EDTB"
	if err = r.Expect("tag", []byte("EDTB")); err != nil {
		return nil, err
	}
	off := r.Offset()
	if n, err = r.Uint32("length"); err != nil {
		return nil, err
	}
	if n != edtbLen {
		return nil, r.FailAt("length", off, fmt.Errorf("%w: %d, want %d", ErrEDTBLength, n, edtbLen))
	}
	for i := range p.Slots {
		if p.Slots[i], err = decodeSlot(r, fmt.Sprintf("slot%d", i+1)); err != nil {
			return nil, err
		}
	}

	r.Record = "PPRM"
	if p.PPRM, err = section(r, "PPRM"); err != nil {
		return nil, err
	}

	if rest := r.Remaining(); len(rest) > 0 {
		p.Trailer = append([]byte{}, rest...)
	}

	return p, nil
}

func parseHeader(r *binfmt.Reader, h *Header) error {
	if err := r.Expect("tag", []byte("PTCF")); err != nil {
		return err
	}
	b, err := r.Bytes("reserved0", len(h.Reserved0))
	if err != nil {
		return err
	}
	copy(h.Reserved0[:], b)
	if h.Effects, err = r.Uint32("effects"); err != nil {
		return err
	}
	if b, err = r.Bytes("reserved1", len(h.Reserved1)); err != nil {
		return err
	}
	copy(h.Reserved1[:], b)
	if h.Name, err = r.PaddedString("name", patchNameLen); err != nil {
		return err
	}
	for i := range h.IDs {
		if h.IDs[i], err = r.Uint32(fmt.Sprintf("id%d", i+1)); err != nil {
			return err
		}
	}
	return nil
}

// section reads a tag, a length and that many opaque bytes.
func section(r *binfmt.Reader, tag string) ([]byte, error) {
	if err := r.Expect("tag", []byte(tag)); err != nil {
		return nil, err
	}
	n, err := r.Uint32("length")
	if err != nil {
		return nil, err
	}
	b, err := r.Bytes("payload", int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte{}, b...), nil
}

// Build encodes the patch assembly.
func (p *Patch) Build() ([]byte, error) {
	w := binfmt.NewWriter("PTCF", 256+len(p.TXJ1)+len(p.Description)+len(p.PPRM)+len(p.Trailer))

	w.Write([]byte("PTCF"))
	w.Write(p.Header.Reserved0[:])
	w.Uint32(p.Header.Effects)
	w.Write(p.Header.Reserved1[:])
	w.PaddedString("name", p.Header.Name, patchNameLen)
	for _, id := range p.Header.IDs {
		w.Uint32(id)
	}

	w.Record = "TXJ1"
	w.Write([]byte("TXJ1"))
	w.Uint32(uint32(len(p.TXJ1)))
	w.Write(p.TXJ1)

	w.Record = "TXE1"
	w.Write([]byte("TXE1"))
	w.Uint32(uint32(len(p.Description)))
	w.PaddedString("text", p.Description, len(p.Description))

	w.Record = "EDTB"
	w.Write([]byte("EDTB"))
	w.Uint32(edtbLen)
	for i, s := range p.Slots {
		encodeSlot(w, fmt.Sprintf("slot%d", i+1), s)
	}

	w.Record = "PPRM"
	w.Write([]byte("PPRM"))
	w.Uint32(uint32(len(p.PPRM)))
	w.Write(p.PPRM)

	w.Write(p.Trailer)

	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// ActiveSlots returns the records the header declares in use.
func (p *Patch) ActiveSlots() []Slot {
	if p.Header.Effects < SlotCount {
		return p.Slots[:p.Header.Effects]
	}
	return p.Slots[:]
}

// Text returns the description without line breaks or NUL padding.
func (p *Patch) Text() string {
	s := strings.TrimRight(p.Description, "\x00")
	return strings.NewReplacer("\r", "", "\n", " ").Replace(s)
}

// SetName sets the patch name, which must fit 10 ASCII characters.
func (p *Patch) SetName(name string) error {
	if len(name) > patchNameLen {
		return &binfmt.FieldError{Record: "PTCF", Field: "name", Value: name, Limit: patchNameLen}
	}
	p.Header.Name = name
	return nil
}
