package zt2

import (
	"bytes"
	"encoding/binary"

	"zoomzt2/internal/binfmt"
)

var descriptorMagic = []byte{0x5A, 0x44, 0x4C, 0x46, 0x78}

const (
	descriptorPadLen = 84
	iconOffset       = 0x88
)

// Descriptor is the identity block at the start of an effect binary.
type Descriptor struct {
	Version     string  `json:"version"`
	Group       uint8   `json:"group"`
	ID          uint32  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Params      []Param `json:"params,omitempty"`
}

// GroupName returns the symbolic name of the descriptor's group.
func (d *Descriptor) GroupName() string {
	return GroupName(d.Group)
}

// ParseDescriptor reads the identity block of an effect binary. The text
// of its TXE1 section, when present, becomes the description.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var (
		d   Descriptor
		err error
	)

	r := binfmt.NewReader(data, "descriptor")

	if err = r.Expect("magic", descriptorMagic); err != nil {
		return nil, err
	}
	if err = r.Skip("pad0", descriptorPadLen); err != nil {
		return nil, err
	}
	if d.Version, err = r.PaddedString("version", versionLen); err != nil {
		return nil, err
	}
	if err = r.Expect("sep", []byte{0x00, 0x00}); err != nil {
		return nil, err
	}
	if d.Group, err = r.Uint8("group"); err != nil {
		return nil, err
	}
	if d.ID, err = r.Uint32("id"); err != nil {
		return nil, err
	}
	if d.Name, err = r.CString("name"); err != nil {
		return nil, err
	}

	d.Description = description(data)

	return &d, nil
}

// description returns the TXE1 text of an effect binary with line breaks
// dropped, or "".
func description(data []byte) string {
	i := bytes.Index(data, []byte("TXE1"))
	if i < 0 || i+8 > len(data) {
		return ""
	}

	n := int(binary.LittleEndian.Uint32(data[i+4:]))
	start := i + 8
	if n < 0 || start+n > len(data) {
		return ""
	}

	text := make([]byte, 0, n)
	for _, c := range data[start : start+n] {
		if c == '\r' || c == '\n' || c == 0 {
			continue
		}
		text = append(text, c)
	}
	return string(text)
}

// Icon returns the bitmap embedded in an effect binary, if there is one.
func Icon(data []byte) ([]byte, bool) {
	const headerLen = 6

	if len(data) < iconOffset+headerLen || !bytes.Equal(data[iconOffset:iconOffset+2], []byte("BM")) {
		return nil, false
	}

	size := int(binary.LittleEndian.Uint32(data[iconOffset+2:]))
	if size < headerLen || iconOffset+size > len(data) {
		return nil, false
	}

	return data[iconOffset : iconOffset+size], true
}
