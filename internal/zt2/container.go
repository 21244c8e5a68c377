// Package zt2 reads and writes the pedal's effect list (FLST_SEQ.ZT2) and
// the descriptors of individual effect binaries (.ZD2).
package zt2

import (
	"bytes"
	"fmt"

	"zoomzt2/internal/binfmt"
)

// ContainerSize is the fixed size of an encoded FLST_SEQ.ZT2 file.
const ContainerSize = 8502

const (
	headerNameLen  = 12
	effectNameLen  = 12
	versionLen     = 4
	groupPadLen    = 21
	headerSize     = 78
	effectSize     = 26
	groupFixedSize = 4 + 1 + groupPadLen + 4 + 1 + groupPadLen
)

var (
	openMarker  = []byte{0x3E, 0x3E, 0x3E, 0x00}
	closeMarker = []byte{0x3C, 0x3C, 0x3C, 0x00}
)

var groupNames = map[uint8]string{
	1:  "DYNAMICS",
	2:  "FILTER",
	3:  "DRIVE",
	4:  "AMP",
	5:  "CABINET",
	6:  "MODULATION",
	7:  "SFX",
	8:  "DELAY",
	9:  "REVERB",
	11: "PEDAL",
	29: "ACOUSTIC",
}

// GroupName returns the symbolic name of a group id, or "" when the id
// has none. Unnamed ids are still valid.
func GroupName(id uint8) string {
	return groupNames[id]
}

// GroupOf returns the group an effect id belongs to.
func GroupOf(id uint32) uint8 {
	return uint8((id & 0xFF000000) >> 24)
}

type Header struct {
	Name string `json:"name"`
}

type Effect struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Installed bool   `json:"installed"`
	ID        uint32 `json:"id"`
}

// Group returns the group encoded in the effect id.
func (e *Effect) Group() uint8 {
	return GroupOf(e.ID)
}

// FXID is the low half of the id, as referenced from patch EDTB records.
func (e *Effect) FXID() uint32 {
	return e.ID & 0xFFFF
}

// GID is the group part of the id in EDTB numbering.
func (e *Effect) GID() uint32 {
	return (e.ID & 0xFFFF0000) >> 21
}

type Group struct {
	ID      uint8    `json:"group"`
	Effects []Effect `json:"effects"`
}

func (g *Group) Name() string {
	return GroupName(g.ID)
}

// Container is the decoded effect list. It owns its groups and effects.
type Container struct {
	Header Header   `json:"header"`
	Groups []*Group `json:"groups"`
}

// Parse decodes an effect list. Any marker mismatch, id inconsistency or
// short buffer is reported as a *binfmt.ParseError.
func Parse(data []byte) (*Container, error) {
	r := binfmt.NewReader(data, "container")
	if len(data) != ContainerSize {
		return nil, r.Fail("size", fmt.Errorf("%w: got %d bytes, want %d", binfmt.ErrTruncated, len(data), ContainerSize))
	}

	c := &Container{}

	r.Record = "header"
	if err := parseHeader(r, &c.Header); err != nil {
		return nil, err
	}

	for r.Peek(openMarker) {
		g, err := parseGroup(r)
		if err != nil {
			return nil, err
		}
		c.Groups = append(c.Groups, g)
	}

	return c, nil
}

func parseHeader(r *binfmt.Reader, h *Header) error {
	var err error

	if err = r.Expect("open", openMarker); err != nil {
		return err
	}
	if err = r.Skip("pad0", 22); err != nil {
		return err
	}
	if h.Name, err = r.PaddedString("name", headerNameLen); err != nil {
		return err
	}
	if err = r.Skip("pad1", 6); err != nil {
		return err
	}
	if err = r.Expect("flag", []byte{0x01}); err != nil {
		return err
	}
	if err = r.Skip("pad2", 7); err != nil {
		return err
	}
	if err = r.Expect("close", closeMarker); err != nil {
		return err
	}
	return r.Skip("pad3", 22)
}

func parseGroup(r *binfmt.Reader) (*Group, error) {
	r.Record = "group"

	if err := r.Expect("open", openMarker); err != nil {
		return nil, err
	}
	id, err := r.Uint8("id")
	if err != nil {
		return nil, err
	}
	if err := r.Skip("pad0", groupPadLen); err != nil {
		return nil, err
	}

	g := &Group{ID: id, Effects: []Effect{}}

	end := closeTag(id)
	for r.Len() > 0 && !r.Peek(end) {
		// A close marker with a foreign id is either an effect whose name
		// starts with the marker bytes or a damaged trailer.
		start := r.Offset()
		ambiguous := r.Peek(closeMarker)

		e, err := parseEffect(r, id)
		if err != nil {
			if ambiguous {
				r.Rewind(start)
				break
			}
			return nil, err
		}
		g.Effects = append(g.Effects, e)
	}

	r.Record = "group"
	if err := r.Expect("close", closeMarker); err != nil {
		return nil, err
	}
	off := r.Offset()
	endID, err := r.Uint8("id_end")
	if err != nil {
		return nil, err
	}
	if endID != id {
		return nil, r.FailAt("id_end", off, fmt.Errorf("%w: trailing id %d, leading id %d", ErrGroupMismatch, endID, id))
	}
	if err := r.Skip("pad1", groupPadLen); err != nil {
		return nil, err
	}

	return g, nil
}

// closeTag is the group close marker followed by the group id.
func closeTag(id uint8) []byte {
	return append(append([]byte{}, closeMarker...), id)
}

// closesGroup reports whether an effect called name would encode to bytes
// a reader takes for the end of group id.
func closesGroup(name string, id uint8) bool {
	head := make([]byte, len(closeMarker)+1)
	copy(head, name)
	return bytes.Equal(head, closeTag(id))
}

func parseEffect(r *binfmt.Reader, group uint8) (Effect, error) {
	var (
		e   Effect
		err error
	)

	r.Record = "effect"

	if e.Name, err = r.PaddedString("name", effectNameLen); err != nil {
		return e, err
	}
	if err = r.Expect("sep0", []byte{0x00}); err != nil {
		return e, err
	}
	if e.Version, err = r.PaddedString("version", versionLen); err != nil {
		return e, err
	}
	if err = r.Expect("sep1", []byte{0x00}); err != nil {
		return e, err
	}

	off := r.Offset()
	installed, err := r.Uint8("installed")
	if err != nil {
		return e, err
	}
	switch installed {
	case 0:
	case 1:
		e.Installed = true
	default:
		return e, r.FailAt("installed", off, fmt.Errorf("flag must be 0 or 1, got %d", installed))
	}

	off = r.Offset()
	if e.ID, err = r.Uint32("id"); err != nil {
		return e, err
	}
	if GroupOf(e.ID) != group {
		return e, r.FailAt("id", off, fmt.Errorf("%w: id 0x%08X belongs to group %d, not %d", ErrGroupMismatch, e.ID, GroupOf(e.ID), group))
	}

	if err = r.Expect("pad", []byte{0x00, 0x00, 0x00}); err != nil {
		return e, err
	}

	return e, nil
}

// Build encodes the container, zero padded to ContainerSize. Values that do
// not fit their fields and content beyond ContainerSize are reported as
// *binfmt.FieldError.
func (c *Container) Build() ([]byte, error) {
	if n := c.Size(); n > ContainerSize {
		return nil, &binfmt.FieldError{Record: "container", Field: "size", Value: n, Limit: ContainerSize}
	}

	w := binfmt.NewWriter("header", ContainerSize)

	w.Write(openMarker)
	w.Zero(22)
	w.PaddedString("name", c.Header.Name, headerNameLen)
	w.Zero(6)
	w.Uint8(0x01)
	w.Zero(7)
	w.Write(closeMarker)
	w.Zero(22)

	for _, g := range c.Groups {
		w.Record = "group"
		w.Write(openMarker)
		w.Uint8(g.ID)
		w.Zero(groupPadLen)

		w.Record = "effect"
		for _, e := range g.Effects {
			if e.Group() != g.ID {
				return nil, fmt.Errorf("effect %q: id 0x%08X in group %d: %w", e.Name, e.ID, g.ID, ErrGroupMismatch)
			}
			if closesGroup(e.Name, g.ID) {
				return nil, &binfmt.FieldError{Record: "effect", Field: "name", Value: e.Name, Limit: effectNameLen}
			}
			w.PaddedString("name", e.Name, effectNameLen)
			w.Uint8(0)
			w.PaddedString("version", e.Version, versionLen)
			w.Uint8(0)
			if e.Installed {
				w.Uint8(1)
			} else {
				w.Uint8(0)
			}
			w.Uint32(e.ID)
			w.Zero(3)
		}

		w.Record = "group"
		w.Write(closeMarker)
		w.Uint8(g.ID)
		w.Zero(groupPadLen)
	}

	if err := w.Err(); err != nil {
		return nil, err
	}

	w.Zero(ContainerSize - w.Len())
	return w.Bytes(), nil
}

// Size returns the number of bytes Build will use before padding.
func (c *Container) Size() int {
	n := headerSize
	for _, g := range c.Groups {
		n += groupFixedSize + len(g.Effects)*effectSize
	}
	return n
}

// Group returns the group with the given id, or nil.
func (c *Container) Group(id uint8) *Group {
	for _, g := range c.Groups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

// Find returns the first effect called name and its group.
func (c *Container) Find(name string) (*Group, *Effect) {
	for _, g := range c.Groups {
		for i := range g.Effects {
			if g.Effects[i].Name == name {
				return g, &g.Effects[i]
			}
		}
	}
	return nil, nil
}

// Effects returns every effect in group order.
func (c *Container) Effects() []Effect {
	var out []Effect
	for _, g := range c.Groups {
		out = append(out, g.Effects...)
	}
	return out
}
