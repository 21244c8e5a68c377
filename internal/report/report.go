// Package report turns decoded effect lists and patches into JSON
// documents and human readable text.
package report

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"zoomzt2/internal/zptc"
	"zoomzt2/internal/zt2"
)

type EffectReport struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Installed bool   `json:"installed"`
	ID        string `json:"id"`
	FXID      uint32 `json:"fxid"`
	GID       uint32 `json:"gid"`
}

type GroupReport struct {
	ID      uint8          `json:"group"`
	Name    string         `json:"groupname,omitempty"`
	Effects []EffectReport `json:"effects"`
}

type ContainerReport struct {
	Name   string        `json:"name"`
	Groups []GroupReport `json:"groups"`
}

func hexID(id uint32) string {
	return fmt.Sprintf("0x%08X", id)
}

// Container describes an effect list.
func Container(c *zt2.Container) ContainerReport {
	r := ContainerReport{Name: c.Header.Name, Groups: []GroupReport{}}
	for _, g := range c.Groups {
		gr := GroupReport{ID: g.ID, Name: g.Name(), Effects: []EffectReport{}}
		for i := range g.Effects {
			e := &g.Effects[i]
			gr.Effects = append(gr.Effects, EffectReport{
				Name:      e.Name,
				Version:   e.Version,
				Installed: e.Installed,
				ID:        hexID(e.ID),
				FXID:      e.FXID(),
				GID:       e.GID(),
			})
		}
		r.Groups = append(r.Groups, gr)
	}
	return r
}

// WriteJSON writes v indented, followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// WriteSummary lists the groups and effects of c, one line each.
func WriteSummary(w io.Writer, c *zt2.Container) error {
	ew := &errWriter{w: w}
	for _, g := range c.Groups {
		name := g.Name()
		if name == "" {
			name = "?"
		}
		ew.printf("Group %d: %s\n", g.ID, name)
		for i := range g.Effects {
			e := &g.Effects[i]
			state := "installed"
			if !e.Installed {
				state = "not installed"
			}
			ew.printf("    %-12s ver=%-4s id=%s fxid=%d gid=%d %s\n",
				e.Name, e.Version, hexID(e.ID), e.FXID(), e.GID(), state)
		}
	}
	return ew.err
}

// WriteScript writes the commands that rebuild c's effect list into file,
// one add per effect in order.
func WriteScript(w io.Writer, c *zt2.Container, program, file string) error {
	ew := &errWriter{w: w}
	for _, g := range c.Groups {
		for i := range g.Effects {
			e := &g.Effects[i]
			ew.printf("%s add --id %s --version %s %s %s\n", program, hexID(e.ID), e.Version, e.Name, file)
		}
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// EffectKey identifies an effect the way EDTB records reference it.
type EffectKey struct {
	FXID uint32
	GID  uint32
}

// EffectInfo is what is known about an installed effect.
type EffectInfo struct {
	File        string      `json:"filename,omitempty"`
	Name        string      `json:"name"`
	Version     string      `json:"version,omitempty"`
	Group       uint8       `json:"group"`
	Description string      `json:"description,omitempty"`
	NumParams   int         `json:"numParams,omitempty"`
	NumSlots    int         `json:"numSlots,omitempty"`
	Params      []zt2.Param `json:"parameters,omitempty"`
}

// Effect describes an effect binary. file is its name on the device.
func Effect(d *zt2.Descriptor, file string) EffectInfo {
	return EffectInfo{
		File:        file,
		Name:        d.Name,
		Version:     d.Version,
		Group:       d.Group,
		Description: d.Description,
		NumParams:   len(d.Params),
		NumSlots:    zt2.SlotsFor(len(d.Params)),
		Params:      d.Params,
	}
}

// Catalog maps effect keys to what the effect list and the effect
// binaries say about them.
type Catalog map[EffectKey]EffectInfo

// NewCatalog indexes every effect of c. The bypass effect, key 0/0, is
// always present.
func NewCatalog(c *zt2.Container) Catalog {
	cat := Catalog{
		{}: {Name: "Bypass", Version: "1.00", Description: "No effect."},
	}
	if c == nil {
		return cat
	}
	for _, g := range c.Groups {
		for i := range g.Effects {
			e := &g.Effects[i]
			cat[EffectKey{FXID: e.FXID(), GID: e.GID()}] = EffectInfo{
				File:    e.Name,
				Name:    e.Name,
				Version: e.Version,
				Group:   g.ID,
			}
		}
	}
	return cat
}

// AddDescriptor records what an effect binary says about itself. file is
// the binary's name on the device; a name already known from the effect
// list is kept.
func (cat Catalog) AddDescriptor(d *zt2.Descriptor, file string) {
	key := EffectKey{FXID: d.ID & 0xFFFF, GID: (d.ID & 0xFFFF0000) >> 21}
	info := Effect(d, file)
	if known := cat[key].File; known != "" {
		info.File = known
	}
	cat[key] = info
}

// ParamReport is a slot parameter value labelled with what the effect
// binary says about it.
type ParamReport struct {
	zt2.Param
	Value uint16 `json:"value"`
}

type SlotReport struct {
	FXID    uint32        `json:"fxid"`
	GID     uint32        `json:"gid"`
	Enabled bool          `json:"enabled"`
	Effect  *EffectInfo   `json:"effect,omitempty"`
	Params  []uint16      `json:"params"`
	Labels  []ParamReport `json:"labelled,omitempty"`
}

type PatchReport struct {
	Slot        int          `json:"slot,omitempty"`
	Name        string       `json:"patchname"`
	Description string       `json:"description"`
	Effects     []SlotReport `json:"fx"`
}

// Patch describes p. Effects found in cat are named and their parameters
// labelled; cat may be nil.
func Patch(p *zptc.Patch, cat Catalog) PatchReport {
	r := PatchReport{
		Name:        p.Header.Name,
		Description: p.Text(),
		Effects:     []SlotReport{},
	}
	for _, s := range p.ActiveSlots() {
		sr := SlotReport{
			FXID:    s.FXID(),
			GID:     s.GID(),
			Enabled: s.Enabled,
			Params:  append([]uint16{}, s.Params[:]...),
		}
		if info, ok := cat[EffectKey{FXID: sr.FXID, GID: sr.GID}]; ok {
			n := min(len(info.Params), len(s.Params))
			for i := 0; i < n; i++ {
				sr.Labels = append(sr.Labels, ParamReport{Param: info.Params[i], Value: s.Params[i]})
			}
			info.Params = nil
			sr.Effect = &info
		}
		r.Effects = append(r.Effects, sr)
	}
	return r
}
