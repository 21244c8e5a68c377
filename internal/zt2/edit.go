package zt2

import (
	"fmt"
	"strings"
)

// baseName reduces a path to the file name the pedal stores.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// AddEffect installs an effect into the group encoded in the top byte of
// id. An existing entry with the same name is dropped first and the new one
// appended, so the latest addition wins. When no group matches, one is
// created. Only the file name part of name is stored.
//
// The dedup scan deletes a match and then steps past the entry that slid
// into its slot, so of two adjacent duplicates only the first goes.
func (c *Container) AddEffect(name, version string, id uint32) error {
	name = baseName(name)
	if name == "" {
		return ErrEmptyName
	}

	e := Effect{Name: name, Version: version, Installed: true, ID: id}
	gid := GroupOf(id)

	found := false
	for _, g := range c.Groups {
		if g.ID != gid {
			continue
		}
		found = true

		for i := 0; i < len(g.Effects); i++ {
			if g.Effects[i].Name == name {
				g.Effects = append(g.Effects[:i], g.Effects[i+1:]...)
			}
		}
		g.Effects = append(g.Effects, e)
	}

	if !found {
		c.Groups = append(c.Groups, &Group{ID: gid, Effects: []Effect{e}})
	}

	return nil
}

// AddEffectFromDescriptor installs the effect described by an effect binary.
// fileName is the name the binary has on the device.
func (c *Container) AddEffectFromDescriptor(d *Descriptor, fileName string) error {
	return c.AddEffect(fileName, d.Version, d.ID)
}

// RemoveEffect removes every effect called name from all groups and
// returns how many were removed. Groups left empty are kept.
func (c *Container) RemoveEffect(name string) int {
	name = baseName(name)

	removed := 0
	for _, g := range c.Groups {
		kept := g.Effects[:0]
		for _, e := range g.Effects {
			if e.Name == name {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		g.Effects = kept
	}

	return removed
}

// ToggleInstalled flips the installed flag of the first effect called name.
func (c *Container) ToggleInstalled(name string) error {
	_, e := c.Find(name)
	if e == nil {
		return fmt.Errorf("%q: %w", name, ErrEffectNotFound)
	}
	e.Installed = !e.Installed
	return nil
}
