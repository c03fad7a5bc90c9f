package core

import (
	"fmt"
	"strings"

	"playbyte/system"
)

type Capabilities struct {
	CanSerialize  bool `json:"canSerialize"`
	Deterministic bool `json:"deterministic"`
}

// Descriptor is the immutable description of a discovered core.
type Descriptor struct {
	// ID is unique across drivers, e.g. "libretro:snes9x".
	ID         string        `json:"id"`
	Driver     string        `json:"driver"`
	Name       string        `json:"name"`
	Version    string        `json:"version"`
	System     system.System `json:"system"`
	Path       string        `json:"path"`
	Extensions []string      `json:"extensions"`

	Capabilities Capabilities `json:"capabilities"`

	// Problem explains why the core cannot be used to create Bytes.
	Problem string `json:"problem,omitempty"`
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s %s (%s)", d.ID, d.Version, d.System)
}

// UsableForBytes reports whether states captured from this core can be persisted.
func (d *Descriptor) UsableForBytes() bool {
	return d.Capabilities.CanSerialize && d.Problem == ""
}

// Accepts reports whether the core lists ext among its valid extensions.
func (d *Descriptor) Accepts(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, e := range d.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}
