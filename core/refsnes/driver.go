// Package refsnes is a built-in CPU-only SNES core.
//
// A frame re-enters the ROM's emulation-mode RESET routine with both joypads
// written to WRAM $0000-$0003, and ends when the CPU reaches the address held
// in the emulation-mode COP vector. WRAM $0100-$01FF is the 16x16 frame buffer,
// indexing the BGR15 palette at WRAM $0200-$03FF.
package refsnes

import (
	"context"

	"playbyte/core"
	"playbyte/system"
)

const (
	driverName = "refsnes"
	Version    = "1.0.0"
	CoreID     = driverName + ":cpu"
)

type Driver struct{}

// Descriptor describes the built-in core.
func Descriptor() *core.Descriptor {
	return &core.Descriptor{
		ID:         CoreID,
		Driver:     driverName,
		Name:       "Reference SNES CPU",
		Version:    Version,
		System:     system.SNES,
		Path:       "builtin",
		Extensions: system.SNES.Extensions(),
		Capabilities: core.Capabilities{
			CanSerialize:  true,
			Deterministic: true,
		},
	}
}

func (d *Driver) Detect(ctx context.Context, roots []string) ([]*core.Descriptor, error) {
	return []*core.Descriptor{Descriptor()}, nil
}

func (d *Driver) Open(ctx context.Context, desc *core.Descriptor) (core.Instance, error) {
	return &Instance{desc: desc}, nil
}

func init() {
	core.Register(driverName, &Driver{})
}
