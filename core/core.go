// Package core drives pluggable emulation cores: discovery, a session arena,
// frame stepping and state capture/restore.
package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Driver finds cores of one kind and opens instances of them.
type Driver interface {
	// Detect returns descriptors for every core of this kind found under roots.
	Detect(ctx context.Context, roots []string) ([]*Descriptor, error)

	// Open creates a fresh instance of the described core. No ROM is loaded yet.
	Open(ctx context.Context, desc *Descriptor) (Instance, error)
}

// Instance is a single loaded copy of a core.
type Instance interface {
	// Load binds the instance to a ROM. Returns RomRejectedError if the core refuses it.
	Load(romPath string, rom []byte) error

	// Step runs exactly one frame with the given controller input.
	Step(input Input) (FrameOutput, error)

	Close() error
}

// Serializer is implemented by instances whose core can snapshot its state.
type Serializer interface {
	Serialize() ([]byte, error)
	Unserialize(state []byte) error
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a core driver available by the provided name.
// If Register is called twice with the same name or if driver is nil,
// it panics.
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("core: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("core: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Drivers returns a sorted list of the names of the registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	list := make([]string, 0, len(drivers))
	for name := range drivers {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

func driverByName(name string) (Driver, error) {
	driversMu.RLock()
	d, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("core: unknown driver %q (forgotten import?)", name)
	}
	return d, nil
}
