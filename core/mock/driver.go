// Package mock provides deterministic toy cores described by *.mockcore manifests.
package mock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"playbyte/core"
	"playbyte/system"
)

const driverName = "mock"

// ManifestExt marks manifest files in the cores root.
const ManifestExt = ".mockcore"

// Manifest describes a mock core.
type Manifest struct {
	Name       string   `toml:"name"`
	System     string   `toml:"system"`
	Version    string   `toml:"version"`
	Serialize  bool     `toml:"serialize"`
	Extensions []string `toml:"extensions"`
	// FaultAfter makes Step panic once this many frames have run; 0 disables it.
	FaultAfter uint64 `toml:"fault_after"`
	// MinROMSize makes Load reject smaller ROMs.
	MinROMSize int `toml:"min_rom_size"`
}

type Driver struct{}

func (d *Driver) Detect(ctx context.Context, roots []string) ([]*core.Descriptor, error) {
	var descs []*core.Descriptor
	var errs []error
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if de.IsDir() || !strings.EqualFold(filepath.Ext(path), ManifestExt) {
				return nil
			}

			desc, err := Describe(path)
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			descs = append(descs, desc)
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return descs, errors.Join(errs...)
}

func (d *Driver) Open(ctx context.Context, desc *core.Descriptor) (core.Instance, error) {
	m, err := ReadManifest(desc.Path)
	if err != nil {
		return nil, core.NewCoreLoadError(desc.ID, err)
	}
	inst := &Instance{desc: desc, m: m}
	if m.Serialize {
		return &SerializingInstance{Instance: inst}, nil
	}
	return inst, nil
}

// ReadManifest parses a .mockcore file.
func ReadManifest(path string) (m Manifest, err error) {
	if _, err = toml.DecodeFile(path, &m); err != nil {
		return m, fmt.Errorf("mock: manifest %s: %w", path, err)
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
	return m, nil
}

// Describe builds the descriptor for a manifest file.
func Describe(path string) (*core.Descriptor, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	sys, err := system.Parse(m.System)
	if err != nil {
		return nil, fmt.Errorf("mock: manifest %s: %w", path, err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	exts := m.Extensions
	if len(exts) == 0 {
		exts = sys.Extensions()
	}
	name := m.Name
	if name == "" {
		name = base
	}

	return &core.Descriptor{
		ID:         driverName + ":" + base,
		Driver:     driverName,
		Name:       name,
		Version:    m.Version,
		System:     sys,
		Path:       path,
		Extensions: exts,
		Capabilities: core.Capabilities{
			CanSerialize:  m.Serialize,
			Deterministic: true,
		},
	}, nil
}

func init() {
	core.Register(driverName, &Driver{})
}
