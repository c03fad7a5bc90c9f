// Package libretro loads libretro cores from shared objects without cgo.
package libretro

import (
	"path/filepath"
	"runtime"
	"strings"

	"playbyte/core"
	"playbyte/system"
)

const driverName = "libretro"

type Driver struct{}

// isCoreFile matches "<name>_libretro.<shared object ext>".
func isCoreFile(path string) bool {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if !strings.HasSuffix(strings.TrimSuffix(base, ext), "_libretro") {
		return false
	}
	switch runtime.GOOS {
	case "windows":
		return ext == ".dll"
	case "darwin":
		return ext == ".dylib" || ext == ".so"
	default:
		return ext == ".so"
	}
}

// coreName strips the "_libretro.ext" suffix.
func coreName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(strings.TrimSuffix(base, filepath.Ext(base)), "_libretro")
}

// guessSystem picks the system from the core's extension list, then from its name.
func guessSystem(name string, exts []string) system.System {
	for _, ext := range exts {
		if sys := system.FromExtension(ext); sys != system.Unknown {
			return sys
		}
	}
	hints := []struct {
		needle string
		sys    system.System
	}{
		{"snes", system.SNES}, {"bsnes", system.SNES},
		{"mgba", system.GBA}, {"gpsp", system.GBA}, {"vba", system.GBA},
		{"gambatte", system.GBC}, {"sameboy", system.GBC}, {"gearboy", system.GBC},
		{"mesen", system.NES}, {"nestopia", system.NES}, {"fceu", system.NES},
	}
	name = strings.ToLower(name)
	for _, h := range hints {
		if strings.Contains(name, h.needle) {
			return h.sys
		}
	}
	return system.Unknown
}

func splitExtensions(s string) []string {
	var exts []string
	for _, e := range strings.Split(s, "|") {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			exts = append(exts, e)
		}
	}
	return exts
}

func init() {
	core.Register(driverName, &Driver{})
}
