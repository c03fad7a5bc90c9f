package system

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// System identifies the console family a ROM or core targets.
type System uint8

const (
	Unknown System = iota
	NES
	SNES
	GBC
	GBA
)

// All lists every known system in display order.
var All = []System{NES, SNES, GBC, GBA}

var names = map[System]string{
	Unknown: "unknown",
	NES:     "nes",
	SNES:    "snes",
	GBC:     "gbc",
	GBA:     "gba",
}

var extensions = map[string]System{
	"nes": NES,
	"sfc": SNES,
	"smc": SNES,
	"gb":  GBC,
	"gbc": GBC,
	"gba": GBA,
}

// No-Intro DAT names, also used as libretro thumbnail folders.
var datNames = map[System]string{
	NES:  "Nintendo - Nintendo Entertainment System",
	SNES: "Nintendo - Super Nintendo Entertainment System",
	GBC:  "Nintendo - Game Boy Color",
	GBA:  "Nintendo - Game Boy Advance",
}

func (s System) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("system(%d)", uint8(s))
}

func (s System) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *System) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Parse accepts a system id such as "snes" (case-insensitive).
func Parse(name string) (System, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range names {
		if n == name {
			return s, nil
		}
	}
	return Unknown, fmt.Errorf("system: unknown system %q", name)
}

// FromPath derives the system from a ROM file extension.
func FromPath(path string) System {
	return FromExtension(filepath.Ext(path))
}

// FromExtension accepts an extension with or without the leading dot.
func FromExtension(ext string) System {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return extensions[ext]
}

// Extensions returns the recognized ROM extensions for s, without dots.
func (s System) Extensions() []string {
	var exts []string
	for ext, sys := range extensions {
		if sys == s {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}

// AllExtensions returns every recognized ROM extension, without dots.
func AllExtensions() []string {
	exts := make([]string, 0, len(extensions))
	for ext := range extensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// DatName is the No-Intro database name for the system.
func (s System) DatName() string {
	return datNames[s]
}

// FromDatName maps a DAT header name back to its system.
func FromDatName(name string) System {
	name = strings.TrimSpace(name)
	for s, n := range datNames {
		if strings.EqualFold(n, name) || strings.HasPrefix(strings.ToLower(name), strings.ToLower(n)+" ") {
			return s
		}
	}
	return Unknown
}
