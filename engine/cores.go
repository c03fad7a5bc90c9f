package engine

import (
	"context"
	"sort"
	"strings"

	"playbyte/core"
	"playbyte/system"
)

// corePreferences names well-known cores per system, best first.
var corePreferences = map[system.System][]string{
	system.NES:  {"mesen", "nestopia", "fceux", "nes"},
	system.SNES: {"bsnes", "snes9x", "snes"},
	system.GBC:  {"gambatte", "sameboy", "gearboy", "gb"},
	system.GBA:  {"mgba", "gpsp", "vba", "gba"},
}

// SelectDefaultCore picks the core most used by existing Bytes of sys. With no
// such Bytes it falls back to the well-known names, then to any usable core.
func (e *Engine) SelectDefaultCore(ctx context.Context, sys system.System) (*core.Descriptor, error) {
	counts := make(map[string]int)
	for m, err := range e.Store.List(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if m.System != sys {
			continue
		}
		if d, ok := e.Bridge.Descriptor(m.CoreID); ok && d.UsableForBytes() {
			counts[m.CoreID]++
		}
	}
	if len(counts) > 0 {
		ids := make([]string, 0, len(counts))
		for id := range counts {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			if counts[ids[i]] != counts[ids[j]] {
				return counts[ids[i]] > counts[ids[j]]
			}
			return ids[i] < ids[j]
		})
		d, _ := e.Bridge.Descriptor(ids[0])
		return d, nil
	}

	var usable []*core.Descriptor
	for _, d := range e.Bridge.Cores(sys) {
		if d.UsableForBytes() {
			usable = append(usable, d)
		}
	}
	for _, needle := range corePreferences[sys] {
		for _, d := range usable {
			if coreMatchesPreference(d.ID, needle) {
				return d, nil
			}
		}
	}
	if len(usable) > 0 {
		return usable[0], nil
	}
	return nil, &NoCoreError{System: sys}
}

// coreMatchesPreference compares the name part of a core id with needle.
// Short needles must match exactly so "nes" does not pick "bsnes".
func coreMatchesPreference(id, needle string) bool {
	if _, name, ok := strings.Cut(id, ":"); ok {
		id = name
	}
	id = strings.ToLower(id)
	needle = strings.ToLower(needle)
	if id == needle {
		return true
	}
	return len(needle) >= 4 && strings.Contains(id, needle)
}
