package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playbyte/config"
	"playbyte/core/refsnes"
)

type harness struct {
	cfg     *config.Config
	romPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.Scan.Workers = 1
	require.NoError(t, os.MkdirAll(cfg.RomRoots[0], 0755))

	romPath := filepath.Join(cfg.RomRoots[0], "random_hack_v3.sfc")
	require.NoError(t, os.WriteFile(romPath, refsnes.BuildROM("RANDOM HACK", 0x01, 0), 0644))
	return &harness{cfg: cfg, romPath: romPath}
}

func (h *harness) run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), h.cfg, args, &out), strings.Join(args, " "))
	return out.String()
}

func TestBytectl_Lifecycle(t *testing.T) {
	h := newHarness(t)

	out := h.run(t, "scan")
	assert.Contains(t, out, "unresolved")
	assert.Contains(t, out, "random hack v3")
	assert.Contains(t, out, "1 seen, 1 hashed")

	out = h.run(t, "create", "-frames", "10", "-hold", "a+right", "-name", "cli byte", h.romPath)
	fields := strings.Fields(out)
	require.NotEmpty(t, fields)
	id := fields[0]
	assert.Contains(t, out, "cli byte")

	assert.Contains(t, h.run(t, "list"), "cli byte")

	// resuming twice with the same input gives the same frame:
	first := h.run(t, "load", "-frames", "5", id)
	second := h.run(t, "load", "-frames", "5", id)
	assert.Contains(t, first, "random hack v3")
	assert.Equal(t, first, second)

	h.run(t, "rename", id, "renamed")
	assert.Contains(t, h.run(t, "list"), "renamed")

	assert.Contains(t, h.run(t, "reconcile"), "1 bytes")

	h.run(t, "delete", id)
	assert.NotContains(t, h.run(t, "list"), id)
}

func TestBytectl_Override(t *testing.T) {
	h := newHarness(t)

	out := h.run(t, "resolve", h.romPath)
	assert.Contains(t, out, "unresolved")

	hash := ""
	for _, line := range strings.Split(h.run(t, "scan"), "\n") {
		if f := strings.Fields(line); len(f) > 1 && f[0] == "snes" {
			hash = f[1]
		}
	}
	require.Len(t, hash, 40)

	h.run(t, "override", hash, "My Hack")
	assert.Contains(t, h.run(t, "override"), "My Hack")
	assert.Contains(t, h.run(t, "resolve", h.romPath), "override")

	h.run(t, "override", "-clear", hash)
	assert.Contains(t, h.run(t, "resolve", h.romPath), "unresolved")
}

func TestBytectl_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := [][]string{
		{"nope"},
		{"resolve"},
		{"create"},
		{"create", "-hold", "turbo", h.romPath},
		{"load", "6f1c2a9e-3b5d-4c8e-9a7f-2d4b6e8c0a1f"},
		{"rename", "only-id"},
		{"override", "-clear"},
	}
	for _, args := range tests {
		var out bytes.Buffer
		assert.Error(t, run(ctx, h.cfg, args, &out), strings.Join(args, " "))
	}
}
