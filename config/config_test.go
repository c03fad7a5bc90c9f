package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PLAYBYTE_CONFIG_DIR", dir)

	cfg, err := Load(filepath.Join(dir, "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataRoot)
	assert.Equal(t, "blend", cfg.Match.Metric)
	assert.Equal(t, 0.8, cfg.Match.Threshold)
	assert.Equal(t, filepath.Join(dir, "bytes"), cfg.BytesDir())
	assert.Equal(t, filepath.Join(dir, "overrides.yaml"), cfg.OverridesPath())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PLAYBYTE_CONFIG_DIR", dir)
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(`
data_root = "/srv/playbyte"
rom_roots = ["/roms/a", "/roms/b"]
rom_extensions = [".SFC", "nes"]

[match]
metric = "jaro-winkler"
threshold = 0.9

[scan]
workers = 3
`), 0644))

	t.Setenv("PLAYBYTE_MATCH_THRESHOLD", "0.75")
	t.Setenv("PLAYBYTE_SCAN_WATCH", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/playbyte", cfg.DataRoot)
	assert.Equal(t, []string{"/roms/a", "/roms/b"}, cfg.RomRoots)
	assert.Equal(t, []string{"sfc", "nes"}, cfg.RomExtensions)
	assert.Equal(t, "jaro-winkler", cfg.Match.Metric)
	assert.Equal(t, 0.75, cfg.Match.Threshold)
	assert.Equal(t, 3, cfg.Scan.Workers)
	assert.False(t, cfg.Scan.Watch)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PLAYBYTE_CONFIG_DIR", dir)

	tests := []struct {
		name string
		toml string
	}{
		{"threshold", "[match]\nthreshold = 1.5\n"},
		{"workers", "[scan]\nworkers = -1\n"},
		{"extension", "rom_extensions = [\"zip\"]\n"},
		{"syntax", "data_root = \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.toml), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
