package libretro

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playbyte/system"
)

func TestIsCoreFile(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("shared object naming differs on this platform")
	}
	assert.True(t, isCoreFile("/cores/snes9x_libretro.so"))
	assert.False(t, isCoreFile("/cores/snes9x.so"))
	assert.False(t, isCoreFile("/cores/snes9x_libretro.info"))
	assert.Equal(t, "snes9x", coreName("/cores/snes9x_libretro.so"))
}

func TestGuessSystem(t *testing.T) {
	assert.Equal(t, system.SNES, guessSystem("anything", []string{"smc", "sfc", "zip"}))
	assert.Equal(t, system.GBA, guessSystem("mgba", nil))
	assert.Equal(t, system.NES, guessSystem("nestopia", []string{"fds"}))
	assert.Equal(t, system.Unknown, guessSystem("dosbox", []string{"exe"}))
}

func TestSplitExtensions(t *testing.T) {
	assert.Equal(t, []string{"smc", "sfc", "swc"}, splitExtensions("smc|SFC| swc|"))
}

func TestDriver_DetectSkipsBrokenFiles(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("shared object naming differs on this platform")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken_libretro.so"), []byte("not an elf"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0644))

	descs, err := (&Driver{}).Detect(context.Background(), []string{dir, filepath.Join(dir, "missing")})
	assert.Error(t, err)
	assert.Empty(t, descs)
}
