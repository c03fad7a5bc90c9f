package rom

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playbyte/system"
	"playbyte/util"
)

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

func writeFile(t *testing.T, dir, name string, contents []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, contents, 0644))
	return path
}

func newHasher(t *testing.T) *Hasher {
	return NewHasher(util.NewTestingLogger(t), nil)
}

func TestHasher_Stable(t *testing.T) {
	dir := t.TempDir()
	contents := []byte("NES\x1a stable contents")
	path := writeFile(t, dir, "game.nes", contents)

	h := newHasher(t)
	a, err := h.Hash(context.Background(), path)
	require.NoError(t, err)
	b, err := h.Hash(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, sha1Hex(contents), a.SHA1)
	assert.Equal(t, a, b)
	assert.Equal(t, system.NES, a.System)
	assert.Empty(t, a.HeaderlessSHA1)
	assert.Equal(t, int64(len(contents)), a.Size)
}

func TestHasher_RehashesChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "game.gba", []byte("one"))
	h := newHasher(t)

	first, err := h.Hash(context.Background(), path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("two!"), 0644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	second, err := h.Hash(context.Background(), path)
	require.NoError(t, err)
	assert.NotEqual(t, first.SHA1, second.SHA1)
	assert.Equal(t, sha1Hex([]byte("two!")), second.SHA1)
}

func TestHasher_HeaderlessSNES(t *testing.T) {
	dir := t.TempDir()
	contents := make([]byte, 512+2048)
	for i := range contents {
		contents[i] = byte(i * 31)
	}
	path := writeFile(t, dir, "Game (U).smc", contents)

	rec, err := newHasher(t).Hash(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, sha1Hex(contents), rec.SHA1)
	assert.Equal(t, sha1Hex(contents[512:]), rec.HeaderlessSHA1)
	assert.True(t, rec.HasHash(sha1Hex(contents[512:])))
	assert.Len(t, rec.Hashes(), 2)

	mem := HashBytes(path, contents)
	assert.Equal(t, rec.SHA1, mem.SHA1)
	assert.Equal(t, rec.HeaderlessSHA1, mem.HeaderlessSHA1)
}

func TestHasher_NotAFile(t *testing.T) {
	_, err := newHasher(t).Hash(context.Background(), t.TempDir())
	assert.Error(t, err)
	_, err = newHasher(t).Hash(context.Background(), filepath.Join(t.TempDir(), "missing.sfc"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHasher_Canceled(t *testing.T) {
	path := writeFile(t, t.TempDir(), "big.gba", make([]byte, 1<<16))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newHasher(t).Hash(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBadgerCache_PersistsRecords(t *testing.T) {
	log := util.NewTestingLogger(t)
	cache, err := OpenBadgerCache("", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	path := writeFile(t, t.TempDir(), "game.sfc", []byte("real contents"))
	rec, err := NewHasher(log, cache).Hash(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	// a fresh hasher trusts the persisted record for an unchanged file
	fi, err := os.Stat(path)
	require.NoError(t, err)
	planted := rec
	planted.SHA1 = "0000000000000000000000000000000000000000"
	require.NoError(t, cache.Put(cacheKey(rec.Path, fi.Size(), fi.ModTime()), planted))

	got, err := NewHasher(log, cache).Hash(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, planted.SHA1, got.SHA1)

	_, ok := cache.Get("unknown")
	assert.False(t, ok)
}

func romTree(t *testing.T) string {
	dir := t.TempDir()
	writeFile(t, dir, "a.sfc", []byte("snes a"))
	writeFile(t, dir, "sub/b.NES", []byte("nes b"))
	writeFile(t, dir, "sub/deeper/c.gbc", []byte("gbc c"))
	writeFile(t, dir, "notes.txt", []byte("not a rom"))
	writeFile(t, dir, ".hidden/d.gba", []byte("hidden"))
	require.NoError(t, os.Symlink(filepath.Join(dir, "nowhere.sfc"), filepath.Join(dir, "dangling.sfc")))
	return dir
}

func TestScanner_Scan(t *testing.T) {
	dir := romTree(t)
	s := NewScanner(util.NewTestingLogger(t), newHasher(t), 2)

	var mu sync.Mutex
	var failed []string
	s.OnError = func(path string, err error) {
		mu.Lock()
		failed = append(failed, filepath.Base(path))
		mu.Unlock()
	}

	got := map[string]Record{}
	for rec := range s.Scan(context.Background(), []string{dir, filepath.Join(dir, "missing")}, nil) {
		got[filepath.Base(rec.Path)] = rec
	}

	assert.Len(t, got, 3)
	assert.Contains(t, got, "a.sfc")
	assert.Contains(t, got, "b.NES")
	assert.Contains(t, got, "c.gbc")
	assert.Equal(t, system.NES, got["b.NES"].System)
	assert.Equal(t, []string{"dangling.sfc"}, failed)

	report := s.Report()
	assert.Equal(t, 3, report.Hashed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 4, report.Seen)
}

func TestScanner_ExtensionFilter(t *testing.T) {
	dir := romTree(t)
	s := NewScanner(util.NewTestingLogger(t), newHasher(t), 1)

	var names []string
	for rec := range s.Scan(context.Background(), []string{dir}, []string{".NES", "gbc"}) {
		names = append(names, filepath.Base(rec.Path))
	}
	assert.ElementsMatch(t, []string{"b.NES", "c.gbc"}, names)
}

func TestScanner_EarlyBreakAndCancel(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, dir, filepath.Join("roms", string(rune('a'+i))+".gba"), []byte{byte(i)})
	}
	s := NewScanner(util.NewTestingLogger(t), newHasher(t), 4)

	n := 0
	for range s.Scan(context.Background(), []string{dir}, nil) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n = 0
	for range s.Scan(ctx, []string{dir}, nil) {
		n++
	}
	assert.Zero(t, n)
}

func TestLibrary_FindAndLocate(t *testing.T) {
	dir := romTree(t)
	log := util.NewTestingLogger(t)
	lib := NewLibrary(log, NewScanner(log, newHasher(t), 2), []string{dir}, nil)

	_, err := lib.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, lib.Records(), 3)

	rec, ok := lib.FindByHash(sha1Hex([]byte("nes b")))
	require.True(t, ok)
	assert.Equal(t, "b.NES", filepath.Base(rec.Path))

	// a file added after the last refresh is found by Locate's rescan
	later := []byte("added later")
	writeFile(t, dir, "late.gba", later)
	_, ok = lib.FindByHash(sha1Hex(later))
	assert.False(t, ok)
	rec, err = lib.Locate(context.Background(), sha1Hex(later))
	require.NoError(t, err)
	assert.Equal(t, "late.gba", filepath.Base(rec.Path))

	_, err = lib.Locate(context.Background(), sha1Hex([]byte("never existed")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLibrary_DropsChangedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x.sfc", []byte("original"))
	log := util.NewTestingLogger(t)
	lib := NewLibrary(log, NewScanner(log, newHasher(t), 1), []string{dir}, nil)
	_, err := lib.Refresh(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	_, ok := lib.FindByHash(sha1Hex([]byte("original")))
	assert.False(t, ok)
	assert.Empty(t, lib.Records())
}

func TestWatcher_IndexesNewFiles(t *testing.T) {
	dir := t.TempDir()
	log := util.NewTestingLogger(t)
	lib := NewLibrary(log, NewScanner(log, newHasher(t), 1), []string{dir}, nil)

	w, err := NewWatcher(log, lib, 30*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// give the watcher a moment to register the root
	time.Sleep(50 * time.Millisecond)
	contents := []byte("watched rom")
	path := writeFile(t, dir, "new.sfc", contents)
	writeFile(t, dir, "ignored.txt", []byte("nope"))

	require.Eventually(t, func() bool {
		_, ok := lib.FindByHash(sha1Hex(contents))
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		return len(lib.Records()) == 0
	}, 5*time.Second, 20*time.Millisecond)
}
