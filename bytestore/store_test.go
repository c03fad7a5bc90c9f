package bytestore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playbyte/system"
	"playbyte/util"
)

const romHash = "6b47bb75d16514b6a476aa0c73a683a2a4c18765"

func openStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(context.Background(), util.NewTestingLogger(t), t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return s
}

func sampleState(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}

func save(t *testing.T, s *Store, title string) Metadata {
	t.Helper()
	m, err := s.Save(context.Background(), Metadata{
		Title:   title,
		System:  system.SNES,
		RomSHA1: romHash,
		Tags:    []string{" speedrun", "boss", "boss", ""},
		CoreID:  "mock:x",
	}, sampleState(4096), []byte("\x89PNG fake"))
	require.NoError(t, err)
	return m
}

func TestStore_SaveAndLoad(t *testing.T) {
	s := openStore(t, Options{})
	m := save(t, s, "Super Mario World")

	assert.True(t, validID(m.ID))
	assert.Equal(t, []string{"boss", "speedrun"}, m.Tags)
	assert.Equal(t, int64(4096), m.StateSize)
	assert.Equal(t, Checksum(sampleState(4096)), m.StateChecksum)

	got, err := s.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	state, err := s.LoadState(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, sampleState(4096), state)

	thumb, err := s.LoadThumbnail(m.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG fake"), thumb)

	for _, f := range []string{MetadataFile, StateFile, ThumbnailFile} {
		assert.FileExists(t, filepath.Join(s.Root(), m.ID, f))
	}

	raw, err := os.ReadFile(filepath.Join(s.Root(), m.ID, MetadataFile))
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"byte_id", "created_at", "title", "system", "rom_sha1", "tags", "state_checksum", "state_size", "thumbnail_path", "state_path", "core_id"} {
		assert.Contains(t, fields, key)
	}
	assert.Equal(t, "snes", fields["system"])
	assert.Equal(t, "2024-05-01T12:01:00Z", fields["created_at"])
}

func TestStore_SaveRejectsDuplicatesAndBadInput(t *testing.T) {
	s := openStore(t, Options{})
	m := save(t, s, "A")

	_, err := s.Save(context.Background(), Metadata{ID: m.ID, Title: "B", RomSHA1: romHash}, []byte{1}, nil)
	assert.ErrorIs(t, err, ErrExists)

	_, err = s.Save(context.Background(), Metadata{Title: "B", RomSHA1: romHash}, nil, nil)
	assert.Error(t, err)
	_, err = s.Save(context.Background(), Metadata{Title: "B", RomSHA1: "short"}, []byte{1}, nil)
	assert.Error(t, err)
	_, err = s.Save(context.Background(), Metadata{ID: "../escape", Title: "B", RomSHA1: romHash}, []byte{1}, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestStore_InterruptedSaveLeavesNothingVisible(t *testing.T) {
	s := openStore(t, Options{})
	boom := errors.New("power cut")

	var tmpSeen string
	s.beforePublish = func(tmp string) error {
		tmpSeen = tmp
		// the container is complete in the temp dir but not visible
		for _, f := range []string{MetadataFile, StateFile, ThumbnailFile} {
			assert.FileExists(t, filepath.Join(tmp, f))
		}
		n := 0
		for range s.List(context.Background()) {
			n++
		}
		assert.Zero(t, n)

		// a concurrent reconcile must not purge a write in progress
		_, err := s.Reconcile(context.Background())
		assert.NoError(t, err)
		assert.DirExists(t, tmp)
		return boom
	}

	_, err := s.Save(context.Background(), Metadata{Title: "Lost", RomSHA1: romHash}, sampleState(10), nil)
	require.ErrorIs(t, err, boom)
	assert.NoDirExists(t, tmpSeen)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, s.Len())
}

func TestStore_ReconcilePurgesAbandonedTempDirs(t *testing.T) {
	s := openStore(t, Options{})
	keep := save(t, s, "Keep")

	leftover := filepath.Join(s.Root(), tmpPrefix+NewID()+"-12345")
	require.NoError(t, os.MkdirAll(leftover, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(leftover, StateFile), []byte("half"), 0644))

	report, err := s.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Bytes)
	assert.Len(t, report.Purged, 1)
	assert.NoDirExists(t, leftover)

	_, err = s.Get(keep.ID)
	assert.NoError(t, err)
}

func TestStore_CorruptContainerSkipped(t *testing.T) {
	s := openStore(t, Options{})
	good := save(t, s, "Good")
	badMeta := save(t, s, "Bad Metadata")
	badState := save(t, s, "Bad State")

	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), badMeta.ID, MetadataFile), []byte("{not json"), 0644))
	statePath := filepath.Join(s.Root(), badState.ID, StateFile)
	b, err := os.ReadFile(statePath)
	require.NoError(t, err)
	b[len(b)/2] ^= 0xFF
	require.NoError(t, os.WriteFile(statePath, b, 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "not-a-byte"), 0755))

	report, err := s.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Bytes)
	require.Len(t, report.Corrupt, 2)

	var titles []string
	var errs []error
	for m, err := range s.List(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		titles = append(titles, m.Title)
	}
	assert.Equal(t, []string{"Bad State", "Good"}, titles)
	require.Len(t, errs, 2)
	var ce *CorruptContainerError
	assert.ErrorAs(t, errs[0], &ce)

	_, err = s.Get(badMeta.ID)
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, badMeta.ID, ce.ID)

	_, err = s.LoadState(context.Background(), badState.ID)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, badState.ID, ce.ID)

	_, err = s.LoadState(context.Background(), good.ID)
	assert.NoError(t, err)
}

func TestStore_ChecksumMismatch(t *testing.T) {
	s := openStore(t, Options{})
	m := save(t, s, "Tampered")

	// valid xz, wrong contents
	require.NoError(t, os.Remove(filepath.Join(s.Root(), m.ID, StateFile)))
	require.NoError(t, writeState(context.Background(), filepath.Join(s.Root(), m.ID, StateFile), sampleState(4095)))
	_, err := s.LoadState(context.Background(), m.ID)
	var ce *CorruptContainerError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Reason, "4095")

	require.NoError(t, os.Remove(filepath.Join(s.Root(), m.ID, StateFile)))
	other := sampleState(4096)
	other[0] ^= 1
	require.NoError(t, writeState(context.Background(), filepath.Join(s.Root(), m.ID, StateFile), other))
	_, err = s.LoadState(context.Background(), m.ID)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "state checksum mismatch", ce.Reason)
}

func TestStore_ListNewestFirstAndRestartable(t *testing.T) {
	s := openStore(t, Options{})
	for _, title := range []string{"first", "second", "third"} {
		save(t, s, title)
	}

	collect := func() []string {
		var titles []string
		for m, err := range s.List(context.Background()) {
			require.NoError(t, err)
			titles = append(titles, m.Title)
		}
		return titles
	}
	assert.Equal(t, []string{"third", "second", "first"}, collect())
	assert.Equal(t, collect(), collect())

	for m := range s.List(context.Background()) {
		assert.Equal(t, "third", m.Title)
		break
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, err := range s.List(ctx) {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestStore_RenameRetagDelete(t *testing.T) {
	s := openStore(t, Options{})
	m := save(t, s, "Original")

	renamed, err := s.Rename(m.ID, "  New Name ")
	require.NoError(t, err)
	assert.Equal(t, "New Name", renamed.Title)
	assert.Equal(t, m.StateChecksum, renamed.StateChecksum)

	_, err = s.Rename(m.ID, " ")
	assert.Error(t, err)

	retagged, err := s.Retag(m.ID, []string{"b", "a", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, retagged.Tags)

	// survives a full rebuild
	_, err = s.Reconcile(context.Background())
	require.NoError(t, err)
	got, err := s.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.Title)
	assert.Equal(t, []string{"a", "b"}, got.Tags)

	require.NoError(t, s.Delete(m.ID))
	var nf *ByteNotFoundError
	_, err = s.Get(m.ID)
	assert.ErrorAs(t, err, &nf)
	assert.ErrorAs(t, s.Delete(m.ID), &nf)
	_, err = s.Rename(m.ID, "x")
	assert.ErrorAs(t, err, &nf)
	_, err = s.Rename("nope", "x")
	assert.ErrorAs(t, err, &nf)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_GetSeesBytesFromOtherWriters(t *testing.T) {
	s := openStore(t, Options{})
	m := save(t, s, "Shared")

	other, err := Open(context.Background(), util.NewTestingLogger(t), s.Root(), Options{})
	require.NoError(t, err)
	defer other.Close()
	n := save(t, s, "Later")

	got, err := other.Get(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Later", got.Title)
	_, err = other.Get(m.ID)
	assert.NoError(t, err)
}

func TestStore_ReconcileDuringWrites(t *testing.T) {
	s := openStore(t, Options{})
	ctx := context.Background()

	var doomed []Metadata
	for i := 0; i < 40; i++ {
		doomed = append(doomed, save(t, s, "doomed"))
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := s.Reconcile(ctx); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	kept := make([]Metadata, 20)
	var writers sync.WaitGroup
	writers.Add(2)
	go func() {
		defer writers.Done()
		for _, m := range doomed {
			if err := s.Delete(m.ID); err != nil {
				t.Error(err)
			}
		}
	}()
	go func() {
		defer writers.Done()
		created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		for i := range kept {
			m, err := s.Save(ctx, Metadata{
				Title:     "kept",
				System:    system.SNES,
				RomSHA1:   romHash,
				CoreID:    "mock:x",
				CreatedAt: created.Add(time.Duration(i) * time.Second),
			}, sampleState(512), []byte("\x89PNG fake"))
			if err != nil {
				t.Error(err)
				continue
			}
			kept[i] = m
		}
	}()
	writers.Wait()
	close(stop)
	wg.Wait()

	var listed []string
	for m, err := range s.List(ctx) {
		require.NoError(t, err)
		assert.Equal(t, "kept", m.Title)
		listed = append(listed, m.ID)
	}
	assert.Len(t, listed, len(kept))
	for _, m := range kept {
		assert.Contains(t, listed, m.ID)
	}

	var nf *ByteNotFoundError
	for _, m := range doomed {
		_, err := s.LoadState(ctx, m.ID)
		assert.ErrorAs(t, err, &nf)
	}
}

func TestStore_PrefetchAndNeighbours(t *testing.T) {
	s := openStore(t, Options{CacheBytes: 1 << 20})
	a := save(t, s, "a")
	b := save(t, s, "b")
	c := save(t, s, "c")

	assert.Equal(t, []string{b.ID, a.ID}, s.Neighbours(c.ID, 5))
	assert.Equal(t, []string{b.ID}, s.Neighbours(c.ID, 1))
	assert.Empty(t, s.Neighbours(a.ID, 3))

	s.Prefetch(context.Background(), s.Neighbours(c.ID, 2)...)
	cached, ok := s.cached(cacheState, b.ID)
	require.True(t, ok)
	assert.Equal(t, sampleState(4096), cached)

	s.PrefetchAsync(context.Background(), a.ID)
	s.prefetches.Wait()
	_, ok = s.cached(cacheState, a.ID)
	assert.True(t, ok)

	// cached reads still go through the index
	require.NoError(t, s.Delete(b.ID))
	_, err := s.LoadState(context.Background(), b.ID)
	var nf *ByteNotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestTransient(t *testing.T) {
	assert.False(t, transient(os.ErrNotExist))
	assert.False(t, transient(corrupt("x", "y", nil)))
	assert.False(t, transient(context.Canceled))
	assert.True(t, transient(&os.PathError{Op: "read", Path: "x", Err: syscall.EIO}))

	calls := 0
	err := retryOnce(func() error {
		calls++
		if calls == 1 {
			return &os.PathError{Op: "read", Path: "x", Err: syscall.EIO}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{}, NormalizeTags(nil))
	assert.Equal(t, []string{"a", "b c"}, NormalizeTags([]string{" b c ", "a", "", "a"}))
	assert.False(t, strings.Contains(Checksum([]byte("x")), " "))
}
