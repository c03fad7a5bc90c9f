// Package bytestore persists Bytes: one directory per id holding byte.json,
// thumbnail.png and an xz-compressed state, published atomically.
package bytestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"

	"playbyte/util"
)

const tmpPrefix = ".tmp-"

type Options struct {
	// CacheBytes bounds the decompressed state and thumbnail cache. Zero disables it.
	CacheBytes int64
}

// Store is the catalog of Bytes under one root directory. The in-memory index
// is derived from the directory tree and can always be rebuilt by Reconcile.
type Store struct {
	root string
	log  *logrus.Entry

	mu      sync.RWMutex
	index   map[string]Metadata
	corrupt map[string]*CorruptContainerError

	// gate is held shared by every writer and exclusively by Reconcile.
	gate sync.RWMutex

	slotsMu sync.Mutex
	slots   map[string]*slot

	cache *ristretto.Cache
	// prefetches tracks background warming; Close waits for it.
	prefetches sync.WaitGroup

	// beforePublish runs after the temporary container is complete.
	beforePublish func(tmpDir string) error
	now           func() time.Time
}

type slot struct {
	mu   sync.Mutex
	refs int
}

// Open prepares root and indexes the Bytes already in it.
func Open(ctx context.Context, log *logrus.Entry, root string, opts Options) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	s := &Store{
		root:    root,
		log:     util.Component(log, "bytestore"),
		index:   make(map[string]Metadata),
		corrupt: make(map[string]*CorruptContainerError),
		slots:   make(map[string]*slot),
		now:     func() time.Time { return time.Now().UTC() },
	}

	if opts.CacheBytes > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 1e4,
			MaxCost:     opts.CacheBytes,
			BufferItems: 64,
		})
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}

	if _, err := s.Reconcile(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Root() string { return s.root }

func (s *Store) Close() {
	s.prefetches.Wait()
	if s.cache != nil {
		s.cache.Close()
	}
}

func (s *Store) dir(id string) string { return filepath.Join(s.root, id) }

// lock acquires the write slot for id.
func (s *Store) lock(id string) func() {
	s.gate.RLock()
	s.slotsMu.Lock()
	sl := s.slots[id]
	if sl == nil {
		sl = &slot{}
		s.slots[id] = sl
	}
	sl.refs++
	s.slotsMu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		s.slotsMu.Lock()
		if sl.refs--; sl.refs == 0 {
			delete(s.slots, id)
		}
		s.slotsMu.Unlock()
		s.gate.RUnlock()
	}
}

func (s *Store) busy(id string) bool {
	s.slotsMu.Lock()
	defer s.slotsMu.Unlock()
	return s.slots[id] != nil
}

// Save writes a new Byte. ID, CreatedAt, checksum, size and file names are
// filled in when empty. Nothing becomes visible until the container is complete.
func (s *Store) Save(ctx context.Context, m Metadata, state, thumbnail []byte) (Metadata, error) {
	if len(state) == 0 {
		return Metadata{}, errors.New("bytestore: empty state")
	}
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.Tags = NormalizeTags(m.Tags)
	m.StateChecksum = Checksum(state)
	m.StateSize = int64(len(state))
	m.StatePath = StateFile
	m.ThumbnailPath = ThumbnailFile
	if err := m.validate(); err != nil {
		return Metadata{}, fmt.Errorf("bytestore: %w", err)
	}

	unlock := s.lock(m.ID)
	defer unlock()

	final := s.dir(m.ID)
	if _, err := os.Lstat(final); err == nil {
		return Metadata{}, fmt.Errorf("%w: %s", ErrExists, m.ID)
	}

	tmp, err := os.MkdirTemp(s.root, tmpPrefix+m.ID+"-")
	if err != nil {
		return Metadata{}, err
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(tmp)
		}
	}()

	if err = writeState(ctx, filepath.Join(tmp, m.StatePath), state); err != nil {
		return Metadata{}, err
	}
	if err = writeFileSync(filepath.Join(tmp, m.ThumbnailPath), thumbnail); err != nil {
		return Metadata{}, err
	}
	meta, err := encodeMetadata(m)
	if err != nil {
		return Metadata{}, err
	}
	if err = writeFileSync(filepath.Join(tmp, MetadataFile), meta); err != nil {
		return Metadata{}, err
	}
	syncDir(tmp)

	if err = ctx.Err(); err != nil {
		return Metadata{}, err
	}
	if s.beforePublish != nil {
		if err = s.beforePublish(tmp); err != nil {
			return Metadata{}, err
		}
	}
	if err = publishDir(tmp, final); err != nil {
		return Metadata{}, err
	}
	published = true
	syncDir(s.root)

	s.mu.Lock()
	s.index[m.ID] = m
	delete(s.corrupt, m.ID)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"byte": m.ID, "title": m.Title, "state": m.StateSize}).Info("byte saved")
	return m, nil
}

func writeState(ctx context.Context, path string, state []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := xz.NewWriter(f)
	if err != nil {
		return err
	}
	const chunk = 1 << 20
	for off := 0; off < len(state); off += chunk {
		if err = ctx.Err(); err != nil {
			return err
		}
		end := min(off+chunk, len(state))
		if _, err = zw.Write(state[off:end]); err != nil {
			return err
		}
	}
	if err = zw.Close(); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	return f.Close()
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err = f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Get returns the metadata of a Byte.
func (s *Store) Get(id string) (Metadata, error) {
	s.mu.RLock()
	m, ok := s.index[id]
	ce := s.corrupt[id]
	s.mu.RUnlock()
	if ok {
		return m, nil
	}
	if ce != nil {
		return Metadata{}, ce
	}
	if !validID(id) {
		return Metadata{}, &ByteNotFoundError{ID: id}
	}

	// published by someone else since the last reconcile?
	unlock := s.lock(id)
	defer unlock()
	m, err := s.readMetadata(id)
	if err != nil {
		return Metadata{}, err
	}
	s.mu.Lock()
	s.index[id] = m
	s.mu.Unlock()
	return m, nil
}

func (s *Store) readMetadata(id string) (Metadata, error) {
	var b []byte
	err := retryOnce(func() (err error) {
		b, err = os.ReadFile(filepath.Join(s.dir(id), MetadataFile))
		return
	})
	if errors.Is(err, fs.ErrNotExist) {
		if _, statErr := os.Stat(s.dir(id)); statErr == nil {
			return Metadata{}, corrupt(id, "metadata missing", err)
		}
		return Metadata{}, &ByteNotFoundError{ID: id}
	}
	if err != nil {
		return Metadata{}, err
	}

	m, err := decodeMetadata(b)
	if err != nil {
		return Metadata{}, corrupt(id, "invalid metadata", err)
	}
	if m.ID != id {
		return Metadata{}, corrupt(id, fmt.Sprintf("metadata names id %s", m.ID), nil)
	}
	return m, nil
}

type cacheKind byte

const (
	cacheState cacheKind = 's'
	cacheThumb cacheKind = 't'
)

func cacheKey(kind cacheKind, id string) string { return string(kind) + ":" + id }

func (s *Store) cached(kind cacheKind, id string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	v, ok := s.cache.Get(cacheKey(kind, id))
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (s *Store) remember(kind cacheKind, id string, b []byte) {
	if s.cache != nil {
		s.cache.Set(cacheKey(kind, id), b, int64(len(b)))
	}
}

func (s *Store) forget(id string) {
	if s.cache != nil {
		s.cache.Del(cacheKey(cacheState, id))
		s.cache.Del(cacheKey(cacheThumb, id))
	}
}

// LoadState returns the decompressed state after checking its size and
// checksum against the metadata. The returned slice must not be modified.
func (s *Store) LoadState(ctx context.Context, id string) ([]byte, error) {
	m, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if b, ok := s.cached(cacheState, id); ok {
		return b, nil
	}

	var state []byte
	err = retryOnce(func() (err error) {
		state, err = readState(ctx, filepath.Join(s.dir(id), m.StatePath), m.StateSize)
		return
	})
	if err != nil {
		var ce *CorruptContainerError
		if errors.As(err, &ce) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, withID(err, id)
		}
		return nil, corrupt(id, "state unreadable", err)
	}
	if int64(len(state)) != m.StateSize {
		return nil, corrupt(id, fmt.Sprintf("state is %d bytes, metadata says %d", len(state), m.StateSize), nil)
	}
	if Checksum(state) != m.StateChecksum {
		return nil, corrupt(id, "state checksum mismatch", nil)
	}

	s.remember(cacheState, id, state)
	return state, nil
}

func withID(err error, id string) error {
	var ce *CorruptContainerError
	if errors.As(err, &ce) && ce.ID == "" {
		ce.ID = id
	}
	return err
}

func readState(ctx context.Context, path string, want int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := xz.NewReader(f)
	if err != nil {
		return nil, corrupt("", "state is not xz", err)
	}
	buf := bytes.NewBuffer(make([]byte, 0, want))
	// one byte over the expected size is enough to detect trailing data
	lim := io.LimitReader(zr, want+1)
	for {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		var n int64
		n, err = io.CopyN(buf, lim, 1<<20)
		if err == io.EOF || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return nil, corrupt("", "state does not decompress", err)
		}
	}
	return buf.Bytes(), nil
}

// LoadThumbnail returns the thumbnail image bytes.
func (s *Store) LoadThumbnail(id string) ([]byte, error) {
	m, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if b, ok := s.cached(cacheThumb, id); ok {
		return b, nil
	}
	var b []byte
	err = retryOnce(func() (err error) {
		b, err = os.ReadFile(filepath.Join(s.dir(id), m.ThumbnailPath))
		return
	})
	if err != nil {
		return nil, corrupt(id, "thumbnail unreadable", err)
	}
	s.remember(cacheThumb, id, b)
	return b, nil
}

// Rename changes the display title.
func (s *Store) Rename(id, title string) (Metadata, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Metadata{}, errors.New("bytestore: title must not be empty")
	}
	return s.update(id, func(m *Metadata) { m.Title = title })
}

// Retag replaces the tag set.
func (s *Store) Retag(id string, tags []string) (Metadata, error) {
	return s.update(id, func(m *Metadata) { m.Tags = NormalizeTags(tags) })
}

// update rewrites byte.json in place by replacing the file atomically.
func (s *Store) update(id string, fn func(*Metadata)) (Metadata, error) {
	if !validID(id) {
		return Metadata{}, &ByteNotFoundError{ID: id}
	}
	unlock := s.lock(id)
	defer unlock()

	m, err := s.readMetadata(id)
	if err != nil {
		return Metadata{}, err
	}
	fn(&m)
	if err = m.validate(); err != nil {
		return Metadata{}, fmt.Errorf("bytestore: %w", err)
	}
	b, err := encodeMetadata(m)
	if err != nil {
		return Metadata{}, err
	}

	dir := s.dir(id)
	f, err := os.CreateTemp(dir, ".byte-*.json")
	if err != nil {
		return Metadata{}, err
	}
	defer os.Remove(f.Name())
	if _, err = f.Write(b); err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Metadata{}, err
	}
	if err = os.Rename(f.Name(), filepath.Join(dir, MetadataFile)); err != nil {
		return Metadata{}, err
	}
	syncDir(dir)

	s.mu.Lock()
	s.index[id] = m
	s.mu.Unlock()
	return m, nil
}

// Delete removes a Byte. The directory is first moved aside so readers never
// see a partially deleted container.
func (s *Store) Delete(id string) error {
	if !validID(id) {
		return &ByteNotFoundError{ID: id}
	}
	unlock := s.lock(id)
	defer unlock()

	dir := s.dir(id)
	if _, err := os.Lstat(dir); errors.Is(err, fs.ErrNotExist) {
		s.drop(id)
		return &ByteNotFoundError{ID: id}
	}

	trash, err := os.MkdirTemp(s.root, tmpPrefix+"del-"+id+"-")
	if err != nil {
		return err
	}
	target := filepath.Join(trash, id)
	if err = os.Rename(dir, target); err != nil {
		_ = os.Remove(trash)
		return err
	}
	s.drop(id)
	if err = os.RemoveAll(trash); err != nil {
		s.log.WithError(err).WithField("byte", id).Warn("could not remove deleted byte; will retry on reconcile")
	}
	s.log.WithField("byte", id).Info("byte deleted")
	return nil
}

func (s *Store) drop(id string) {
	s.mu.Lock()
	delete(s.index, id)
	delete(s.corrupt, id)
	s.mu.Unlock()
	s.forget(id)
}

// ReconcileReport summarizes a rebuild of the index.
type ReconcileReport struct {
	Bytes   int
	Corrupt []*CorruptContainerError
	Purged  []string
}

// Reconcile rebuilds the index from the directory tree. Corrupt containers are
// reported and skipped; abandoned temporary directories are removed. Writers
// wait until the new index is installed.
func (s *Store) Reconcile(ctx context.Context) (ReconcileReport, error) {
	s.gate.Lock()
	defer s.gate.Unlock()

	var report ReconcileReport
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return report, err
	}

	index := make(map[string]Metadata)
	bad := make(map[string]*CorruptContainerError)
	for _, e := range entries {
		if err = ctx.Err(); err != nil {
			return report, err
		}
		name := e.Name()
		if strings.HasPrefix(name, tmpPrefix) {
			if s.abandoned(name) {
				if err := os.RemoveAll(filepath.Join(s.root, name)); err == nil {
					report.Purged = append(report.Purged, name)
				}
			}
			continue
		}
		if !e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !validID(name) {
			ce := corrupt(name, "directory name is not a byte id", nil)
			bad[name] = ce
			continue
		}

		m, err := s.readMetadata(name)
		if err == nil {
			err = checkFiles(s.dir(name), m)
		}
		if err != nil {
			var ce *CorruptContainerError
			if !errors.As(err, &ce) {
				ce = corrupt(name, "unreadable", err)
			}
			bad[name] = ce
			continue
		}
		index[name] = m
	}

	s.mu.Lock()
	s.index = index
	s.corrupt = bad
	s.mu.Unlock()

	report.Bytes = len(index)
	for _, ce := range bad {
		report.Corrupt = append(report.Corrupt, ce)
		s.log.WithError(ce).WithField("byte", ce.ID).Warn("skipping corrupt byte")
	}
	sort.Slice(report.Corrupt, func(i, j int) bool { return report.Corrupt[i].ID < report.Corrupt[j].ID })
	return report, nil
}

// abandoned reports whether a temporary directory belongs to no write in progress.
func (s *Store) abandoned(name string) bool {
	rest := strings.TrimPrefix(name, tmpPrefix)
	rest = strings.TrimPrefix(rest, "del-")
	// the id is the 36-character uuid before the random suffix
	if len(rest) >= 36 && s.busy(rest[:36]) {
		return false
	}
	return true
}

func checkFiles(dir string, m Metadata) error {
	for _, p := range []string{m.StatePath, m.ThumbnailPath} {
		fi, err := os.Stat(filepath.Join(dir, p))
		if err != nil {
			return corrupt(m.ID, p+" missing", err)
		}
		if !fi.Mode().IsRegular() {
			return corrupt(m.ID, p+" is not a file", nil)
		}
	}
	return nil
}

// List yields every Byte, newest first, followed by the corrupt containers
// found by the last Reconcile. Each range works on a fresh snapshot.
func (s *Store) List(ctx context.Context) iter.Seq2[Metadata, error] {
	return func(yield func(Metadata, error) bool) {
		s.mu.RLock()
		list := make([]Metadata, 0, len(s.index))
		for _, m := range s.index {
			list = append(list, m)
		}
		bad := make([]*CorruptContainerError, 0, len(s.corrupt))
		for _, ce := range s.corrupt {
			bad = append(bad, ce)
		}
		s.mu.RUnlock()

		sortNewestFirst(list)
		sort.Slice(bad, func(i, j int) bool { return bad[i].ID < bad[j].ID })

		for _, m := range list {
			if ctx.Err() != nil {
				yield(Metadata{}, ctx.Err())
				return
			}
			if !yield(m, nil) {
				return
			}
		}
		for _, ce := range bad {
			if !yield(Metadata{}, ce) {
				return
			}
		}
	}
}

func sortNewestFirst(list []Metadata) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// Len is the number of healthy Bytes in the index.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Prefetch warms the caches for ids, skipping ones that fail to load.
func (s *Store) Prefetch(ctx context.Context, ids ...string) {
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.LoadState(ctx, id); err != nil {
			s.log.WithError(err).WithField("byte", id).Debug("prefetch failed")
			continue
		}
		_, _ = s.LoadThumbnail(id)
	}
	if s.cache != nil {
		s.cache.Wait()
	}
}

// PrefetchAsync runs Prefetch in the background.
func (s *Store) PrefetchAsync(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	s.prefetches.Add(1)
	go func() {
		defer s.prefetches.Done()
		s.Prefetch(ctx, ids...)
	}()
}

// Neighbours returns up to n ids following id in List order.
func (s *Store) Neighbours(id string, n int) []string {
	s.mu.RLock()
	list := make([]Metadata, 0, len(s.index))
	for _, m := range s.index {
		list = append(list, m)
	}
	s.mu.RUnlock()
	sortNewestFirst(list)

	var ids []string
	for i, m := range list {
		if m.ID != id {
			continue
		}
		for _, next := range list[i+1:] {
			if len(ids) == n {
				break
			}
			ids = append(ids, next.ID)
		}
		break
	}
	return ids
}

// retryOnce repeats fn once when it fails with a transient I/O error.
func retryOnce(fn func() error) error {
	err := fn()
	if err == nil || !transient(err) {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	return fn()
}

func transient(err error) bool {
	var ce *CorruptContainerError
	var se *json.SyntaxError
	switch {
	case errors.As(err, &ce), errors.As(err, &se):
		return false
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}
