package rom

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"playbyte/snes"
	"playbyte/system"
	"playbyte/util"
)

// Cache persists records between runs. Implementations must be safe for concurrent use.
type Cache interface {
	Get(key string) (Record, bool)
	Put(key string, r Record) error
}

// Hasher computes content fingerprints, caching them by (path, size, mtime).
type Hasher struct {
	log   *logrus.Entry
	store Cache

	mu     sync.RWMutex
	memory map[string]Record
}

// NewHasher creates a hasher backed by store. store may be nil.
func NewHasher(log *logrus.Entry, store Cache) *Hasher {
	return &Hasher{
		log:    util.Component(log, "hasher"),
		store:  store,
		memory: make(map[string]Record),
	}
}

// Hash fingerprints the file at path. Unchanged files are served from cache.
func (h *Hasher) Hash(ctx context.Context, path string) (Record, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return Record{}, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return Record{}, err
	}
	if !fi.Mode().IsRegular() {
		return Record{}, fmt.Errorf("rom: %s is not a regular file", path)
	}

	key := cacheKey(path, fi.Size(), fi.ModTime())
	h.mu.RLock()
	rec, ok := h.memory[key]
	h.mu.RUnlock()
	if ok {
		return rec, nil
	}
	if h.store != nil {
		if rec, ok = h.store.Get(key); ok {
			h.remember(key, rec)
			return rec, nil
		}
	}

	rec, err = hashFile(ctx, path, fi)
	if err != nil {
		return Record{}, err
	}
	h.remember(key, rec)
	if h.store != nil {
		if err = h.store.Put(key, rec); err != nil {
			h.log.WithError(err).WithField("path", path).Warn("could not persist hash")
		}
	}
	return rec, nil
}

func (h *Hasher) remember(key string, rec Record) {
	h.mu.Lock()
	h.memory[key] = rec
	h.mu.Unlock()
}

func hashFile(ctx context.Context, path string, fi os.FileInfo) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, err
	}
	defer f.Close()

	rec := Record{
		Path:    path,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		System:  system.FromPath(path),
	}

	full := sha1.New()
	var w io.Writer = full
	var headerless hash.Hash
	if rec.System == system.SNES && snes.HasCopierHeader(rec.Size) {
		headerless = sha1.New()
		w = io.MultiWriter(full, &skipWriter{w: headerless, skip: snes.CopierHeaderSize})
	}

	if _, err = io.Copy(w, &contextReader{ctx: ctx, r: f}); err != nil {
		return Record{}, fmt.Errorf("rom: hash %s: %w", path, err)
	}

	rec.SHA1 = hex.EncodeToString(full.Sum(nil))
	if headerless != nil {
		rec.HeaderlessSHA1 = hex.EncodeToString(headerless.Sum(nil))
	}
	return rec, nil
}

// HashBytes fingerprints in-memory contents; name supplies the system.
func HashBytes(name string, contents []byte) Record {
	rec := Record{
		Path:   name,
		Size:   int64(len(contents)),
		System: system.FromPath(name),
	}
	sum := sha1.Sum(contents)
	rec.SHA1 = hex.EncodeToString(sum[:])
	if rec.System == system.SNES {
		if stripped, ok := snes.StripCopierHeader(contents); ok {
			sum = sha1.Sum(stripped)
			rec.HeaderlessSHA1 = hex.EncodeToString(sum[:])
		}
	}
	return rec
}

// skipWriter discards the first skip bytes written to it.
type skipWriter struct {
	w    io.Writer
	skip int
}

func (s *skipWriter) Write(p []byte) (int, error) {
	n := len(p)
	if s.skip > 0 {
		if len(p) <= s.skip {
			s.skip -= len(p)
			return n, nil
		}
		p = p[s.skip:]
		s.skip = 0
	}
	if _, err := s.w.Write(p); err != nil {
		return 0, err
	}
	return n, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
