package rom

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"playbyte/util"
)

// Library indexes the ROMs found under the configured roots by hash.
type Library struct {
	log     *logrus.Entry
	scanner *Scanner
	roots   []string
	exts    []string

	mu     sync.RWMutex
	byPath map[string]Record
	byHash map[string]string
}

func NewLibrary(log *logrus.Entry, scanner *Scanner, roots, exts []string) *Library {
	return &Library{
		log:     util.Component(log, "library"),
		scanner: scanner,
		roots:   roots,
		exts:    exts,
		byPath:  make(map[string]Record),
		byHash:  make(map[string]string),
	}
}

func (l *Library) Roots() []string { return l.roots }

// Refresh rescans every root and replaces the index.
func (l *Library) Refresh(ctx context.Context) (ScanReport, error) {
	byPath := make(map[string]Record)
	for rec := range l.scanner.Scan(ctx, l.roots, l.exts) {
		byPath[rec.Path] = rec
	}
	if err := ctx.Err(); err != nil {
		return l.scanner.Report(), err
	}

	l.mu.Lock()
	l.byPath = byPath
	l.reindexLocked()
	l.mu.Unlock()

	report := l.scanner.Report()
	l.log.WithFields(logrus.Fields{"roms": len(byPath), "skipped": report.Skipped}).Info("rom library refreshed")
	return report, nil
}

// Update rehashes a single file and adds or replaces it in the index.
func (l *Library) Update(ctx context.Context, path string) (Record, error) {
	rec, err := l.scanner.Hasher.Hash(ctx, path)
	if err != nil {
		return Record{}, err
	}
	l.mu.Lock()
	l.byPath[rec.Path] = rec
	l.reindexLocked()
	l.mu.Unlock()
	return rec, nil
}

// Remove drops path from the index.
func (l *Library) Remove(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byPath[path]; !ok {
		return
	}
	delete(l.byPath, path)
	l.reindexLocked()
}

// reindexLocked rebuilds the hash index. For duplicate dumps the
// lexically first path wins so lookups are stable.
func (l *Library) reindexLocked() {
	l.byHash = make(map[string]string, len(l.byPath))
	for _, rec := range l.sortedLocked() {
		for _, h := range rec.Hashes() {
			if _, dup := l.byHash[h]; !dup {
				l.byHash[h] = rec.Path
			}
		}
	}
}

func (l *Library) sortedLocked() []Record {
	recs := make([]Record, 0, len(l.byPath))
	for _, rec := range l.byPath {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Path < recs[j].Path })
	return recs
}

// Records lists the indexed ROMs ordered by path.
func (l *Library) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sortedLocked()
}

// Get returns the record indexed for path.
func (l *Library) Get(path string) (Record, bool) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.byPath[path]
	return rec, ok
}

// FindByHash looks up a ROM by its full or headerless SHA-1. Entries whose
// file changed on disk since indexing are dropped.
func (l *Library) FindByHash(hash string) (Record, bool) {
	l.mu.RLock()
	path, ok := l.byHash[hash]
	rec := l.byPath[path]
	l.mu.RUnlock()
	if !ok {
		return Record{}, false
	}

	fi, err := os.Stat(rec.Path)
	if err != nil || fi.Size() != rec.Size || !fi.ModTime().Equal(rec.ModTime) {
		l.Remove(rec.Path)
		return Record{}, false
	}
	return rec, true
}

// Locate finds a ROM by hash, rescanning the roots once if it is not indexed.
func (l *Library) Locate(ctx context.Context, hash string) (Record, error) {
	if rec, ok := l.FindByHash(hash); ok {
		return rec, nil
	}
	if _, err := l.Refresh(ctx); err != nil {
		return Record{}, err
	}
	if rec, ok := l.FindByHash(hash); ok {
		return rec, nil
	}
	return Record{}, fmt.Errorf("%w: sha1 %s under %v", ErrNotFound, hash, l.roots)
}
