// Package match resolves ROM records to canonical titles: user overrides
// first, then exact hashes against the reference databases, then fuzzy
// file-name matching.
package match

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adrg/strutil"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"playbyte/rom"
	"playbyte/system"
	"playbyte/titledb"
	"playbyte/util"
)

type Options struct {
	Metric           string
	Threshold        float64
	PreferredRegions []string
	// OverridesPath is the YAML override file; empty keeps overrides in memory.
	OverridesPath string
}

func DefaultOptions() Options {
	return Options{
		Metric:           DefaultMetric,
		Threshold:        DefaultThreshold,
		PreferredRegions: []string{"USA", "World", "Europe"},
	}
}

// DatabaseInfo describes a loaded reference database.
type DatabaseInfo struct {
	Path    string        `json:"path"`
	Name    string        `json:"name"`
	Version string        `json:"version"`
	System  system.System `json:"system"`
	Titles  int           `json:"titles"`
}

type indexedDB struct {
	db    *titledb.Database
	norm  []string
	bases []string
}

func index(db *titledb.Database) *indexedDB {
	x := &indexedDB{
		db:    db,
		norm:  make([]string, len(db.Candidates)),
		bases: make([]string, len(db.Candidates)),
	}
	for i, c := range db.Candidates {
		x.norm[i] = Normalize(c.Title)
		x.bases[i] = BaseTitle(c.Title)
	}
	return x
}

// Engine owns the reference databases and the override store.
type Engine struct {
	log  *logrus.Entry
	opts Options

	metric strutil.StringMetric

	mu     sync.RWMutex
	dbs    []*indexedDB
	failed map[string]error

	overrides *overrideStore
}

// New creates an engine and reads the override file. A missing override file is fine.
func New(log *logrus.Entry, opts Options) (*Engine, error) {
	if opts.Metric == "" {
		opts.Metric = DefaultMetric
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	m, err := NewMetric(opts.Metric)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		log:       util.Component(log, "match"),
		opts:      opts,
		metric:    m,
		overrides: newOverrideStore(opts.OverridesPath),
		failed:    make(map[string]error),
	}
	if err = e.overrides.load(); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadDatabase parses a DAT file and installs it, replacing any database for
// the same system. A file that fails to parse is recorded against its path and
// leaves every installed database in place; with none installed, resolution
// falls back to file names.
func (e *Engine) LoadDatabase(path string) (string, error) {
	db, err := titledb.Load(path)
	if err != nil {
		e.mu.Lock()
		e.failed[path] = err
		installed := len(e.dbs)
		e.mu.Unlock()
		e.log.WithError(err).WithFields(logrus.Fields{"path": path, "installed": installed}).Error("reference database rejected")
		return "", err
	}

	x := index(db)
	e.mu.Lock()
	// Resolve may hold the previous slice; never modify it in place.
	dbs := make([]*indexedDB, 0, len(e.dbs)+1)
	for _, o := range e.dbs {
		replaced := o.db.System == db.System
		if db.System == system.Unknown {
			replaced = o.db.Path == db.Path
		}
		if !replaced {
			dbs = append(dbs, o)
		}
	}
	e.dbs = append(dbs, x)
	delete(e.failed, path)
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"path":    path,
		"system":  db.System,
		"version": db.Version,
		"titles":  db.Len(),
	}).Info("reference database loaded")
	return db.Version, nil
}

// LoadDatabases loads every path, returning the joined errors.
func (e *Engine) LoadDatabases(paths []string) error {
	var errs []error
	for _, p := range paths {
		if _, err := e.LoadDatabase(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Degraded returns the parse errors of every database file that has not loaded
// since it last failed, ordered by path.
func (e *Engine) Degraded() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	paths := make([]string, 0, len(e.failed))
	for p := range e.failed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	errs := make([]error, 0, len(paths))
	for _, p := range paths {
		errs = append(errs, e.failed[p])
	}
	return errors.Join(errs...)
}

func (e *Engine) Databases() []DatabaseInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	infos := make([]DatabaseInfo, 0, len(e.dbs))
	for _, x := range e.dbs {
		infos = append(infos, DatabaseInfo{
			Path:    x.db.Path,
			Name:    x.db.Name,
			Version: x.db.Version,
			System:  x.db.System,
			Titles:  x.db.Len(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].System < infos[j].System })
	return infos
}

// Resolve finds the title for rec. It never fails; the last resort is the file name.
func (e *Engine) Resolve(rec rom.Record) Result {
	for _, h := range rec.Hashes() {
		if o, ok := e.overrides.get(normalizeHash(h)); ok {
			return Result{Kind: ByOverride, Title: o.Title, Confidence: 1, Hash: o.Hash}
		}
	}

	e.mu.RLock()
	dbs := e.dbs
	e.mu.RUnlock()

	var usable []*indexedDB
	for _, x := range dbs {
		if x.db.System == system.Unknown || rec.System == system.Unknown || x.db.System == rec.System {
			usable = append(usable, x)
		}
	}

	for _, h := range rec.Hashes() {
		for _, x := range usable {
			if c, ok := x.db.BySHA1(h); ok {
				return Result{Kind: Exact, Title: c.Title, Confidence: 1, Candidate: &c, Database: x.db.Version, Hash: h}
			}
		}
	}

	if r, ok := e.fuzzy(usable, Stem(rec.Path)); ok {
		return r
	}

	return Result{Kind: Unresolved, Title: FallbackTitle(rec.Path)}
}

type scored struct {
	x     *indexedDB
	i     int
	score float64
}

func (s scored) candidate() titledb.Candidate { return s.x.db.Candidates[s.i] }

func (e *Engine) fuzzy(dbs []*indexedDB, name string) (Result, bool) {
	norm := Normalize(name)
	base := BaseTitle(name)
	if norm == "" && base == "" {
		return Result{}, false
	}
	tags := titledb.ParseTags(name)

	var equal, sameBase, similar []scored
	for _, x := range dbs {
		for i := range x.db.Candidates {
			switch {
			case x.norm[i] == norm:
				equal = append(equal, scored{x, i, 1})
			case base != "" && x.bases[i] == base:
				sameBase = append(sameBase, scored{x, i, 1})
			default:
				if s := similarity(e.metric, base, x.bases[i]); s >= e.opts.Threshold {
					similar = append(similar, scored{x, i, s})
				}
			}
		}
	}

	for _, set := range [][]scored{equal, sameBase, similar} {
		if len(set) == 0 {
			continue
		}
		best := e.pick(set, tags)
		c := best.candidate()
		return Result{
			Kind:       Fuzzy,
			Title:      c.Title,
			Confidence: best.score,
			Candidate:  &c,
			Database:   best.x.db.Version,
		}, true
	}
	return Result{}, false
}

// pick orders by score, then tag affinity with the file name, then the
// preferred region list, then title.
func (e *Engine) pick(set []scored, tags titledb.Tags) scored {
	sort.SliceStable(set, func(a, b int) bool {
		sa, sb := set[a], set[b]
		if sa.score != sb.score {
			return sa.score > sb.score
		}
		ca, cb := sa.candidate(), sb.candidate()
		if fa, fb := affinity(tags, ca.Tags), affinity(tags, cb.Tags); fa != fb {
			return fa > fb
		}
		if pa, pb := e.regionRank(ca.Tags), e.regionRank(cb.Tags); pa != pb {
			return pa < pb
		}
		return ca.Title < cb.Title
	})
	return set[0]
}

func affinity(file, cand titledb.Tags) int {
	score := 0
	if file.SharesRegion(cand) {
		score += 2
	}
	if file.Rev() == cand.Rev() {
		score++
	}
	return score
}

func (e *Engine) regionRank(t titledb.Tags) int {
	for i, r := range e.opts.PreferredRegions {
		if slices.Contains(t.Regions, r) {
			return i
		}
	}
	return len(e.opts.PreferredRegions)
}

// SetOverride pins hash to title. Persisted before it takes effect.
func (e *Engine) SetOverride(hash, title string) error {
	hash = normalizeHash(hash)
	title = strings.TrimSpace(title)
	if hash == "" || title == "" {
		return fmt.Errorf("match: override needs a hash and a title")
	}
	err := e.overrides.mutate(func(m map[string]Override) {
		m[hash] = Override{Hash: hash, Title: title, SetAt: time.Now().UTC().Truncate(time.Second)}
	})
	if err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{"hash": hash, "title": title}).Info("override set")
	return nil
}

func (e *Engine) ClearOverride(hash string) error {
	hash = normalizeHash(hash)
	if _, ok := e.overrides.get(hash); !ok {
		return nil
	}
	err := e.overrides.mutate(func(m map[string]Override) {
		delete(m, hash)
	})
	if err != nil {
		return err
	}
	e.log.WithField("hash", hash).Info("override cleared")
	return nil
}

// ReloadOverrides rereads the override file.
func (e *Engine) ReloadOverrides() error {
	return e.overrides.load()
}

func (e *Engine) Overrides() []Override {
	return e.overrides.list()
}

// WatchOverrides reloads the override file whenever it changes on disk,
// until ctx is done.
func (e *Engine) WatchOverrides(ctx context.Context) error {
	path := e.opts.OverridesPath
	if path == "" {
		return errors.New("match: no override file to watch")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// watch the directory: editors replace the file rather than writing it
	if err = fw.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == filepath.Clean(path) {
				pending = time.After(100 * time.Millisecond)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			e.log.WithError(err).Warn("override watch error")
		case <-pending:
			pending = nil
			if err := e.ReloadOverrides(); err != nil {
				e.log.WithError(err).Warn("could not reload overrides")
				continue
			}
			e.log.WithField("count", len(e.Overrides())).Info("overrides reloaded")
		}
	}
}
