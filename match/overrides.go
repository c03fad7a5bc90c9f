package match

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Override is a user's title choice for a ROM hash.
type Override struct {
	Hash  string    `yaml:"-" json:"hash"`
	Title string    `yaml:"title" json:"title"`
	SetAt time.Time `yaml:"set_at" json:"setAt"`
}

type overrideFile struct {
	Overrides map[string]Override `yaml:"overrides"`
}

// overrideStore is the YAML file of user overrides, kept apart from the
// reference databases so it survives their updates.
type overrideStore struct {
	path string

	mu      sync.RWMutex
	entries map[string]Override
}

func newOverrideStore(path string) *overrideStore {
	return &overrideStore{path: path, entries: make(map[string]Override)}
}

func normalizeHash(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// load replaces the in-memory entries with the file contents. A missing file
// means no overrides.
func (s *overrideStore) load() error {
	entries := make(map[string]Override)
	if s.path != "" {
		b, err := os.ReadFile(s.path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return err
		default:
			var f overrideFile
			if err = yaml.Unmarshal(b, &f); err != nil {
				return fmt.Errorf("match: parse overrides %s: %w", s.path, err)
			}
			for h, o := range f.Overrides {
				h = normalizeHash(h)
				if h == "" || strings.TrimSpace(o.Title) == "" {
					continue
				}
				o.Hash = h
				entries[h] = o
			}
		}
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

func (s *overrideStore) get(hash string) (Override, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.entries[hash]
	return o, ok
}

func (s *overrideStore) list() []Override {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Override, 0, len(s.entries))
	for _, o := range s.entries {
		list = append(list, o)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Hash < list[j].Hash })
	return list
}

// mutate applies fn to a copy of the entries, persists it, then swaps it in.
func (s *overrideStore) mutate(fn func(map[string]Override)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]Override, len(s.entries)+1)
	for h, o := range s.entries {
		next[h] = o
	}
	fn(next)

	if err := s.writeLocked(next); err != nil {
		return err
	}
	s.entries = next
	return nil
}

func (s *overrideStore) writeLocked(entries map[string]Override) error {
	if s.path == "" {
		return nil
	}
	b, err := yaml.Marshal(overrideFile{Overrides: entries})
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err = os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".overrides-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
