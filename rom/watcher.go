package rom

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"playbyte/util"
)

// DefaultSettle is how long a file must stay quiet before it is rehashed.
const DefaultSettle = 750 * time.Millisecond

// Watcher keeps a Library current while files change under its roots.
type Watcher struct {
	lib    *Library
	log    *logrus.Entry
	settle time.Duration

	// Changed is called after a file was added, rehashed or removed.
	Changed func(path string, rec Record, removed bool)

	fs      *fsnotify.Watcher
	allowed map[string]bool

	pendingMu sync.Mutex
	pending   map[string]time.Time
}

func NewWatcher(log *logrus.Entry, lib *Library, settle time.Duration) (*Watcher, error) {
	if settle <= 0 {
		settle = DefaultSettle
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		lib:     lib,
		log:     util.Component(log, "romwatch"),
		settle:  settle,
		fs:      fw,
		allowed: extensionSet(lib.exts),
		pending: make(map[string]time.Time),
	}, nil
}

// Run watches until ctx is done. Directories created later are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	for _, root := range w.lib.roots {
		if err := w.addTree(root); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	ticker := time.NewTicker(w.settle / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watch error")

		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !de.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(de.Name(), ".") {
			return fs.SkipDir
		}
		return w.fs.Add(path)
	})
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err = w.addTree(ev.Name); err != nil {
				w.log.WithError(err).WithField("dir", ev.Name).Warn("could not watch new directory")
			}
			// files moved in together with the directory produce no events of their own
			_ = filepath.WalkDir(ev.Name, func(path string, de fs.DirEntry, err error) error {
				if err == nil && !de.IsDir() {
					w.touch(path)
				}
				return nil
			})
			return
		}
	}
	if !w.allowed[extensionOf(ev.Name)] {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		w.touch(ev.Name)
	}
}

func (w *Watcher) touch(path string) {
	if !w.allowed[extensionOf(path)] {
		return
	}
	w.pendingMu.Lock()
	w.pending[path] = time.Now()
	w.pendingMu.Unlock()
}

// flush processes files that have been quiet for the settle period.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	var ready []string
	w.pendingMu.Lock()
	for path, t := range w.pending {
		if now.Sub(t) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.pendingMu.Unlock()

	for _, path := range ready {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			w.lib.Remove(path)
			w.log.WithField("path", path).Debug("rom removed")
			if w.Changed != nil {
				w.Changed(path, Record{}, true)
			}
			continue
		}
		rec, err := w.lib.Update(ctx, path)
		if err != nil {
			w.log.WithError(err).WithField("path", path).Warn("could not hash changed rom")
			continue
		}
		w.log.WithFields(logrus.Fields{"path": path, "sha1": rec.SHA1}).Debug("rom indexed")
		if w.Changed != nil {
			w.Changed(path, rec, false)
		}
	}
}
