package rom

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"playbyte/system"
	"playbyte/util"
)

// ScanReport summarizes the most recent scan.
type ScanReport struct {
	Seen    int
	Hashed  int
	Skipped int
	Errors  []error
}

// Scanner walks ROM roots and hashes matching files on a bounded worker pool.
type Scanner struct {
	Hasher  *Hasher
	Workers int

	// OnError is called for every file that could not be read. It may be called
	// from worker goroutines.
	OnError func(path string, err error)

	log *logrus.Entry

	mu     sync.Mutex
	report ScanReport
}

func NewScanner(log *logrus.Entry, hasher *Hasher, workers int) *Scanner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Scanner{
		Hasher:  hasher,
		Workers: workers,
		log:     util.Component(log, "scanner"),
	}
}

// Report returns the summary of the last completed scan.
func (s *Scanner) Report() ScanReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Scan yields a record for every readable file under roots whose extension is
// in exts (every known ROM extension when exts is empty). The sequence can be
// ranged over more than once; each range performs a fresh walk.
func (s *Scanner) Scan(ctx context.Context, roots []string, exts []string) iter.Seq[Record] {
	allowed := extensionSet(exts)

	return func(yield func(Record) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			report   ScanReport
			reportMu sync.Mutex
		)
		fail := func(path string, err error) {
			reportMu.Lock()
			report.Skipped++
			report.Errors = append(report.Errors, err)
			reportMu.Unlock()
			s.log.WithError(err).WithField("path", path).Warn("skipping unreadable file")
			if s.OnError != nil {
				s.OnError(path, err)
			}
		}

		paths := make(chan string)
		results := make(chan Record)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			defer close(paths)
			for _, root := range roots {
				err := filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
					if err != nil {
						if path == root && errors.Is(err, fs.ErrNotExist) {
							s.log.WithField("root", root).Debug("rom root does not exist")
							return nil
						}
						fail(path, err)
						if de != nil && de.IsDir() {
							return fs.SkipDir
						}
						return nil
					}
					if de.IsDir() {
						if path != root && strings.HasPrefix(de.Name(), ".") {
							return fs.SkipDir
						}
						return nil
					}
					if !allowed[extensionOf(path)] {
						return nil
					}
					select {
					case paths <- path:
						return nil
					case <-gctx.Done():
						return gctx.Err()
					}
				})
				if err != nil {
					return err
				}
			}
			return nil
		})

		var workers sync.WaitGroup
		for i := 0; i < s.Workers; i++ {
			workers.Add(1)
			g.Go(func() error {
				defer workers.Done()
				for path := range paths {
					if err := gctx.Err(); err != nil {
						return err
					}
					reportMu.Lock()
					report.Seen++
					reportMu.Unlock()

					rec, err := s.Hasher.Hash(gctx, path)
					if err != nil {
						if gctx.Err() != nil {
							return gctx.Err()
						}
						fail(path, err)
						continue
					}
					reportMu.Lock()
					report.Hashed++
					reportMu.Unlock()

					select {
					case results <- rec:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				return nil
			})
		}
		go func() {
			workers.Wait()
			close(results)
		}()

		stopped := false
		for rec := range results {
			if stopped {
				continue
			}
			if !yield(rec) {
				stopped = true
				cancel()
			}
		}
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			s.log.WithError(err).Warn("scan aborted")
		}

		s.mu.Lock()
		s.report = report
		s.mu.Unlock()
	}
}

func extensionSet(exts []string) map[string]bool {
	if len(exts) == 0 {
		exts = system.AllExtensions()
	}
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return set
}

func extensionOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
