// Package engine creates Bytes from running sessions and resumes them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"playbyte/bytestore"
	"playbyte/config"
	"playbyte/core"
	"playbyte/match"
	"playbyte/rom"
	"playbyte/util"
)

// Services are the components the engine orchestrates.
type Services struct {
	Bridge  *core.Bridge
	Store   *bytestore.Store
	Matcher *match.Engine
	Library *rom.Library
	Hasher  *rom.Hasher
}

type Engine struct {
	Services

	log *logrus.Entry

	// Author is recorded in new Bytes.
	Author string
	// PrefetchAhead is how many following Bytes are warmed when one is shown.
	PrefetchAhead int

	closers []func() error
	now     func() time.Time

	romsMu sync.Mutex
	// roms identifies the exact contents each session was started with.
	roms map[core.SessionID]rom.Record
}

// ResolvedRom is the ROM file a Byte was resumed with.
type ResolvedRom struct {
	rom.Record
	Match match.Result `json:"match"`
}

func New(log *logrus.Entry, svc Services) *Engine {
	return &Engine{
		Services:      svc,
		log:           util.Component(log, "engine"),
		Author:        "local",
		PrefetchAhead: 2,
		now:           time.Now,
		roms:          make(map[core.SessionID]rom.Record),
	}
}

// Open wires every component from cfg. Database parse errors and core
// discovery errors are logged and leave the engine running degraded.
func Open(ctx context.Context, log *logrus.Entry, cfg *config.Config) (e *Engine, err error) {
	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	for _, dir := range []string{cfg.DataRoot, cfg.BytesDir(), cfg.DatabaseDir()} {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	cache, err := rom.OpenBadgerCache(cfg.HashCacheDir(), log)
	if err != nil {
		return nil, fmt.Errorf("engine: hash cache: %w", err)
	}
	closers = append(closers, cache.Close)

	hasher := rom.NewHasher(log, cache)
	scanner := rom.NewScanner(log, hasher, cfg.Scan.Workers)
	library := rom.NewLibrary(log, scanner, cfg.RomRoots, cfg.RomExtensions)

	matcher, err := match.New(log, match.Options{
		Metric:           cfg.Match.Metric,
		Threshold:        cfg.Match.Threshold,
		PreferredRegions: cfg.Match.PreferredRegions,
		OverridesPath:    cfg.OverridesPath(),
	})
	if err != nil {
		return nil, err
	}
	if err := matcher.LoadDatabases(cfg.Databases()); err != nil {
		log.WithError(err).Warn("reference databases did not load cleanly; resolving by file name")
	}

	store, err := bytestore.Open(ctx, log, cfg.BytesDir(), bytestore.Options{CacheBytes: cfg.Store.StateCacheBytes})
	if err != nil {
		return nil, err
	}
	closers = append(closers, func() error { store.Close(); return nil })

	bridge := core.NewBridge(log)
	closers = append(closers, bridge.Close)
	if _, err := bridge.Discover(ctx, []string{cfg.CoresRoot}); err != nil {
		log.WithError(err).Warn("some cores could not be inspected")
	}

	e = New(log, Services{
		Bridge:  bridge,
		Store:   store,
		Matcher: matcher,
		Library: library,
		Hasher:  hasher,
	})
	e.PrefetchAhead = cfg.Store.PrefetchAhead
	e.closers = closers
	return e, nil
}

// Close stops every session and releases the stores opened by Open.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Identify hashes path and resolves its title. The hash is cached by size and
// modification time; a library entry for a file that changed since the last
// scan is replaced.
func (e *Engine) Identify(ctx context.Context, path string) (ResolvedRom, error) {
	rec, err := e.Hasher.Hash(ctx, path)
	if err != nil {
		return ResolvedRom{}, err
	}
	if old, ok := e.Library.Get(rec.Path); ok && old.SHA1 != rec.SHA1 {
		e.log.WithFields(logrus.Fields{"rom": rec.Path, "was": old.SHA1, "now": rec.SHA1}).Info("rom changed since last scan")
		if rec, err = e.Library.Update(ctx, rec.Path); err != nil {
			return ResolvedRom{}, err
		}
	}
	return ResolvedRom{Record: rec, Match: e.Matcher.Resolve(rec)}, nil
}

// started reads path once so the session and its recorded identity see the
// same contents.
func (e *Engine) started(path string, start func(contents []byte) (core.SessionID, error)) (core.SessionID, rom.Record, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return 0, rom.Record{}, fmt.Errorf("engine: read rom: %w", err)
	}
	sid, err := start(contents)
	if err != nil {
		return 0, rom.Record{}, err
	}
	rec := rom.HashBytes(path, contents)

	e.romsMu.Lock()
	defer e.romsMu.Unlock()
	for id := range e.roms {
		if _, err := e.Bridge.Info(id); err != nil {
			delete(e.roms, id)
		}
	}
	e.roms[sid] = rec
	return sid, rec, nil
}

// sessionRom returns what the engine started id with, if it started it.
func (e *Engine) sessionRom(id core.SessionID) (rom.Record, bool) {
	e.romsMu.Lock()
	defer e.romsMu.Unlock()
	rec, ok := e.roms[id]
	return rec, ok
}

// CreateByte captures the session and publishes it as a new Byte. A non-empty
// nameHint replaces the resolved title.
func (e *Engine) CreateByte(ctx context.Context, id core.SessionID, nameHint string) (bytestore.Metadata, error) {
	info, err := e.Bridge.Info(id)
	if err != nil {
		return bytestore.Metadata{}, err
	}

	state, err := e.Bridge.Capture(id)
	if err != nil {
		var ue *core.UnsupportedError
		if errors.As(err, &ue) {
			return bytestore.Metadata{}, &CaptureUnsupportedError{Session: id, Core: ue.Core, wrapped: err}
		}
		return bytestore.Metadata{}, err
	}

	frame, err := e.Bridge.LastFrame(id)
	if err != nil {
		return bytestore.Metadata{}, err
	}
	var thumbnail []byte
	if frame.Empty() {
		thumbnail, err = PlaceholderThumbnail()
	} else {
		thumbnail, err = RenderThumbnail(frame)
	}
	if err != nil {
		return bytestore.Metadata{}, err
	}

	var resolved ResolvedRom
	if rec, ok := e.sessionRom(id); ok {
		resolved = ResolvedRom{Record: rec, Match: e.Matcher.Resolve(rec)}
	} else if resolved, err = e.Identify(ctx, info.RomPath); err != nil {
		return bytestore.Metadata{}, fmt.Errorf("engine: identify %s: %w", info.RomPath, err)
	}

	m := bytestore.Metadata{
		Title:       strings.TrimSpace(nameHint),
		System:      resolved.System,
		RomSHA1:     romHash(resolved),
		CoreID:      info.Descriptor.ID,
		CoreVersion: info.Descriptor.Version,
		Author:      e.Author,
		CreatedAt:   e.now(),
	}
	if m.Title == "" {
		m.Title = resolved.Match.Title
	}
	if m.System == 0 {
		m.System = info.Descriptor.System
	}
	if c := resolved.Match.Candidate; c != nil {
		m.Region = strings.Join(c.Tags.Regions, ", ")
	}

	m, err = e.Store.Save(ctx, m, state, thumbnail)
	if err != nil {
		return bytestore.Metadata{}, err
	}
	e.log.WithFields(logrus.Fields{
		"byte":    m.ID,
		"session": id,
		"title":   m.Title,
		"match":   resolved.Match.Kind,
	}).Info("byte created")
	return m, nil
}

// romHash prefers the hash the reference database matched, so a Byte made from
// a headered dump also resumes from a clean one.
func romHash(r ResolvedRom) string {
	if r.Match.Kind == match.Exact && r.Match.Hash != "" {
		return r.Match.Hash
	}
	return r.SHA1
}

// LoadByte resumes a Byte in a new session.
func (e *Engine) LoadByte(ctx context.Context, id string) (bytestore.Metadata, ResolvedRom, core.SessionID, error) {
	return e.load(ctx, id, func(desc *core.Descriptor, path string, contents []byte) (core.SessionID, error) {
		return e.Bridge.StartROM(ctx, desc, path, contents)
	})
}

// LoadByteInSlot resumes a Byte in a feed slot, replacing the slot's previous session.
func (e *Engine) LoadByteInSlot(ctx context.Context, slot int, id string) (bytestore.Metadata, ResolvedRom, core.SessionID, error) {
	return e.load(ctx, id, func(desc *core.Descriptor, path string, contents []byte) (core.SessionID, error) {
		return e.Bridge.StartROMInSlot(ctx, slot, desc, path, contents)
	})
}

type startFunc func(desc *core.Descriptor, romPath string, contents []byte) (core.SessionID, error)

func (e *Engine) load(ctx context.Context, id string, start startFunc) (m bytestore.Metadata, r ResolvedRom, sid core.SessionID, err error) {
	m, err = e.Store.Get(id)
	if err != nil {
		return
	}
	state, err := e.Store.LoadState(ctx, id)
	if err != nil {
		return
	}

	rec, err := e.Library.Locate(ctx, m.RomSHA1)
	if err != nil {
		if errors.Is(err, rom.ErrNotFound) {
			err = &RomNotFoundError{ByteID: id, Hash: m.RomSHA1, Roots: e.Library.Roots(), wrapped: err}
		}
		return
	}
	r = ResolvedRom{Record: rec, Match: e.Matcher.Resolve(rec)}

	desc, err := e.coreFor(ctx, m)
	if err != nil {
		return
	}

	sid, _, err = e.started(rec.Path, func(contents []byte) (core.SessionID, error) {
		return start(desc, rec.Path, contents)
	})
	if err != nil {
		return
	}
	if err = e.Bridge.Restore(sid, core.StateBlob(state)); err != nil {
		if stopErr := e.Bridge.Stop(sid); stopErr != nil && !errors.Is(stopErr, core.ErrInvalidSession) {
			e.log.WithError(stopErr).WithField("session", sid).Warn("could not stop session after failed restore")
		}
		sid = 0
		return
	}

	e.log.WithFields(logrus.Fields{"byte": id, "session": sid, "core": desc.ID, "rom": rec.Path}).Info("byte loaded")
	return m, r, sid, nil
}

// coreFor prefers the core recorded in the Byte.
func (e *Engine) coreFor(ctx context.Context, m bytestore.Metadata) (*core.Descriptor, error) {
	if d, ok := e.Bridge.Descriptor(m.CoreID); ok && d.System == m.System && d.UsableForBytes() {
		if d.Version != m.CoreVersion {
			e.log.WithFields(logrus.Fields{"core": d.ID, "have": d.Version, "want": m.CoreVersion}).Warn("core version differs from the one that captured the Byte")
		}
		return d, nil
	}
	return e.SelectDefaultCore(ctx, m.System)
}

// PlayInSlot starts path in a feed slot on the default core for its system.
func (e *Engine) PlayInSlot(ctx context.Context, slot int, path string) (core.SessionID, ResolvedRom, error) {
	r, err := e.Identify(ctx, path)
	if err != nil {
		return 0, ResolvedRom{}, err
	}
	desc, err := e.SelectDefaultCore(ctx, r.System)
	if err != nil {
		return 0, r, err
	}
	sid, rec, err := e.started(r.Path, func(contents []byte) (core.SessionID, error) {
		return e.Bridge.StartROMInSlot(ctx, slot, desc, r.Path, contents)
	})
	if err != nil {
		return 0, r, err
	}
	if rec.SHA1 != r.SHA1 {
		r = ResolvedRom{Record: rec, Match: e.Matcher.Resolve(rec)}
	}
	return sid, r, nil
}
