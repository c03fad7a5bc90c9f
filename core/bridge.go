package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"playbyte/util"
)

// SessionID addresses a slot in the bridge arena. The zero value is never issued.
type SessionID uint64

func makeSessionID(index, gen uint32) SessionID {
	return SessionID(uint64(gen)<<32 | uint64(index+1))
}

func (id SessionID) index() uint32 { return uint32(id) - 1 }
func (id SessionID) gen() uint32   { return uint32(id >> 32) }

func (id SessionID) String() string {
	if id == 0 {
		return "none"
	}
	return fmt.Sprintf("%d.%d", id.index(), id.gen())
}

// SessionInfo describes what a live session is bound to.
type SessionInfo struct {
	ID         SessionID
	Descriptor *Descriptor
	RomPath    string
	Frames     uint64
}

type session struct {
	mu     sync.Mutex
	desc   *Descriptor
	inst   Instance
	path   string
	frames uint64
	last   FrameOutput
	closed bool
}

type slot struct {
	gen  uint32
	sess *session
}

// Bridge owns every live session. Sessions are independent of each other; calls
// on the same session are serialized.
type Bridge struct {
	log *logrus.Entry

	mu    sync.Mutex
	slots []slot
	free  []uint32
	feed  map[int]SessionID
	gates map[int]*sync.Mutex

	descsMu sync.RWMutex
	descs   map[string]*Descriptor
}

func NewBridge(log *logrus.Entry) *Bridge {
	return &Bridge{
		log:   util.Component(log, "bridge"),
		feed:  make(map[int]SessionID),
		gates: make(map[int]*sync.Mutex),
		descs: make(map[string]*Descriptor),
	}
}

// Start loads romPath into a fresh instance of desc.
func (b *Bridge) Start(ctx context.Context, desc *Descriptor, romPath string) (SessionID, error) {
	rom, err := os.ReadFile(romPath)
	if err != nil {
		return 0, fmt.Errorf("core: read rom: %w", err)
	}
	return b.StartROM(ctx, desc, romPath, rom)
}

// StartROM is Start with the ROM contents already in memory.
func (b *Bridge) StartROM(ctx context.Context, desc *Descriptor, romPath string, rom []byte) (id SessionID, err error) {
	if desc == nil {
		return 0, NewCoreLoadError("<nil>", errors.New("no core descriptor"))
	}
	if err = ctx.Err(); err != nil {
		return 0, err
	}

	drv, err := driverByName(desc.Driver)
	if err != nil {
		return 0, NewCoreLoadError(desc.ID, err)
	}

	inst, err := openGuarded(ctx, drv, desc)
	if err != nil {
		var le *CoreLoadError
		if errors.As(err, &le) {
			return 0, err
		}
		return 0, NewCoreLoadError(desc.ID, err)
	}

	if err = loadGuarded(desc, inst, romPath, rom); err != nil {
		closeQuietly(inst)
		var re *RomRejectedError
		var le *CoreLoadError
		if errors.As(err, &re) || errors.As(err, &le) {
			return 0, err
		}
		return 0, NewRomRejectedError(desc.ID, romPath, err)
	}

	id = b.allocate(&session{desc: desc, inst: inst, path: romPath})
	b.log.WithFields(logrus.Fields{"session": id, "core": desc.ID, "rom": romPath}).Debug("session started")
	return id, nil
}

// StartInSlot starts a session for a feed slot, stopping whatever occupied it.
func (b *Bridge) StartInSlot(ctx context.Context, feedSlot int, desc *Descriptor, romPath string) (SessionID, error) {
	rom, err := os.ReadFile(romPath)
	if err != nil {
		return 0, fmt.Errorf("core: read rom: %w", err)
	}
	return b.StartROMInSlot(ctx, feedSlot, desc, romPath, rom)
}

// StartROMInSlot is StartInSlot with the ROM contents already in memory.
// Callers racing on the same slot are serialized, so the slot never holds more
// than one live session.
func (b *Bridge) StartROMInSlot(ctx context.Context, feedSlot int, desc *Descriptor, romPath string, rom []byte) (SessionID, error) {
	gate := b.slotGate(feedSlot)
	gate.Lock()
	defer gate.Unlock()

	b.mu.Lock()
	prev, ok := b.feed[feedSlot]
	delete(b.feed, feedSlot)
	b.mu.Unlock()
	if ok {
		if err := b.Stop(prev); err != nil && !errors.Is(err, ErrInvalidSession) {
			b.log.WithError(err).WithField("session", prev).Warn("could not stop previous slot occupant")
		}
	}

	id, err := b.StartROM(ctx, desc, romPath, rom)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	b.feed[feedSlot] = id
	b.mu.Unlock()
	return id, nil
}

func (b *Bridge) slotGate(feedSlot int) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.gates[feedSlot]
	if !ok {
		g = new(sync.Mutex)
		b.gates[feedSlot] = g
	}
	return g
}

// SlotSession returns the session occupying a feed slot.
func (b *Bridge) SlotSession(feedSlot int) (SessionID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.feed[feedSlot]
	return id, ok
}

// Step advances one frame.
func (b *Bridge) Step(id SessionID, input Input) (out FrameOutput, err error) {
	s, err := b.acquire(id)
	if err != nil {
		return out, err
	}
	defer s.mu.Unlock()

	err = b.guard(id, s, func() (err error) {
		out, err = s.inst.Step(input)
		return
	})
	if err != nil {
		return FrameOutput{}, err
	}
	s.frames++
	out.Frame = s.frames
	s.last = keepFrame(s.last, out)
	return out, nil
}

// LastFrame returns a copy of the most recent frame. It is empty before the first Step.
func (b *Bridge) LastFrame(id SessionID) (FrameOutput, error) {
	s, err := b.acquire(id)
	if err != nil {
		return FrameOutput{}, err
	}
	defer s.mu.Unlock()
	return s.last.Clone(), nil
}

// keepFrame copies out into dst, reusing dst's buffers.
func keepFrame(dst, out FrameOutput) FrameOutput {
	pix := append(dst.Pixels[:0], out.Pixels...)
	audio := append(dst.Audio[:0], out.Audio...)
	dst = out
	dst.Pixels = pix
	dst.Audio = audio
	return dst
}

// Capture snapshots the session state without advancing time.
func (b *Bridge) Capture(id SessionID) (StateBlob, error) {
	s, err := b.acquire(id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	ser, ok := s.inst.(Serializer)
	if !ok || !s.desc.Capabilities.CanSerialize {
		return nil, &UnsupportedError{Core: s.desc.ID, Capability: "serialize"}
	}

	var payload []byte
	err = b.guard(id, s, func() (err error) {
		payload, err = ser.Serialize()
		return
	})
	if err != nil {
		return nil, err
	}
	return encodeState(s.desc, payload)
}

// Restore replaces the session state with a blob captured from the same core and version.
func (b *Bridge) Restore(id SessionID, blob StateBlob) error {
	s, err := b.acquire(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	ser, ok := s.inst.(Serializer)
	if !ok || !s.desc.Capabilities.CanSerialize {
		return &UnsupportedError{Core: s.desc.ID, Capability: "unserialize"}
	}

	h, payload, err := DecodeState(blob)
	if err != nil {
		return err
	}
	if h.CoreID != s.desc.ID || h.CoreVersion != s.desc.Version {
		return &CorruptStateError{Reason: fmt.Sprintf("state was captured by %s %s, session runs %s %s", h.CoreID, h.CoreVersion, s.desc.ID, s.desc.Version)}
	}

	err = b.guard(id, s, func() error {
		return ser.Unserialize(payload)
	})
	if err != nil {
		var fe *CoreFaultError
		if errors.As(err, &fe) {
			return err
		}
		return &CorruptStateError{Reason: "core refused state", wrapped: err}
	}
	return nil
}

// Stop releases the session. The id is invalid afterwards.
func (b *Bridge) Stop(id SessionID) error {
	s, err := b.release(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var closeErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				util.LogPanic(b.log.WithField("session", id), r)
				closeErr = &CoreFaultError{Session: id, Value: r}
			}
		}()
		closeErr = s.inst.Close()
	}()
	b.log.WithField("session", id).Debug("session stopped")
	return closeErr
}

// Info reports what the session is bound to.
func (b *Bridge) Info(id SessionID) (SessionInfo, error) {
	s, err := b.acquire(id)
	if err != nil {
		return SessionInfo{}, err
	}
	defer s.mu.Unlock()
	return SessionInfo{ID: id, Descriptor: s.desc, RomPath: s.path, Frames: s.frames}, nil
}

// Sessions lists live session ids.
func (b *Bridge) Sessions() []SessionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	var ids []SessionID
	for i, sl := range b.slots {
		if sl.sess != nil {
			ids = append(ids, makeSessionID(uint32(i), sl.gen))
		}
	}
	return ids
}

// Close stops every live session.
func (b *Bridge) Close() error {
	var errs []error
	for _, id := range b.Sessions() {
		if err := b.Stop(id); err != nil && !errors.Is(err, ErrInvalidSession) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bridge) allocate(s *session) SessionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	var index uint32
	if n := len(b.free); n > 0 {
		index = b.free[n-1]
		b.free = b.free[:n-1]
	} else {
		index = uint32(len(b.slots))
		b.slots = append(b.slots, slot{})
	}
	b.slots[index].sess = s
	return makeSessionID(index, b.slots[index].gen)
}

// acquire returns the session locked.
func (b *Bridge) acquire(id SessionID) (*session, error) {
	b.mu.Lock()
	s := b.lookupLocked(id)
	b.mu.Unlock()
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}
	return s, nil
}

// release removes the session from its slot and bumps the slot generation.
func (b *Bridge) release(id SessionID) (*session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.lookupLocked(id)
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}
	sl := &b.slots[id.index()]
	sl.sess = nil
	sl.gen++
	b.free = append(b.free, id.index())
	for k, v := range b.feed {
		if v == id {
			delete(b.feed, k)
		}
	}
	return s, nil
}

func (b *Bridge) lookupLocked(id SessionID) *session {
	if id == 0 {
		return nil
	}
	i := id.index()
	if int(i) >= len(b.slots) {
		return nil
	}
	sl := b.slots[i]
	if sl.gen != id.gen() {
		return nil
	}
	return sl.sess
}

// guard runs fn against a locked session. A panic invalidates the slot and
// surfaces as CoreFaultError; other sessions are untouched.
func (b *Bridge) guard(id SessionID, s *session, fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		util.LogPanic(b.log.WithFields(logrus.Fields{"session": id, "core": s.desc.ID}), r)
		s.closed = true
		_, _ = b.release(id)
		closeQuietly(s.inst)
		err = &CoreFaultError{Session: id, Value: r}
	}()
	return fn()
}

func openGuarded(ctx context.Context, drv Driver, desc *Descriptor) (inst Instance, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewCoreLoadError(desc.ID, fmt.Errorf("panic while opening: %v", r))
		}
	}()
	return drv.Open(ctx, desc)
}

func loadGuarded(desc *Descriptor, inst Instance, romPath string, rom []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewCoreLoadError(desc.ID, fmt.Errorf("panic while loading rom: %v", r))
		}
	}()
	return inst.Load(romPath, rom)
}

func closeQuietly(inst Instance) {
	defer func() { _ = recover() }()
	_ = inst.Close()
}
