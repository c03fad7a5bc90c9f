//go:build darwin || freebsd || linux

package libretro

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"unsafe"

	"playbyte/core"
)

// Cores keep their state in globals, so one shared object backs at most one instance.
var (
	busyMu sync.Mutex
	busy   = make(map[string]bool)
)

func (d *Driver) Detect(ctx context.Context, roots []string) ([]*core.Descriptor, error) {
	var descs []*core.Descriptor
	var errs []error
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if de.IsDir() || !isCoreFile(path) {
				return nil
			}

			desc, err := inspectCore(path)
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			descs = append(descs, desc)
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return descs, errors.Join(errs...)
}

func inspectCore(path string) (*core.Descriptor, error) {
	lib, err := openLibrary(path)
	if err != nil {
		return nil, err
	}
	defer lib.close()

	var info systemInfo
	lib.getSystemInfo(&info)

	name := coreName(path)
	d := &core.Descriptor{
		ID:         driverName + ":" + name,
		Driver:     driverName,
		Name:       goString(info.LibraryName),
		Version:    goString(info.LibraryVersion),
		Path:       path,
		Extensions: splitExtensions(goString(info.ValidExtensions)),
		Capabilities: core.Capabilities{
			CanSerialize:  lib.canSerialize(),
			Deterministic: lib.canSerialize(),
		},
	}
	d.System = guessSystem(name, d.Extensions)

	switch {
	case lib.apiVersion() != apiVersion:
		d.Problem = fmt.Sprintf("unsupported libretro API version %d", lib.apiVersion())
	case d.System == 0:
		d.Problem = "core does not target a supported system"
	}
	return d, nil
}

func (d *Driver) Open(ctx context.Context, desc *core.Descriptor) (core.Instance, error) {
	busyMu.Lock()
	if busy[desc.Path] {
		busyMu.Unlock()
		return nil, core.NewCoreLoadError(desc.ID, core.ErrCoreBusy)
	}
	busy[desc.Path] = true
	busyMu.Unlock()

	inst, err := open(desc)
	if err != nil {
		busyMu.Lock()
		delete(busy, desc.Path)
		busyMu.Unlock()
		return nil, core.NewCoreLoadError(desc.ID, err)
	}
	return inst, nil
}

func open(desc *core.Descriptor) (core.Instance, error) {
	lib, err := openLibrary(desc.Path)
	if err != nil {
		return nil, err
	}
	if v := lib.apiVersion(); v != apiVersion {
		_ = lib.close()
		return nil, fmt.Errorf("unsupported libretro API version %d", v)
	}

	registerCallbacks()
	inst := &Instance{
		desc:   desc,
		lib:    lib,
		format: pixelFormat0RGB1555,
		dir:    cString(filepath.Dir(desc.Path)),
	}
	inst.call(func() {
		lib.setEnvironment(cbEnvironment)
		lib.init()
		lib.setVideoRefresh(cbVideo)
		lib.setAudioSample(cbAudioSample)
		lib.setAudioSampleBatch(cbAudioBatch)
		lib.setInputPoll(cbInputPoll)
		lib.setInputState(cbInputState)
	})

	if lib.canSerialize() {
		return &SerializingInstance{Instance: inst}, nil
	}
	return inst, nil
}

type Instance struct {
	desc *core.Descriptor
	lib  *library

	format pixelFormat
	dir    []byte

	// kept alive while the game is loaded:
	path []byte
	rom  []byte

	loaded bool
	input  core.Input
	video  []byte
	width  int
	height int
	audio  []int16
}

func (i *Instance) call(fn func()) {
	callMu.Lock()
	current = i
	defer func() {
		current = nil
		callMu.Unlock()
	}()
	fn()
}

func (i *Instance) Load(romPath string, rom []byte) error {
	var info systemInfo
	i.call(func() { i.lib.getSystemInfo(&info) })

	i.path = cString(romPath)
	game := gameInfo{Path: &i.path[0]}
	if !info.NeedFullpath && len(rom) > 0 {
		i.rom = rom
		game.Data = unsafe.Pointer(&i.rom[0])
		game.Size = uintptr(len(i.rom))
	} else if _, err := os.Stat(romPath); err != nil {
		return core.NewRomRejectedError(i.desc.ID, romPath, err)
	}

	var ok bool
	i.call(func() { ok = i.lib.loadGame(&game) })
	if !ok {
		return core.NewRomRejectedError(i.desc.ID, romPath, nil)
	}
	i.loaded = true
	return nil
}

func (i *Instance) Step(input core.Input) (core.FrameOutput, error) {
	if !i.loaded {
		return core.FrameOutput{}, fmt.Errorf("libretro: no game loaded")
	}
	i.input = input
	i.audio = i.audio[:0]
	i.call(i.lib.run)

	return core.FrameOutput{
		Width:  i.width,
		Height: i.height,
		Pixels: slices.Clone(i.video),
		Audio:  slices.Clone(i.audio),
	}, nil
}

func (i *Instance) Close() error {
	if i.lib == nil {
		return nil
	}
	i.call(func() {
		if i.loaded {
			i.lib.unloadGame()
		}
		i.lib.deinit()
	})
	i.loaded = false
	err := i.lib.close()
	i.lib = nil

	busyMu.Lock()
	delete(busy, i.desc.Path)
	busyMu.Unlock()
	return err
}

type SerializingInstance struct {
	*Instance
}

func (i *SerializingInstance) Serialize() ([]byte, error) {
	var size uintptr
	i.call(func() { size = i.lib.serializeSize() })
	if size == 0 {
		return nil, fmt.Errorf("libretro: core reported an empty state")
	}

	buf := make([]byte, size)
	var ok bool
	i.call(func() { ok = i.lib.serialize(unsafe.Pointer(&buf[0]), size) })
	if !ok {
		return nil, fmt.Errorf("libretro: retro_serialize failed")
	}
	return buf, nil
}

func (i *SerializingInstance) Unserialize(state []byte) error {
	if len(state) == 0 {
		return fmt.Errorf("libretro: empty state")
	}
	var ok bool
	i.call(func() { ok = i.lib.unserialize(unsafe.Pointer(&state[0]), uintptr(len(state))) })
	if !ok {
		return fmt.Errorf("libretro: retro_unserialize refused the state")
	}
	return nil
}
