package refsnes

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/alttpo/snes/emulator"

	"playbyte/core"
	"playbyte/snes"
)

const (
	cycleBudget = 0x10_000

	joypadAddr  = 0x0000
	screenAddr  = 0x0100
	paletteAddr = 0x0200

	ScreenWidth  = 16
	ScreenHeight = 16
)

type Instance struct {
	desc *core.Descriptor

	sys   *emulator.System
	rom   *snes.ROM
	entry uint32
	done  uint32
}

func (i *Instance) Load(romPath string, contents []byte) (err error) {
	reject := func(format string, args ...any) error {
		return core.NewRomRejectedError(i.desc.ID, romPath, fmt.Errorf(format, args...))
	}

	rom, err := snes.NewROM(filepath.Base(romPath), contents)
	if err != nil {
		return reject("%v", err)
	}
	if rom.HiROM {
		return reject("HiROM layout is not supported")
	}
	if rom.EmulatedVectors.RESET < 0x8000 {
		return reject("RESET vector %#04x does not point into ROM", rom.EmulatedVectors.RESET)
	}
	if rom.EmulatedVectors.COP < 0x8000 {
		return reject("COP vector %#04x does not mark a frame end in ROM", rom.EmulatedVectors.COP)
	}

	// create the CPU-only SNES emulator:
	sys := &emulator.System{}
	if err = sys.CreateEmulator(); err != nil {
		return core.NewCoreLoadError(i.desc.ID, err)
	}
	copy(sys.ROM[:], rom.Contents)

	i.sys = sys
	i.rom = rom
	i.entry = uint32(rom.EmulatedVectors.RESET)
	i.done = uint32(rom.EmulatedVectors.COP)
	return nil
}

func (i *Instance) Step(input core.Input) (core.FrameOutput, error) {
	if i.sys == nil {
		return core.FrameOutput{}, fmt.Errorf("refsnes: no rom loaded")
	}

	binary.LittleEndian.PutUint16(i.sys.WRAM[joypadAddr:], uint16(input.Pads[0]))
	binary.LittleEndian.PutUint16(i.sys.WRAM[joypadAddr+2:], uint16(input.Pads[1]))

	// run the frame routine until it either runs away or hits its end marker:
	i.sys.CPU.Reset()
	i.sys.SetPC(i.entry)
	if !i.sys.RunUntil(i.done, cycleBudget) {
		return core.FrameOutput{}, fmt.Errorf("refsnes: CPU ran too long and did not reach PC=%#06x", i.done)
	}

	return i.frame(), nil
}

func (i *Instance) frame() core.FrameOutput {
	out := core.FrameOutput{
		Width:  ScreenWidth,
		Height: ScreenHeight,
		Pixels: make([]byte, ScreenWidth*ScreenHeight*4),
	}
	for p := 0; p < ScreenWidth*ScreenHeight; p++ {
		idx := uint32(i.sys.WRAM[screenAddr+p])
		c := snes.RGBA(binary.LittleEndian.Uint16(i.sys.WRAM[paletteAddr+idx*2:]))
		out.Pixels[p*4+0] = c.R
		out.Pixels[p*4+1] = c.G
		out.Pixels[p*4+2] = c.B
		out.Pixels[p*4+3] = c.A
	}
	return out
}

// Serialize captures WRAM followed by SRAM. CPU registers are reset every frame.
func (i *Instance) Serialize() ([]byte, error) {
	if i.sys == nil {
		return nil, fmt.Errorf("refsnes: no rom loaded")
	}
	b := make([]byte, 0, len(i.sys.WRAM)+len(i.sys.SRAM))
	b = append(b, i.sys.WRAM[:]...)
	b = append(b, i.sys.SRAM[:]...)
	return b, nil
}

func (i *Instance) Unserialize(state []byte) error {
	if i.sys == nil {
		return fmt.Errorf("refsnes: no rom loaded")
	}
	if want := len(i.sys.WRAM) + len(i.sys.SRAM); len(state) != want {
		return fmt.Errorf("refsnes: state is %d bytes, expected %d", len(state), want)
	}
	n := copy(i.sys.WRAM[:], state)
	copy(i.sys.SRAM[:], state[n:])
	return nil
}

func (i *Instance) Close() error {
	i.sys = nil
	return nil
}
