package mock

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/xxh3"

	"playbyte/core"
)

const (
	frameWidth  = 8
	frameHeight = 8
	stateSize   = 24
)

// Instance runs a linear congruential "game" seeded by the ROM contents.
type Instance struct {
	desc *core.Descriptor
	m    Manifest

	loaded bool
	seed   uint64
	frame  uint64
	acc    uint64
}

func (i *Instance) Load(romPath string, rom []byte) error {
	if len(rom) == 0 || len(rom) < i.m.MinROMSize {
		return core.NewRomRejectedError(i.desc.ID, romPath, fmt.Errorf("rom is %d bytes, need at least %d", len(rom), max(i.m.MinROMSize, 1)))
	}
	i.seed = xxh3.Hash(rom)
	i.acc = i.seed
	i.frame = 0
	i.loaded = true
	return nil
}

func (i *Instance) Step(input core.Input) (core.FrameOutput, error) {
	if !i.loaded {
		return core.FrameOutput{}, fmt.Errorf("mock: no rom loaded")
	}
	if i.m.FaultAfter > 0 && i.frame >= i.m.FaultAfter {
		panic(fmt.Sprintf("mock: simulated fault at frame %d", i.frame))
	}

	i.frame++
	i.acc = i.acc*6364136223846793005 + 1442695040888963407 + uint64(input.Pads[0])<<16 + uint64(input.Pads[1])

	out := core.FrameOutput{
		Width:  frameWidth,
		Height: frameHeight,
		Pixels: make([]byte, frameWidth*frameHeight*4),
		Audio:  make([]int16, 4),
	}
	for p := 0; p < frameWidth*frameHeight; p++ {
		v := byte(i.acc>>(uint(p%8)*8)) ^ byte(p)
		out.Pixels[p*4+0] = v
		out.Pixels[p*4+1] = v ^ 0x55
		out.Pixels[p*4+2] = v ^ 0xAA
		out.Pixels[p*4+3] = 0xFF
	}
	for s := range out.Audio {
		out.Audio[s] = int16(i.acc >> (uint(s) * 16))
	}
	return out, nil
}

func (i *Instance) Close() error {
	i.loaded = false
	return nil
}

// SerializingInstance adds state capture for manifests with serialize = true.
type SerializingInstance struct {
	*Instance
}

func (i *SerializingInstance) Serialize() ([]byte, error) {
	b := make([]byte, stateSize)
	binary.LittleEndian.PutUint64(b[0:], i.seed)
	binary.LittleEndian.PutUint64(b[8:], i.frame)
	binary.LittleEndian.PutUint64(b[16:], i.acc)
	return b, nil
}

func (i *SerializingInstance) Unserialize(state []byte) error {
	if len(state) != stateSize {
		return fmt.Errorf("mock: state is %d bytes, expected %d", len(state), stateSize)
	}
	if seed := binary.LittleEndian.Uint64(state[0:]); seed != i.seed {
		return fmt.Errorf("mock: state belongs to a different rom")
	}
	i.frame = binary.LittleEndian.Uint64(state[8:])
	i.acc = binary.LittleEndian.Uint64(state[16:])
	return nil
}
