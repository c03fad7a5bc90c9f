package refsnes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playbyte/core"
	"playbyte/snes"
	"playbyte/util"
)

func newInstance(t *testing.T, rom []byte) *Instance {
	t.Helper()
	inst, err := (&Driver{}).Open(context.Background(), Descriptor())
	require.NoError(t, err)
	require.NoError(t, inst.Load("test.sfc", rom))
	return inst.(*Instance)
}

func TestBuildROM_Header(t *testing.T) {
	r, err := snes.NewROM("test.sfc", BuildROM("PLAYBYTE TEST", 0x02, 0))
	require.NoError(t, err)
	assert.Equal(t, "PLAYBYTE TEST", r.Title())
	assert.Equal(t, "Europe", r.Region())
	assert.False(t, r.HiROM)
	assert.Equal(t, uint16(0x8000), r.EmulatedVectors.RESET)
	assert.Equal(t, uint16(frameDone), r.EmulatedVectors.COP)
}

func TestFrameRoutine(t *testing.T) {
	assert.Equal(t, []byte{
		0xA5, 0x10, 0x1A, 0x85, 0x10, 0x18, 0x65, 0x00, 0x85, 0x11, 0xAA,
		0x9D, 0x00, 0x01, 0x9D, 0x00, 0x02, 0x80, 0xFE,
	}, frameRoutine)
	assert.Equal(t, uint16(0x8011), frameDone)
}

func TestInstance_Step(t *testing.T) {
	inst := newInstance(t, BuildROM("STEP", 0x01, 0))

	out, err := inst.Step(core.Input{Pads: [2]core.Buttons{3}})
	require.NoError(t, err)
	assert.Equal(t, ScreenWidth, out.Width)
	assert.Equal(t, ScreenHeight, out.Height)
	assert.Len(t, out.Pixels, ScreenWidth*ScreenHeight*4)

	// frame counter at $10, counter plus input at $11:
	assert.Equal(t, byte(1), inst.sys.WRAM[0x10])
	assert.Equal(t, byte(4), inst.sys.WRAM[0x11])
	assert.Equal(t, byte(4), inst.sys.WRAM[0x0104])

	_, err = inst.Step(core.Input{Pads: [2]core.Buttons{1}})
	require.NoError(t, err)
	assert.Equal(t, byte(2), inst.sys.WRAM[0x10])
	assert.Equal(t, byte(3), inst.sys.WRAM[0x11])
}

func TestInstance_SerializeRoundTrip(t *testing.T) {
	rom := BuildROM("ROUNDTRIP", 0x01, 1)
	a := newInstance(t, rom)

	for i := 0; i < 20; i++ {
		_, err := a.Step(core.Input{Pads: [2]core.Buttons{core.Buttons(i)}})
		require.NoError(t, err)
	}
	state, err := a.Serialize()
	require.NoError(t, err)

	want, err := a.Step(core.Input{Pads: [2]core.Buttons{core.ButtonA}})
	require.NoError(t, err)

	b := newInstance(t, rom)
	require.NoError(t, b.Unserialize(state))
	got, err := b.Step(core.Input{Pads: [2]core.Buttons{core.ButtonA}})
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	assert.Error(t, b.Unserialize(state[:100]))
}

func TestInstance_StateIsWRAMThenSRAM(t *testing.T) {
	rom := BuildROM("LAYOUT", 0x01, 0)
	a := newInstance(t, rom)
	_, err := a.Step(core.Input{})
	require.NoError(t, err)
	a.sys.SRAM[0] = 0x5A

	state, err := a.Serialize()
	require.NoError(t, err)
	require.Len(t, state, len(a.sys.WRAM)+len(a.sys.SRAM))
	assert.Equal(t, a.sys.WRAM[:], state[:len(a.sys.WRAM)])
	assert.Equal(t, byte(0x5A), state[len(a.sys.WRAM)])

	b := newInstance(t, rom)
	require.NoError(t, b.Unserialize(state))
	assert.Equal(t, byte(0x5A), b.sys.SRAM[0])
	assert.Equal(t, byte(1), b.sys.WRAM[0x10])
}

func TestInstance_RejectsBadROM(t *testing.T) {
	tests := []struct {
		name string
		rom  []byte
	}{
		{"too small", make([]byte, 0x400)},
		{"no reset vector", make([]byte, 0x8000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := (&Driver{}).Open(context.Background(), Descriptor())
			require.NoError(t, err)
			err = inst.Load("bad.sfc", tt.rom)
			var re *core.RomRejectedError
			assert.ErrorAs(t, err, &re)
		})
	}
}

func TestBridge_RefSNES(t *testing.T) {
	b := core.NewBridge(util.NewTestingLogger(t))
	defer b.Close()

	rom := BuildROM("BRIDGE", 0x01, 2)
	id, err := b.StartROM(context.Background(), Descriptor(), "bridge.sfc", rom)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = b.Step(id, core.Input{})
		require.NoError(t, err)
	}
	blob, err := b.Capture(id)
	require.NoError(t, err)
	want, err := b.Step(id, core.Input{Pads: [2]core.Buttons{core.ButtonRight}})
	require.NoError(t, err)

	id2, err := b.StartROM(context.Background(), Descriptor(), "bridge.sfc", rom)
	require.NoError(t, err)
	require.NoError(t, b.Restore(id2, blob))
	got, err := b.Step(id2, core.Input{Pads: [2]core.Buttons{core.ButtonRight}})
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}
