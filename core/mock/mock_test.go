package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playbyte/core"
	"playbyte/system"
)

func TestDriver_Detect(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteManifest(dir, "nesty", Manifest{System: "nes", Version: "1.2.0", Serialize: true})
	require.NoError(t, err)
	_, err = WriteManifest(dir, "noser", Manifest{System: "snes"})
	require.NoError(t, err)

	descs, err := (&Driver{}).Detect(context.Background(), []string{dir, dir + "/missing"})
	require.NoError(t, err)
	require.Len(t, descs, 2)

	byID := map[string]*core.Descriptor{}
	for _, d := range descs {
		byID[d.ID] = d
	}
	assert.Equal(t, system.NES, byID["mock:nesty"].System)
	assert.True(t, byID["mock:nesty"].Capabilities.CanSerialize)
	assert.Equal(t, "1.2.0", byID["mock:nesty"].Version)
	assert.False(t, byID["mock:noser"].Capabilities.CanSerialize)
	assert.Equal(t, []string{"sfc", "smc"}, byID["mock:noser"].Extensions)
}

func TestDriver_DetectBadManifest(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteManifest(dir, "atari", Manifest{System: "atari2600"})
	require.NoError(t, err)

	descs, err := (&Driver{}).Detect(context.Background(), []string{dir})
	assert.Error(t, err)
	assert.Empty(t, descs)
}

func TestInstance_SerializeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteManifest(dir, "rt", Manifest{System: "nes", Serialize: true})
	require.NoError(t, err)
	desc, err := Describe(path)
	require.NoError(t, err)

	inst, err := (&Driver{}).Open(context.Background(), desc)
	require.NoError(t, err)
	ser, ok := inst.(core.Serializer)
	require.True(t, ok)

	require.NoError(t, inst.Load("game.nes", []byte("rom contents")))
	_, err = inst.Step(core.Input{})
	require.NoError(t, err)

	state, err := ser.Serialize()
	require.NoError(t, err)
	want, err := inst.Step(core.Input{Pads: [2]core.Buttons{core.ButtonA}})
	require.NoError(t, err)

	require.NoError(t, ser.Unserialize(state))
	got, err := inst.Step(core.Input{Pads: [2]core.Buttons{core.ButtonA}})
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	assert.Error(t, ser.Unserialize(state[:5]))
}

func TestInstance_NoSerializer(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteManifest(dir, "plain", Manifest{System: "gba"})
	require.NoError(t, err)
	desc, err := Describe(path)
	require.NoError(t, err)

	inst, err := (&Driver{}).Open(context.Background(), desc)
	require.NoError(t, err)
	_, ok := inst.(core.Serializer)
	assert.False(t, ok)
}
