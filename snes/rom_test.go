package snes

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zeldaHeader = "018d2401e2306bffffffffffffffffff544845204c4547454e44204f46205a454c4441202020020a03010100f2500dafffffffff2c82ffff2c82c9800080d882"

func TestNewROM(t *testing.T) {
	contents := make([]byte, 0x8000)
	_, err := hex.Decode(contents[0x7FB0:], []byte(zeldaHeader))
	require.NoError(t, err)
	contents[0x7FFC], contents[0x7FFD] = 0x00, 0x80

	gotR, err := NewROM("lttp.sfc", contents)
	require.NoError(t, err)

	assert.Equal(t, uint16(0x8D01), gotR.Header.MakerCode)
	assert.Equal(t, uint32(0x30E20124), gotR.Header.GameCode)
	assert.Equal(t, "THE LEGEND OF ZELDA", gotR.Title())
	assert.Equal(t, "USA", gotR.Region())
	assert.Equal(t, "1.0", gotR.Version())
	assert.Equal(t, uint16(0x8000), gotR.EmulatedVectors.RESET)
	assert.False(t, gotR.CopierHeader)
	assert.False(t, gotR.HiROM)
}

func TestNewROM_CopierHeader(t *testing.T) {
	contents := make([]byte, CopierHeaderSize+0x8000)
	_, err := hex.Decode(contents[CopierHeaderSize+0x7FB0:], []byte(zeldaHeader))
	require.NoError(t, err)

	gotR, err := NewROM("lttp.smc", contents)
	require.NoError(t, err)
	assert.True(t, gotR.CopierHeader)
	assert.Len(t, gotR.Contents, 0x8000)
	assert.Equal(t, "THE LEGEND OF ZELDA", gotR.Title())
}

func TestNewROM_TooSmall(t *testing.T) {
	_, err := NewROM("tiny.sfc", make([]byte, 0x100))
	assert.Error(t, err)
}

func TestHasCopierHeader(t *testing.T) {
	tests := []struct {
		size int64
		want bool
	}{
		{0x8000, false},
		{0x8000 + 512, true},
		{512, false},
		{0x100000 + 512, true},
		{0x100000 + 1024, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasCopierHeader(tt.size), "size %d", tt.size)
	}
}
