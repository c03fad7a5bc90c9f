package asm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_LabelBackwards(t *testing.T) {
	a := NewEmitter(make([]byte, 0x100), true)
	a.Label("loop")
	a.BNE("loop")
	require.NoError(t, a.Finalize())
	assert.Equal(t, []byte{0xD0, 0xFE}, a.Bytes())

	var sb strings.Builder
	require.NoError(t, a.WriteTextTo(&sb))
	assert.Contains(t, sb.String(), "loop:")
	assert.Contains(t, sb.String(), "d0 fe")
}

func TestEmitter_LabelForwards_InRange(t *testing.T) {
	a := NewEmitter(make([]byte, 0x100), false)
	a.SEP(0x30)
	a.LDA_imm8_b(0x01)
	a.BNE("next")
	a.RTS()
	a.Label("next")
	a.CMP_imm8_b(0x02)
	a.RTS()
	require.NoError(t, a.Finalize())
	assert.Equal(t, []byte{0xE2, 0x30, 0xA9, 0x01, 0xD0, 0x01, 0x60, 0xC9, 0x02, 0x60}, a.Bytes())
}

func TestEmitter_LabelForwards_NoRef(t *testing.T) {
	a := NewEmitter(make([]byte, 0x100), false)
	a.SEP(0x30)
	a.LDA_imm8_b(0x01)
	a.BNE("next")
	a.RTS()
	a.Label("next")
	a.CMP_imm8_b(0x02)
	a.BNE("next2")
	a.RTS()
	assert.EqualError(t, a.Finalize(), "could not resolve label 'next2'")
}

func TestEmitter_LabelForwards_OutOfRange(t *testing.T) {
	a := NewEmitter(make([]byte, 0x100), false)
	a.SEP(0x30)
	a.LDA_imm8_b(0x01)
	a.BNE("next")
	a.RTS()
	for i := 0; i < 127; i++ {
		a.NOP()
	}
	a.Label("next")
	a.CMP_imm8_b(0x02)
	a.RTS()
	assert.EqualError(t, a.Finalize(), "branch from 0x000006 to 0x000086 too far for signed 8-bit; diff=128")
}

func TestEmitter_Overflow(t *testing.T) {
	a := NewEmitter(make([]byte, 2), false)
	a.NOP()
	a.STA_abs_x(0x0100)
	assert.ErrorContains(t, a.Finalize(), "overflows")
}

func TestEmitter_AccumulatorWidth(t *testing.T) {
	a := NewEmitter(make([]byte, 0x10), false)
	a.REP(Accumulator8bit)
	assert.True(t, a.IsM16bit())
	assert.Panics(t, func() { a.LDA_imm8_b(1) })
}
