package asm

// Flags is the 65816 status register: nvmxdizc
type Flags uint8

const (
	Carry Flags = 1 << iota
	Zero
	IRQDisable
	DecimalMode
	IndexRegister8bit
	Accumulator8bit
	Overflow
	Negative
)

type flagsTracker struct {
	flags Flags
}

func (t *flagsTracker) IsM16bit() bool { return t.flags&Accumulator8bit == 0 }
func (t *flagsTracker) IsX16bit() bool { return t.flags&IndexRegister8bit == 0 }

// AssumeREP records a REP executed elsewhere without emitting it.
func (t *flagsTracker) AssumeREP(c Flags) { t.flags &^= c }

// AssumeSEP records a SEP executed elsewhere without emitting it.
func (t *flagsTracker) AssumeSEP(c Flags) { t.flags |= c }
