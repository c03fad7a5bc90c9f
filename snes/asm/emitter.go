package asm

import (
	"fmt"
	"io"
	"strings"
)

type line struct {
	address uint32
	offset  int
	size    int
	ins     string
	args    string
}

type branch struct {
	label  string
	offset int    // of the displacement byte
	next   uint32 // address after the branch
}

// Emitter is a 65816 assembler that writes machine code into a fixed buffer.
// Branches may refer to labels defined later; Finalize resolves them.
type Emitter struct {
	flagsTracker

	code    []byte
	n       int
	address uint32
	err     error

	labels   map[string]uint32
	branches []branch

	text  bool
	lines []line
}

// NewEmitter assembles into code. With text set, a listing is kept for WriteTextTo.
// The emitter starts in emulation mode with 8-bit registers.
func NewEmitter(code []byte, text bool) *Emitter {
	return &Emitter{
		flagsTracker: flagsTracker{flags: Accumulator8bit | IndexRegister8bit},
		code:         code,
		text:         text,
		labels:       make(map[string]uint32),
	}
}

// SetBase sets the address the next instruction is assembled at.
func (a *Emitter) SetBase(addr uint32) { a.address = addr }

func (a *Emitter) Address() uint32 { return a.address }

// Bytes returns the code emitted so far.
func (a *Emitter) Bytes() []byte { return a.code[:a.n] }

func (a *Emitter) emit(ins, args string, d ...byte) {
	if a.err != nil {
		return
	}
	if a.n+len(d) > len(a.code) {
		a.err = fmt.Errorf("asm: %s at $%06x overflows the %d byte buffer", ins, a.address, len(a.code))
		return
	}
	if a.text {
		a.lines = append(a.lines, line{address: a.address, offset: a.n, size: len(d), ins: ins, args: args})
	}
	copy(a.code[a.n:], d)
	a.n += len(d)
	a.address += uint32(len(d))
}

// Label names the current address.
func (a *Emitter) Label(name string) {
	if _, ok := a.labels[name]; ok && a.err == nil {
		a.err = fmt.Errorf("asm: label '%s' defined twice", name)
		return
	}
	a.labels[name] = a.address
	if a.text {
		a.lines = append(a.lines, line{address: a.address, offset: a.n, ins: name + ":"})
	}
}

// LabelAddress returns the address of a defined label.
func (a *Emitter) LabelAddress(name string) (uint32, bool) {
	addr, ok := a.labels[name]
	return addr, ok
}

func (a *Emitter) branch(ins string, opcode byte, label string) {
	a.emit(ins, label, opcode, 0)
	if a.err == nil {
		a.branches = append(a.branches, branch{label: label, offset: a.n - 1, next: a.address})
	}
}

// Finalize patches branch displacements and reports the first error.
func (a *Emitter) Finalize() error {
	if a.err != nil {
		return a.err
	}
	for _, b := range a.branches {
		target, ok := a.labels[b.label]
		if !ok {
			return fmt.Errorf("could not resolve label '%s'", b.label)
		}
		diff := int64(target) - int64(b.next)
		if diff < -128 || diff > 127 {
			return fmt.Errorf("branch from 0x%06x to 0x%06x too far for signed 8-bit; diff=%d", b.next, target, diff)
		}
		a.code[b.offset] = byte(int8(diff))
	}
	return nil
}

// WriteTextTo writes the assembly listing.
func (a *Emitter) WriteTextTo(w io.Writer) error {
	var sb strings.Builder
	for _, l := range a.lines {
		if l.size == 0 {
			fmt.Fprintf(&sb, "%s\n", l.ins)
			continue
		}
		hex := make([]string, l.size)
		for i, b := range a.code[l.offset : l.offset+l.size] {
			hex[i] = fmt.Sprintf("%02x", b)
		}
		fmt.Fprintf(&sb, "    %-5s %-10s ; $%06x  %s\n", l.ins, l.args, l.address, strings.Join(hex, " "))
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
