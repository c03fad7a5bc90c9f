package asm

import "fmt"

func imm16(v uint16) (byte, byte) {
	return byte(v), byte(v >> 8)
}

func (a *Emitter) REP(c Flags) {
	a.AssumeREP(c)
	a.emit("rep", fmt.Sprintf("#$%02x", byte(c)), 0xC2, byte(c))
}

func (a *Emitter) SEP(c Flags) {
	a.AssumeSEP(c)
	a.emit("sep", fmt.Sprintf("#$%02x", byte(c)), 0xE2, byte(c))
}

func (a *Emitter) NOP() { a.emit("nop", "", 0xEA) }
func (a *Emitter) CLC() { a.emit("clc", "", 0x18) }
func (a *Emitter) TAX() { a.emit("tax", "", 0xAA) }
func (a *Emitter) RTS() { a.emit("rts", "", 0x60) }

// INC_a increments the accumulator.
func (a *Emitter) INC_a() { a.emit("inc", "a", 0x1A) }

func (a *Emitter) LDA_imm8_b(m uint8) {
	if a.IsM16bit() {
		panic(fmt.Errorf("asm: LDA_imm8_b called but 'm' flag is 16-bit; call SEP(0x20) or AssumeSEP(0x20) first"))
	}
	a.emit("lda.b", fmt.Sprintf("#$%02x", m), 0xA9, m)
}

func (a *Emitter) CMP_imm8_b(m uint8) {
	if a.IsM16bit() {
		panic(fmt.Errorf("asm: CMP_imm8_b called but 'm' flag is 16-bit; call SEP(0x20) or AssumeSEP(0x20) first"))
	}
	a.emit("cmp.b", fmt.Sprintf("#$%02x", m), 0xC9, m)
}

func (a *Emitter) LDA_dp(addr uint8) { a.emit("lda", fmt.Sprintf("$%02x", addr), 0xA5, addr) }
func (a *Emitter) STA_dp(addr uint8) { a.emit("sta", fmt.Sprintf("$%02x", addr), 0x85, addr) }
func (a *Emitter) ADC_dp(addr uint8) { a.emit("adc", fmt.Sprintf("$%02x", addr), 0x65, addr) }

func (a *Emitter) STA_abs_x(addr uint16) {
	lo, hi := imm16(addr)
	a.emit("sta", fmt.Sprintf("$%04x,x", addr), 0x9D, lo, hi)
}

func (a *Emitter) BNE(label string) { a.branch("bne", 0xD0, label) }
func (a *Emitter) BRA(label string) { a.branch("bra", 0x80, label) }
