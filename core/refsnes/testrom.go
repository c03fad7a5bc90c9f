package refsnes

import (
	"encoding/binary"

	"playbyte/snes/asm"
)

const (
	frameCounter = 0x10
	frameValue   = 0x11
	joypad1      = 0x00
)

// assembleFrameRoutine builds the routine each frame runs from $00:8000. It
// returns the code and the address of the idle loop that marks a frame end.
func assembleFrameRoutine() ([]byte, uint16) {
	a := asm.NewEmitter(make([]byte, 0x100), false)
	a.SetBase(0x8000)
	a.LDA_dp(frameCounter)
	a.INC_a()
	a.STA_dp(frameCounter)
	a.CLC()
	a.ADC_dp(joypad1)
	a.STA_dp(frameValue)
	a.TAX()
	a.STA_abs_x(0x0100) // plot
	a.STA_abs_x(0x0200) // tint palette
	a.Label("done")
	a.BRA("done")
	if err := a.Finalize(); err != nil {
		panic(err)
	}
	done, _ := a.LabelAddress("done")
	return a.Bytes(), uint16(done)
}

var frameRoutine, frameDone = assembleFrameRoutine()

// BuildROM assembles a 32 KiB LoROM image that runs a small frame routine.
// Different variants produce different contents, and so different hashes.
func BuildROM(title string, region byte, variant byte) []byte {
	rom := make([]byte, 0x8000)
	copy(rom, frameRoutine)
	rom[0x7000] = variant

	// header at $00:FFC0:
	var t [21]byte
	for i := range t {
		t[i] = ' '
	}
	copy(t[:], title)
	copy(rom[0x7FC0:], t[:])
	rom[0x7FD5] = 0x20 // LoROM
	rom[0x7FD6] = 0x00 // ROM only
	rom[0x7FD7] = 0x05 // 32 KiB
	rom[0x7FD8] = 0x00
	rom[0x7FD9] = region
	rom[0x7FDA] = 0x01
	rom[0x7FDB] = 0x00

	// emulation-mode vectors:
	binary.LittleEndian.PutUint16(rom[0x7FF4:], frameDone) // COP: frame end
	binary.LittleEndian.PutUint16(rom[0x7FFC:], 0x8000)    // RESET: frame entry

	var sum uint16
	for _, b := range rom {
		sum += uint16(b)
	}
	binary.LittleEndian.PutUint16(rom[0x7FDC:], ^sum)
	binary.LittleEndian.PutUint16(rom[0x7FDE:], sum)
	return rom
}
