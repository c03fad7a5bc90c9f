package snes

import "image/color"

// FromBGR16 splits a CGRAM color into its 5-bit components.
func FromBGR16(c uint16) (r, g, b uint8) {
	b = uint8((c & 0x7C00) >> 10)
	g = uint8((c & 0x03E0) >> 5)
	r = uint8(c & 0x001F)
	return
}

func ToBGR16(r, g, b uint8) (c uint16) {
	c = (uint16(b&31) << 10) | (uint16(g&31) << 5) | uint16(r&31)
	return
}

// RGBA expands a CGRAM color to 8 bits per channel, replicating the high bits into the low bits.
func RGBA(c uint16) color.RGBA {
	r, g, b := FromBGR16(c)
	return color.RGBA{
		R: r<<3 | r>>2,
		G: g<<3 | g>>2,
		B: b<<3 | b>>2,
		A: 0xFF,
	}
}
