package libretro

import "encoding/binary"

// toRGBA converts one frame from the core's pixel format into packed RGBA.
func toRGBA(format pixelFormat, src []byte, width, height, pitch int) []byte {
	dst := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		row := src[y*pitch:]
		out := dst[y*width*4:]
		for x := 0; x < width; x++ {
			var r, g, b uint8
			switch format {
			case pixelFormatXRGB8888:
				v := binary.LittleEndian.Uint32(row[x*4:])
				r, g, b = uint8(v>>16), uint8(v>>8), uint8(v)
			case pixelFormatRGB565:
				v := binary.LittleEndian.Uint16(row[x*2:])
				r = expand5(uint8(v >> 11))
				g = expand6(uint8(v>>5) & 0x3F)
				b = expand5(uint8(v) & 0x1F)
			default:
				v := binary.LittleEndian.Uint16(row[x*2:])
				r = expand5(uint8(v>>10) & 0x1F)
				g = expand5(uint8(v>>5) & 0x1F)
				b = expand5(uint8(v) & 0x1F)
			}
			out[x*4+0] = r
			out[x*4+1] = g
			out[x*4+2] = b
			out[x*4+3] = 0xFF
		}
	}
	return dst
}

func bytesPerPixel(format pixelFormat) int {
	if format == pixelFormatXRGB8888 {
		return 4
	}
	return 2
}

func expand5(v uint8) uint8 { return v<<3 | v>>2 }
func expand6(v uint8) uint8 { return v<<2 | v>>4 }
