package libretro

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToRGBA(t *testing.T) {
	tests := []struct {
		name   string
		format pixelFormat
		src    []byte
		pitch  int
		want   []byte
	}{
		{
			name:   "xrgb8888",
			format: pixelFormatXRGB8888,
			src:    []byte{0x30, 0x20, 0x10, 0x00, 0xFF, 0xFF, 0xFF, 0x00},
			pitch:  8,
			want:   []byte{0x10, 0x20, 0x30, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		},
		{
			name:   "rgb565 white and red",
			format: pixelFormatRGB565,
			src:    []byte{0xFF, 0xFF, 0x00, 0xF8},
			pitch:  4,
			want:   []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0xFF},
		},
		{
			name:   "0rgb1555 blue with padded pitch",
			format: pixelFormat0RGB1555,
			src:    []byte{0x1F, 0x00, 0x00, 0x00, 0xAA, 0xAA},
			pitch:  6,
			want:   []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0xFF},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toRGBA(tt.format, tt.src, 2, 1, tt.pitch))
		})
	}
}
