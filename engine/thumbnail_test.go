package engine

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playbyte/core"
)

func solidFrame(w, h int) core.FrameOutput {
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = 0x20, 0x40, 0x80, 0xFF
	}
	return core.FrameOutput{Width: w, Height: h, Pixels: pix}
}

func TestRenderThumbnail(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"pixel art is enlarged by whole multiples", 16, 16, 128, 128},
		{"odd sizes round the factor up", 50, 40, 150, 120},
		{"mid sizes are kept", 256, 224, 256, 224},
		{"large frames shrink keeping aspect", 640, 480, 320, 240},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := RenderThumbnail(solidFrame(tt.w, tt.h))
			require.NoError(t, err)
			img, err := png.Decode(bytes.NewReader(b))
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, img.Bounds().Dx())
			assert.Equal(t, tt.wantH, img.Bounds().Dy())

			r, g, bl, a := img.At(tt.wantW/2, tt.wantH/2).RGBA()
			assert.Equal(t, []uint32{0x20, 0x40, 0x80, 0xFF}, []uint32{r >> 8, g >> 8, bl >> 8, a >> 8})
		})
	}
}

func TestRenderThumbnail_Invalid(t *testing.T) {
	_, err := RenderThumbnail(core.FrameOutput{})
	assert.ErrorIs(t, err, ErrNoFrame)

	short := solidFrame(4, 4)
	short.Pixels = short.Pixels[:10]
	_, err = RenderThumbnail(short)
	assert.Error(t, err)
}

func TestPlaceholderThumbnail(t *testing.T) {
	b, err := PlaceholderThumbnail()
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, ThumbnailMinWidth, img.Bounds().Dx())
	assert.Equal(t, ThumbnailMinWidth*7/8, img.Bounds().Dy())

	again, err := PlaceholderThumbnail()
	require.NoError(t, err)
	assert.Equal(t, b, again)
}
