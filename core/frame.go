package core

import (
	"bytes"
	"image"
	"slices"
)

// FrameOutput is what one Step produced. Pixels are RGBA with a stride of Width*4.
type FrameOutput struct {
	Frame  uint64
	Width  int
	Height int
	Pixels []byte
	// Audio holds interleaved stereo samples.
	Audio []int16
}

// Image wraps the pixels without copying.
func (f FrameOutput) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pixels,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Equal compares video and audio bit for bit. The frame counter is ignored.
func (f FrameOutput) Equal(o FrameOutput) bool {
	return f.Width == o.Width &&
		f.Height == o.Height &&
		bytes.Equal(f.Pixels, o.Pixels) &&
		slices.Equal(f.Audio, o.Audio)
}

func (f FrameOutput) Empty() bool {
	return f.Width == 0 || f.Height == 0 || len(f.Pixels) == 0
}

// Clone returns a deep copy that survives the next Step.
func (f FrameOutput) Clone() FrameOutput {
	f.Pixels = bytes.Clone(f.Pixels)
	f.Audio = slices.Clone(f.Audio)
	return f
}
