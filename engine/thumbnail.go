package engine

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"golang.org/x/image/draw"

	"playbyte/core"
)

const (
	// ThumbnailMinWidth is the width small frames are enlarged to, in whole multiples.
	ThumbnailMinWidth = 128
	// ThumbnailMaxWidth bounds large frames; they are scaled down keeping aspect.
	ThumbnailMaxWidth = 320
)

var pngEncoder = png.Encoder{CompressionLevel: png.BestCompression}

// placeholderShade fills the thumbnail of a session captured before its first frame.
var placeholderShade = color.RGBA{R: 0x30, G: 0x30, B: 0x38, A: 0xff}

// PlaceholderThumbnail is the PNG used when no frame exists yet. It has the
// feed's minimum width and an 8:7 aspect.
var PlaceholderThumbnail = sync.OnceValues(func() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, ThumbnailMinWidth, ThumbnailMinWidth*7/8))
	draw.Draw(img, img.Rect, &image.Uniform{C: placeholderShade}, image.Point{}, draw.Src)
	b := &bytes.Buffer{}
	if err := pngEncoder.Encode(b, img); err != nil {
		return nil, fmt.Errorf("engine: encode placeholder thumbnail: %w", err)
	}
	return b.Bytes(), nil
})

// RenderThumbnail encodes frame as a PNG sized for the feed.
func RenderThumbnail(frame core.FrameOutput) ([]byte, error) {
	if frame.Empty() {
		return nil, ErrNoFrame
	}
	if len(frame.Pixels) < frame.Width*frame.Height*4 {
		return nil, fmt.Errorf("engine: frame has %d bytes of pixels for %dx%d", len(frame.Pixels), frame.Width, frame.Height)
	}

	img := scaleFrame(frame.Image())

	b := &bytes.Buffer{}
	if err := pngEncoder.Encode(b, img); err != nil {
		return nil, fmt.Errorf("engine: encode thumbnail: %w", err)
	}
	return b.Bytes(), nil
}

func scaleFrame(src *image.RGBA) image.Image {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	switch {
	case w < ThumbnailMinWidth:
		// pixel art stays sharp at integer factors:
		f := (ThumbnailMinWidth + w - 1) / w
		dst := image.NewRGBA(image.Rect(0, 0, w*f, h*f))
		draw.NearestNeighbor.Scale(dst, dst.Rect, src, src.Rect, draw.Src, nil)
		return dst
	case w > ThumbnailMaxWidth:
		dh := max(h*ThumbnailMaxWidth/w, 1)
		dst := image.NewRGBA(image.Rect(0, 0, ThumbnailMaxWidth, dh))
		draw.CatmullRom.Scale(dst, dst.Rect, src, src.Rect, draw.Src, nil)
		return dst
	default:
		return src
	}
}
