package core

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// BytesPerPixel is the sample count of an RGB pixel.
const BytesPerPixel = 3

// ImageBuffer is a decoded raster held as row-major RGB samples.
// It is owned by one request and never shared.
type ImageBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewImageBuffer converts any decoded image into RGB order, dropping alpha.
func NewImageBuffer(src image.Image) *ImageBuffer {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	pix := make([]byte, 0, width*height*BytesPerPixel)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := src.At(x, y).RGBA()
			pix = append(pix, byte(r>>8), byte(g>>8), byte(b>>8))
		}
	}

	return &ImageBuffer{Width: width, Height: height, Pix: pix}
}

// At returns the RGB samples of the pixel at (x, y).
func (b *ImageBuffer) At(x, y int) (uint8, uint8, uint8) {
	offset := (y*b.Width + x) * BytesPerPixel

	return b.Pix[offset], b.Pix[offset+1], b.Pix[offset+2]
}

// Image returns an opaque RGBA view of the buffer.
func (b *ImageBuffer) Image() *image.RGBA {
	rgba := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))

	for i, j := 0, 0; i < len(b.Pix); i, j = i+BytesPerPixel, j+4 {
		rgba.Pix[j] = b.Pix[i]
		rgba.Pix[j+1] = b.Pix[i+1]
		rgba.Pix[j+2] = b.Pix[i+2]
		rgba.Pix[j+3] = 0xff
	}

	return rgba
}

// EncodePNG renders the buffer as PNG, the transport form used for collaborators.
func (b *ImageBuffer) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer

	err := png.Encode(&buf, b.Image())
	if err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}

	return buf.Bytes(), nil
}
