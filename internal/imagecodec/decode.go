// Package imagecodec turns transport payloads into RGB image buffers.
package imagecodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	// Registered decoders for the formats accepted on the wire.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/book-expert/vision-service/internal/core"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const payloadSeparator = ","

// DefaultMaxPixels is the largest image area accepted when no limit is configured.
const DefaultMaxPixels = 89_478_485

var (
	// ErrEmptyPayload indicates that no image data was supplied.
	ErrEmptyPayload = errors.New("image payload is empty")
	// ErrInvalidBase64 indicates that the payload body is not base64.
	ErrInvalidBase64 = errors.New("invalid base64 image data")
	// ErrTooManyPixels indicates an image whose declared area exceeds the decoder limit.
	ErrTooManyPixels = errors.New("image exceeds pixel limit")
)

var defaultDecoder = NewDecoder(DefaultMaxPixels)

// Decoder decodes images whose declared area is at most maxPixels.
// The header is checked before any pixel data is allocated.
type Decoder struct {
	maxPixels int64
}

// NewDecoder creates a decoder. A non-positive limit selects DefaultMaxPixels.
func NewDecoder(maxPixels int64) *Decoder {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	return &Decoder{maxPixels: maxPixels}
}

// MaxPixels reports the area limit.
func (d *Decoder) MaxPixels() int64 {
	return d.maxPixels
}

// DecodePayload decodes with the default pixel limit.
func DecodePayload(payload string) (*core.ImageBuffer, error) {
	return defaultDecoder.DecodePayload(payload)
}

// DecodeBytes decodes with the default pixel limit.
func DecodeBytes(data []byte) (*core.ImageBuffer, error) {
	return defaultDecoder.DecodeBytes(data)
}

// DecodePayload decodes a data-URL or bare base64 string into an ImageBuffer.
// Only the part after the first comma is treated as data.
func (d *Decoder) DecodePayload(payload string) (*core.ImageBuffer, error) {
	_, body, found := strings.Cut(payload, payloadSeparator)
	if !found {
		body = payload
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrDecode, ErrEmptyPayload)
	}

	data, err := decodeBase64(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrDecode, err)
	}

	return d.DecodeBytes(data)
}

// DecodeBytes parses a raw encoded image and converts it to RGB.
func (d *Decoder) DecodeBytes(data []byte) (*core.ImageBuffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrDecode, ErrEmptyPayload)
	}

	header, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot identify image file: %w", core.ErrDecode, err)
	}

	pixels := int64(header.Width) * int64(header.Height)
	if pixels > d.maxPixels {
		return nil, fmt.Errorf("%w: %w: %s image is %dx%d, limit is %d pixels",
			core.ErrDecode, ErrTooManyPixels, format, header.Width, header.Height, d.maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot identify image file: %w", core.ErrDecode, err)
	}

	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: %s image has no pixels", core.ErrDecode, format)
	}

	return core.NewImageBuffer(img), nil
}

// decodeBase64 accepts padded standard encoding and falls back to the
// unpadded and URL-safe alphabets some clients emit.
func decodeBase64(body string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	for _, encoding := range encodings {
		data, err := encoding.DecodeString(body)
		if err == nil {
			return data, nil
		}
	}

	return nil, ErrInvalidBase64
}
