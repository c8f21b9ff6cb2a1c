// Package imaging holds the raster primitives shared by the extractor, the
// liveness detector and the face matcher.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ErrDecode is returned for bytes that are not a supported, non-empty image.
var ErrDecode = errors.New("image could not be decoded")

// maxPixels rejects decompression bombs before allocating a raster.
const maxPixels = 40_000_000

// Decode parses JPEG, PNG or WebP bytes.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: unsupported dimensions %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty raster", ErrDecode)
	}
	return img, nil
}

// DecodeGray decodes and converts to 8-bit luminance with a zero origin.
func DecodeGray(data []byte) (*image.Gray, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return ToGray(img), nil
}

// ToGray converts any image to *image.Gray anchored at (0,0).
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}
