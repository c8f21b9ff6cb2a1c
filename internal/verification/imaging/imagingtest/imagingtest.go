// Package imagingtest builds synthetic rasters and a scripted face detector for
// tests of the analysis stages.
package imagingtest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync"

	"identrisk/internal/verification/imaging"
)

// Flat returns a w x h image of one luminance value.
func Flat(w, h int, y uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = y
	}
	return g
}

// Textured returns a seeded noisy image around a mid-grey base. Equal seeds give
// identical rasters.
func Textured(w, h int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base := 80 + (x*97+y*31)%96
			g.SetGray(x, y, color.Gray{Y: uint8(base + rng.Intn(64))})
		}
	}
	return g
}

// PNG encodes img, panicking on failure.
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Detector returns scripted faces keyed by image width, so a test can give the
// document and the selfie different answers. Unknown widths return no faces.
type Detector struct {
	mu    sync.Mutex
	faces map[int][]imaging.Face
	Err   error
	Calls int
}

func NewDetector() *Detector {
	return &Detector{faces: make(map[int][]imaging.Face)}
}

// On scripts the faces returned for images of the given width.
func (d *Detector) On(width int, rects ...image.Rectangle) *Detector {
	d.mu.Lock()
	defer d.mu.Unlock()
	faces := make([]imaging.Face, 0, len(rects))
	for _, r := range rects {
		faces = append(faces, imaging.Face{Rect: r, Score: 10})
	}
	d.faces[width] = faces
	return d
}

func (d *Detector) Detect(_ context.Context, g *image.Gray) ([]imaging.Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	if d.Err != nil {
		return nil, d.Err
	}
	return d.faces[g.Bounds().Dx()], nil
}
