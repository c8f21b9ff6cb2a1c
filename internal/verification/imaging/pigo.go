package imaging

import (
	"context"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// PigoDetector runs a pigo pixel-intensity cascade. The cascade file is loaded
// once; the classifier is read-only afterwards and safe for concurrent use.
type PigoDetector struct {
	classifier   *pigo.Pigo
	minSize      int
	maxSize      int
	minQuality   float32
	iouThreshold float64
}

// NewPigoDetector loads the facefinder cascade from path.
func NewPigoDetector(path string) (*PigoDetector, error) {
	cascade, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read face cascade: %w", err)
	}
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack face cascade: %w", err)
	}
	return &PigoDetector{
		classifier:   classifier,
		minSize:      40,
		maxSize:      2000,
		minQuality:   5.0,
		iouThreshold: 0.2,
	}, nil
}

func (d *PigoDetector) Detect(ctx context.Context, g *image.Gray) ([]Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cols, rows := g.Bounds().Dx(), g.Bounds().Dy()
	params := pigo.CascadeParams{
		MinSize:     d.minSize,
		MaxSize:     min(d.maxSize, max(cols, rows)),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(g),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}
	dets := d.classifier.ClusterDetections(d.classifier.RunCascade(params, 0.0), d.iouThreshold)

	faces := make([]Face, 0, len(dets))
	for _, det := range dets {
		if det.Q < d.minQuality {
			continue
		}
		half := det.Scale / 2
		faces = append(faces, Face{
			Rect:  image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half),
			Score: float64(det.Q),
		})
	}
	return faces, nil
}
