package imaging

import (
	"context"
	"image"
)

// Face is one detected face region.
type Face struct {
	Rect  image.Rectangle
	Score float64
}

// Area is the face rectangle area.
func (f Face) Area() int { return f.Rect.Dx() * f.Rect.Dy() }

// FaceDetector locates faces in a grayscale raster.
type FaceDetector interface {
	Detect(ctx context.Context, g *image.Gray) ([]Face, error)
}

// Detection is the tagged outcome of looking for the primary face: Found is
// false when the image contains no face, which is a result and not an error.
type Detection struct {
	Found bool
	Face  Face
}

// LargestFace picks the face with the largest area; ties keep the earlier face.
func LargestFace(faces []Face) Detection {
	var d Detection
	for _, f := range faces {
		if f.Rect.Empty() {
			continue
		}
		if !d.Found || f.Area() > d.Face.Area() {
			d = Detection{Found: true, Face: f}
		}
	}
	return d
}

// DetectPrimary runs the detector and selects the largest face.
func DetectPrimary(ctx context.Context, detector FaceDetector, g *image.Gray) (Detection, error) {
	faces, err := detector.Detect(ctx, g)
	if err != nil {
		return Detection{}, err
	}
	d := LargestFace(faces)
	if d.Found {
		d.Face.Rect = d.Face.Rect.Intersect(g.Bounds())
		d.Found = !d.Face.Rect.Empty()
	}
	return d, nil
}
