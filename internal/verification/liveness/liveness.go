// Package liveness scores whether a selfie shows a live, well-captured face.
//
// The scores are heuristic image statistics over the largest detected face, not a
// certified presentation-attack detector.
package liveness

import (
	"context"
	"image"

	"identrisk/internal/verification/imaging"
	"identrisk/internal/verification/models"
)

// DefaultThreshold is the liveness score at or above which a selfie is live.
const DefaultThreshold = 0.5

// Normalisers map raw statistics onto [0,1].
const (
	sharpnessScale = 1000.0
	blurScale      = 50.0
	bandVarScale   = 2000.0
	textureScale   = 40.0
)

// Detector computes liveness and capture quality.
type Detector struct {
	faces     imaging.FaceDetector
	threshold float64
}

// Option configures the Detector.
type Option func(*Detector)

func WithThreshold(t float64) Option {
	return func(d *Detector) {
		if t > 0 {
			d.threshold = t
		}
	}
}

func New(faces imaging.FaceDetector, opts ...Option) *Detector {
	d := &Detector{faces: faces, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Check scores a selfie. No detected face is a result (not live, confidence 0);
// undecodable bytes are an error wrapping imaging.ErrDecode.
func (d *Detector) Check(ctx context.Context, selfie []byte) (models.LivenessResult, error) {
	g, err := imaging.DecodeGray(selfie)
	if err != nil {
		return models.LivenessResult{}, err
	}
	det, err := imaging.DetectPrimary(ctx, d.faces, g)
	if err != nil {
		return models.LivenessResult{}, err
	}
	if !det.Found {
		return models.LivenessResult{IsLive: false, FaceDetected: false, Confidence: 0}, nil
	}
	if err := ctx.Err(); err != nil {
		return models.LivenessResult{}, err
	}

	face := imaging.Crop(g, det.Face.Rect)
	score := Score(face)
	return models.LivenessResult{
		IsLive:       score >= d.threshold,
		FaceDetected: true,
		Confidence:   score,
		QualityScore: Quality(face),
	}, nil
}

// Quality = 0.4 sharpness + 0.3 brightness centring + 0.3 (1 - blur).
func Quality(face *image.Gray) float64 {
	sharpness := imaging.Clamp01(imaging.LaplacianVariance(face) / sharpnessScale)
	brightness := imaging.Clamp01(1 - abs(imaging.Mean(face)-128)/128)
	blur := 1 - imaging.Clamp01(imaging.GradientMean(face)/blurScale)
	return imaging.Clamp01(0.4*sharpness + 0.3*brightness + 0.3*(1-blur))
}

// Score = 0.3 eye-region variance + 0.2 mouth-region variance + 0.25 skin
// texture gradient + 0.25 head pose. Head pose is approximated by left/right
// symmetry until a landmark model is available.
func Score(face *image.Gray) float64 {
	eyes := imaging.Clamp01(imaging.Variance(imaging.Band(face, 0.20, 0.45, 0.10, 0.90)) / bandVarScale)
	mouth := imaging.Clamp01(imaging.Variance(imaging.Band(face, 0.65, 0.90, 0.25, 0.75)) / bandVarScale)
	texture := imaging.Clamp01(imaging.SobelMean(face) / textureScale)
	pose := imaging.Clamp01(imaging.MirrorSimilarity(face))
	return imaging.Clamp01(0.3*eyes + 0.2*mouth + 0.25*texture + 0.25*pose)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
