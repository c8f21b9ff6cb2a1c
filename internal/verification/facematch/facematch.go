// Package facematch compares the face on the identity document with the selfie.
package facematch

import (
	"context"
	"image"
	"math"

	"identrisk/internal/verification/imaging"
	"identrisk/internal/verification/models"
)

// DefaultThreshold is the similarity at or above which two faces match.
const DefaultThreshold = 0.8

// normalizedSize is the side of the square each face is resampled to.
const normalizedSize = 64

// Matcher embeds faces as mean-centred 64x64 luminance vectors and compares them
// by cosine similarity rescaled to [0,1].
type Matcher struct {
	faces     imaging.FaceDetector
	threshold float64
}

// Option configures the Matcher.
type Option func(*Matcher)

func WithThreshold(t float64) Option {
	return func(m *Matcher) {
		if t > 0 {
			m.threshold = t
		}
	}
}

func New(faces imaging.FaceDetector, opts ...Option) *Matcher {
	m := &Matcher{faces: faces, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the configured match threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// DocumentMissing is the result when the stored document image is unavailable.
// The selfie is never compared against itself in that case.
func (m *Matcher) DocumentMissing() models.FaceMatchResult {
	return models.FaceMatchResult{
		Outcome:   models.MatchDocumentMissing,
		Threshold: m.threshold,
	}
}

// Match compares the largest face of each image. A missing face is a result with
// the matching *FaceFound flag cleared.
func (m *Matcher) Match(ctx context.Context, document, selfie []byte) (models.FaceMatchResult, error) {
	docFace, docFound, err := m.embed(ctx, document)
	if err != nil {
		return models.FaceMatchResult{}, err
	}
	selfieFace, selfieFound, err := m.embed(ctx, selfie)
	if err != nil {
		return models.FaceMatchResult{}, err
	}

	res := models.FaceMatchResult{
		Threshold:         m.threshold,
		DocumentFaceFound: docFound,
		SelfieFaceFound:   selfieFound,
	}
	if !docFound || !selfieFound {
		res.Outcome = models.MatchNoFace
		return res, nil
	}

	res.Outcome = models.MatchCompared
	res.Similarity = Similarity(docFace, selfieFace)
	res.IsMatch = res.Similarity >= m.threshold
	return res, nil
}

func (m *Matcher) embed(ctx context.Context, data []byte) ([]float64, bool, error) {
	g, err := imaging.DecodeGray(data)
	if err != nil {
		return nil, false, err
	}
	det, err := imaging.DetectPrimary(ctx, m.faces, g)
	if err != nil || !det.Found {
		return nil, false, err
	}
	return Embed(imaging.Crop(g, det.Face.Rect)), true, nil
}

// Embed normalises a face crop into a mean-centred vector.
func Embed(face *image.Gray) []float64 {
	norm := imaging.Resize(face, normalizedSize, normalizedSize)
	vec := make([]float64, len(norm.Pix))
	var sum float64
	for i, p := range norm.Pix {
		vec[i] = float64(p)
		sum += vec[i]
	}
	mean := sum / float64(len(vec))
	for i := range vec {
		vec[i] -= mean
	}
	return vec
}

// Similarity is (cos + 1) / 2. A zero vector has no direction and scores 0.5.
func Similarity(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0.5
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return imaging.Clamp01((cos + 1) / 2)
}
