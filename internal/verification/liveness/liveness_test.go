package liveness

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identrisk/internal/verification/imaging"
	"identrisk/internal/verification/imaging/imagingtest"
)

func TestCheckNoFace(t *testing.T) {
	det := imagingtest.NewDetector()
	res, err := New(det).Check(context.Background(), imagingtest.PNG(imagingtest.Textured(64, 64, 1)))
	require.NoError(t, err)

	assert.False(t, res.IsLive)
	assert.False(t, res.FaceDetected)
	assert.Zero(t, res.Confidence)
}

func TestCheckFlatFaceIsNotLive(t *testing.T) {
	// A uniform patch has no texture or regional variance; only the symmetry term scores.
	det := imagingtest.NewDetector().On(80, image.Rect(10, 10, 70, 70))
	res, err := New(det).Check(context.Background(), imagingtest.PNG(imagingtest.Flat(80, 80, 128)))
	require.NoError(t, err)

	assert.True(t, res.FaceDetected)
	assert.False(t, res.IsLive)
	assert.InDelta(t, 0.25, res.Confidence, 1e-9)
	assert.InDelta(t, 0.3, res.QualityScore, 1e-9, "only brightness centring contributes")
}

func TestCheckTexturedFaceIsLive(t *testing.T) {
	det := imagingtest.NewDetector().On(96, image.Rect(8, 8, 88, 88))
	res, err := New(det).Check(context.Background(), imagingtest.PNG(imagingtest.Textured(96, 96, 42)))
	require.NoError(t, err)

	assert.True(t, res.FaceDetected)
	assert.True(t, res.IsLive, "confidence %.3f", res.Confidence)
	assert.GreaterOrEqual(t, res.Confidence, DefaultThreshold)
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestCheckThresholdIsConfigurable(t *testing.T) {
	det := imagingtest.NewDetector().On(96, image.Rect(8, 8, 88, 88))
	res, err := New(det, WithThreshold(0.99)).Check(context.Background(), imagingtest.PNG(imagingtest.Textured(96, 96, 42)))
	require.NoError(t, err)
	assert.False(t, res.IsLive)
}

func TestCheckErrors(t *testing.T) {
	t.Run("decode", func(t *testing.T) {
		_, err := New(imagingtest.NewDetector()).Check(context.Background(), []byte{0x01, 0x02})
		assert.ErrorIs(t, err, imaging.ErrDecode)
	})

	t.Run("detector", func(t *testing.T) {
		det := imagingtest.NewDetector()
		det.Err = errors.New("cascade corrupted")
		_, err := New(det).Check(context.Background(), imagingtest.PNG(imagingtest.Flat(10, 10, 1)))
		assert.ErrorContains(t, err, "cascade corrupted")
	})
}
