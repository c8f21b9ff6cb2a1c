// Package extractor turns a KTP image into structured identity fields.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"identrisk/internal/verification/imaging"
	"identrisk/internal/verification/models"
)

// ErrEngine is returned when the text recognizer fails.
var ErrEngine = errors.New("text recognition engine failure")

// Line is one recognised text line with its confidence in [0,1].
type Line struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// TextRecognizer is the OCR engine port.
type TextRecognizer interface {
	Recognize(ctx context.Context, image []byte) ([]Line, error)
}

// Extractor validates the raster, runs OCR and parses KTP labels.
type Extractor struct {
	recognizer TextRecognizer
	defaults   DefaultPolicy
	logger     *slog.Logger
}

// Option configures the Extractor.
type Option func(*Extractor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// WithDefaultPolicy replaces the KTP default policy.
func WithDefaultPolicy(p DefaultPolicy) Option {
	return func(e *Extractor) { e.defaults = p }
}

func New(recognizer TextRecognizer, opts ...Option) *Extractor {
	e := &Extractor{
		recognizer: recognizer,
		defaults:   KTPDefaults(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the document. Errors wrap imaging.ErrDecode or ErrEngine.
func (e *Extractor) Extract(ctx context.Context, image []byte) (*models.DocumentExtraction, error) {
	if _, err := imaging.Decode(image); err != nil {
		return nil, err
	}
	lines, err := e.recognizer.Recognize(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngine, err)
	}

	fields := ParseKTP(lines)
	if applied := e.defaults.Apply(fields); len(applied) > 0 {
		e.logger.InfoContext(ctx, "document defaults applied",
			"fields", applied,
		)
	}
	return &models.DocumentExtraction{
		Fields:     fields,
		Confidence: Confidence(fields),
	}, nil
}

// Confidence is the mean confidence over the scored fields. Absent and
// defaulted fields count as zero.
func Confidence(fields map[models.FieldName]models.ExtractedField) float64 {
	var sum float64
	for _, name := range models.ScoredFields {
		if f, ok := fields[name]; ok && f.Source == models.SourceRecognized {
			sum += f.Confidence
		}
	}
	return sum / float64(len(models.ScoredFields))
}
