package service

import (
	"context"
	"fmt"

	"identrisk/internal/events"
	"identrisk/internal/verification/images"
	"identrisk/internal/verification/models"
	dErrors "identrisk/pkg/domain-errors"
	"identrisk/pkg/requestcontext"
)

func documentGuard(v *models.Verification) error { return v.CanSubmitDocument() }

// SubmitDocument extracts the document fields. Low confidence rejects the
// verification and the call fails with low_confidence; otherwise the extraction
// and image are stored and the record moves to PROCESSING.
func (s *Service) SubmitDocument(ctx context.Context, id models.VerificationID, image []byte) (*models.Verification, error) {
	if len(image) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "document image is required")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := current.CanSubmitDocument(); err != nil {
		return nil, err
	}

	var doc *models.DocumentExtraction
	err = s.analyze(ctx, id, "extract", func(ctx context.Context) error {
		var err error
		doc, err = s.extractor.Extract(ctx, image)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, id, documentGuard, err)
	}

	now := requestcontext.Now(ctx)
	if doc.Confidence < s.minConfidence {
		v, err := s.commit(ctx, id, documentGuard, now, func(_ context.Context, v *models.Verification) (events.Type, error) {
			v.Document = doc
			v.ApplyRejected(models.RejectionLowConfidence, models.ReasonLowQuality, now)
			return events.TypeVerificationFailed, nil
		})
		if err != nil {
			return nil, wrapStoreErr(err)
		}
		s.recordOutcome(v)
		s.logger.InfoContext(ctx, "document rejected",
			"verification_id", id.String(),
			"confidence", doc.Confidence,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.New(dErrors.CodeLowConfidence,
			fmt.Sprintf("%s: confidence %.2f below %.2f", models.ReasonLowQuality, doc.Confidence, s.minConfidence))
	}

	// The image is written while the record is locked so a losing concurrent
	// submission cannot overwrite the winner's image.
	var storeErr error
	v, err := s.commit(ctx, id, documentGuard, now, func(txCtx context.Context, v *models.Verification) (events.Type, error) {
		key := images.DocumentKey(v.ID)
		if err := s.images.Put(txCtx, key, image); err != nil {
			storeErr = err
			return "", err
		}
		doc.ImageKey = key
		v.ApplyDocumentAccepted(doc, now)
		return events.TypeDocumentAccepted, nil
	})
	if storeErr != nil {
		return nil, s.fail(ctx, id, documentGuard, fmt.Errorf("store document image: %w", storeErr))
	}
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	s.logger.InfoContext(ctx, "document accepted",
		"verification_id", id.String(),
		"confidence", doc.Confidence,
		"request_id", requestcontext.RequestID(ctx),
	)
	return v, nil
}
