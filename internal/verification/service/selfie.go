package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"identrisk/internal/events"
	"identrisk/internal/verification/models"
	dErrors "identrisk/pkg/domain-errors"
	"identrisk/pkg/platform/sentinel"
	"identrisk/pkg/requestcontext"
)

func selfieGuard(v *models.Verification) error { return v.CanSubmitSelfie() }

// selfieOutcome collects what the selfie stage produced before it is committed.
type selfieOutcome struct {
	liveness  *models.LivenessResult
	faceMatch *models.FaceMatchResult
	registry  *models.RegistryResult
	kind      models.RejectionKind
	reason    string
}

func (o *selfieOutcome) reject(kind models.RejectionKind, reason string) *selfieOutcome {
	o.kind = kind
	o.reason = reason
	return o
}

// SubmitSelfie runs liveness, face match and the registry check in that order.
// The first negative result rejects the verification; a rejection is returned as
// a record, not an error.
func (s *Service) SubmitSelfie(ctx context.Context, id models.VerificationID, selfie []byte) (*models.Verification, error) {
	if len(selfie) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "selfie image is required")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := current.CanSubmitSelfie(); err != nil {
		return nil, err
	}

	outcome, err := s.evaluateSelfie(ctx, current, selfie)
	if err != nil {
		return nil, s.fail(ctx, id, selfieGuard, err)
	}

	now := requestcontext.Now(ctx)
	v, err := s.commit(ctx, id, selfieGuard, now, func(_ context.Context, v *models.Verification) (events.Type, error) {
		v.ApplySelfieResults(outcome.liveness, outcome.faceMatch, outcome.registry)
		if outcome.kind != "" {
			v.ApplyRejected(outcome.kind, outcome.reason, now)
			return events.TypeVerificationFailed, nil
		}
		v.ApplyVerified(now)
		return events.TypeVerificationCompleted, nil
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	s.recordOutcome(v)

	s.logger.InfoContext(ctx, "verification completed",
		"verification_id", id.String(),
		"status", string(v.Status),
		"rejection_kind", string(v.RejectionKind),
		"request_id", requestcontext.RequestID(ctx),
	)
	return v, nil
}

func (s *Service) evaluateSelfie(ctx context.Context, current *models.Verification, selfie []byte) (*selfieOutcome, error) {
	out := &selfieOutcome{}

	var live models.LivenessResult
	err := s.analyze(ctx, current.ID, "liveness", func(ctx context.Context) error {
		var err error
		live, err = s.liveness.Check(ctx, selfie)
		return err
	})
	if err != nil {
		return nil, err
	}
	out.liveness = &live
	if !live.IsLive {
		return out.reject(models.RejectionLivenessFailed, models.ReasonLivenessFailed), nil
	}

	document, err := s.documentImage(ctx, current)
	if err != nil {
		return nil, err
	}
	if document == nil {
		missing := s.matcher.DocumentMissing()
		out.faceMatch = &missing
		return out.reject(models.RejectionDocumentImageMissing, models.ReasonDocumentMissing), nil
	}

	var match models.FaceMatchResult
	err = s.analyze(ctx, current.ID, "face_match", func(ctx context.Context) error {
		var err error
		match, err = s.matcher.Match(ctx, document, selfie)
		return err
	})
	if err != nil {
		return nil, err
	}
	out.faceMatch = &match
	if !match.IsMatch {
		return out.reject(models.RejectionFaceMismatch, models.ReasonFaceMismatch), nil
	}

	reg := s.checkRegistry(ctx, current)
	out.registry = &reg
	if !reg.IsValid {
		return out.reject(models.RejectionRegistryInvalid, models.ReasonRegistryInvalid), nil
	}
	return out, nil
}

// documentImage returns nil when the stored document image is gone.
func (s *Service) documentImage(ctx context.Context, v *models.Verification) ([]byte, error) {
	if v.Document.ImageKey == "" {
		return nil, nil
	}
	data, err := s.images.Get(ctx, v.Document.ImageKey)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "document image missing",
			"verification_id", v.ID.String(),
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document image: %w", err)
	}
	return data, nil
}

func (s *Service) checkRegistry(ctx context.Context, v *models.Verification) models.RegistryResult {
	ctx, span := s.tracer.Start(ctx, "verification.registry",
		trace.WithAttributes(attribute.String("verification.id", v.ID.String())))
	defer span.End()

	start := time.Now()
	res := s.registry.Verify(ctx, v.Document.NIK())
	s.metrics.ObserveStage("registry", time.Since(start))
	span.SetAttributes(attribute.String("registry.status", string(res.Status)))
	return res
}
