package service

import (
	"context"
	"time"

	"identrisk/internal/events"
	"identrisk/internal/verification/models"
	dErrors "identrisk/pkg/domain-errors"
	"identrisk/pkg/requestcontext"
)

// VerificationEvent is the payload of every verification event. The NIK only
// leaves the service as a keyed hash.
type VerificationEvent struct {
	VerificationID     string  `json:"verificationId"`
	UserID             string  `json:"userId"`
	Status             string  `json:"status"`
	RejectionKind      string  `json:"rejectionKind,omitempty"`
	RejectionReason    string  `json:"rejectionReason,omitempty"`
	DocumentConfidence float64 `json:"documentConfidence,omitempty"`
	NIKHash            string  `json:"nikHash,omitempty"`
	RegistryStatus     string  `json:"registryStatus,omitempty"`
}

func (s *Service) newEvent(ctx context.Context, v *models.Verification, typ events.Type, now time.Time) events.Event {
	payload := VerificationEvent{
		VerificationID:  v.ID.String(),
		UserID:          v.UserID,
		Status:          string(v.Status),
		RejectionKind:   string(v.RejectionKind),
		RejectionReason: v.RejectionReason,
	}
	if v.Document != nil {
		payload.DocumentConfidence = v.Document.Confidence
		if nik := v.Document.NIK(); nik != "" {
			payload.NIKHash = s.hasher.Hash(nik)
		}
	}
	if v.Registry != nil {
		payload.RegistryStatus = string(v.Registry.Status)
	}
	evt := events.New(typ, events.AggregateVerification, v.ID.String(), now, payload)
	evt.RequestID = requestcontext.RequestID(ctx)
	return evt
}

// publish runs inside the store transaction for the outbox, where a failure
// aborts the transition, and after the commit for best-effort sinks.
func (s *Service) publish(ctx context.Context, v *models.Verification, typ events.Type, now time.Time) error {
	if s.publisher == nil {
		return nil
	}
	evt := s.newEvent(ctx, v, typ, now)
	err := s.publisher.Publish(ctx, evt)
	if err == nil {
		return nil
	}
	s.metrics.IncrementPublishFailure(string(typ))
	if s.transactional {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event")
	}
	s.logger.WarnContext(ctx, "event publish failed",
		"event_type", string(typ),
		"verification_id", v.ID.String(),
		"error", err,
	)
	return nil
}
