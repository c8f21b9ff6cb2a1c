package models

import (
	"fmt"
	"time"

	dErrors "identrisk/pkg/domain-errors"
)

// Status is the verification lifecycle position.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusVerified   Status = "VERIFIED"
	StatusRejected   Status = "REJECTED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusVerified || s == StatusRejected || s == StatusFailed
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusRejected, StatusFailed},
	StatusProcessing: {StatusVerified, StatusRejected, StatusFailed},
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanSubmitDocument checks the document stage guard.
func (v *Verification) CanSubmitDocument() error {
	if v.Status != StatusPending {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("document can only be submitted while PENDING, current status %s", v.Status))
	}
	return nil
}

// CanSubmitSelfie checks the selfie stage guard.
func (v *Verification) CanSubmitSelfie() error {
	if v.Status != StatusProcessing {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("selfie can only be submitted while PROCESSING, current status %s", v.Status))
	}
	if v.Document == nil {
		return dErrors.New(dErrors.CodeValidation, "document extraction is missing")
	}
	return nil
}

// ApplyDocumentAccepted stores the extraction and moves to PROCESSING.
func (v *Verification) ApplyDocumentAccepted(doc *DocumentExtraction, now time.Time) {
	v.Document = doc
	v.transition(StatusProcessing, now)
}

// ApplySelfieResults attaches the selfie-stage results that were produced.
func (v *Verification) ApplySelfieResults(l *LivenessResult, fm *FaceMatchResult, reg *RegistryResult) {
	if l != nil {
		v.Liveness = l
	}
	if fm != nil {
		v.FaceMatch = fm
	}
	if reg != nil {
		v.Registry = reg
	}
}

// ApplyVerified completes the record.
func (v *Verification) ApplyVerified(now time.Time) {
	v.transition(StatusVerified, now)
	v.CompletedAt = &now
}

// ApplyRejected ends the record with a business outcome.
func (v *Verification) ApplyRejected(kind RejectionKind, reason string, now time.Time) {
	v.RejectionKind = kind
	v.RejectionReason = reason
	v.transition(StatusRejected, now)
	v.CompletedAt = &now
}

// ApplyFailed ends the record after a system fault.
func (v *Verification) ApplyFailed(now time.Time) {
	v.RejectionKind = RejectionSystemError
	v.RejectionReason = ReasonSystemError
	v.transition(StatusFailed, now)
	v.CompletedAt = &now
}

// transition panics on an illegal edge: callers check the stage guard first,
// so reaching here with a bad edge is a programming error.
func (v *Verification) transition(next Status, now time.Time) {
	if !v.Status.CanTransitionTo(next) {
		panic(fmt.Sprintf("illegal verification transition %s -> %s", v.Status, next))
	}
	v.Status = next
	v.UpdatedAt = now
}
