// Package models holds the verification record and the results each pipeline
// stage attaches to it.
package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "identrisk/pkg/domain-errors"
)

// VerificationID identifies one verification attempt.
type VerificationID uuid.UUID

func NewVerificationID() VerificationID { return VerificationID(uuid.New()) }

func (id VerificationID) String() string { return uuid.UUID(id).String() }

func (id VerificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// ParseVerificationID parses a path or payload id.
func ParseVerificationID(s string) (VerificationID, error) {
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return VerificationID{}, dErrors.New(dErrors.CodeValidation, "invalid verification id")
	}
	return VerificationID(u), nil
}

// Type is the identity document kind.
type Type string

const TypeKTP Type = "ktp"

// ParseType accepts the supported document kinds, case-insensitively.
func ParseType(s string) (Type, error) {
	switch Type(lowerASCII(s)) {
	case TypeKTP:
		return TypeKTP, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unsupported verification type")
	}
}

// RejectionKind classifies why a verification ended REJECTED.
type RejectionKind string

const (
	RejectionLowConfidence        RejectionKind = "LOW_CONFIDENCE"
	RejectionLivenessFailed       RejectionKind = "LIVENESS_FAILED"
	RejectionDocumentImageMissing RejectionKind = "DOCUMENT_IMAGE_MISSING"
	RejectionFaceMismatch         RejectionKind = "FACE_MISMATCH"
	RejectionRegistryInvalid      RejectionKind = "REGISTRY_INVALID"
	// RejectionSystemError marks a FAILED record.
	RejectionSystemError RejectionKind = "SYSTEM_ERROR"
)

const (
	ReasonLowQuality      = "document quality too low"
	ReasonLivenessFailed  = "liveness check failed"
	ReasonDocumentMissing = "document image missing"
	ReasonFaceMismatch    = "face matching failed"
	ReasonRegistryInvalid = "registry verification failed"
	ReasonSystemError     = "internal processing error"
)

// Verification is the aggregate driven through the pipeline. Stage results are
// nil until their stage has run.
type Verification struct {
	ID              VerificationID
	UserID          string
	Type            Type
	Status          Status
	Document        *DocumentExtraction
	Liveness        *LivenessResult
	FaceMatch       *FaceMatchResult
	Registry        *RegistryResult
	RejectionReason string
	RejectionKind   RejectionKind
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// NewVerification creates a PENDING record.
func NewVerification(userID string, typ Type, now time.Time) (*Verification, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if typ != TypeKTP {
		return nil, dErrors.New(dErrors.CodeValidation, "unsupported verification type")
	}
	return &Verification{
		ID:        NewVerificationID(),
		UserID:    userID,
		Type:      typ,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (v *Verification) Clone() *Verification {
	if v == nil {
		return nil
	}
	c := *v
	if v.Document != nil {
		d := *v.Document
		d.Fields = make(map[FieldName]ExtractedField, len(v.Document.Fields))
		for k, f := range v.Document.Fields {
			d.Fields[k] = f
		}
		c.Document = &d
	}
	if v.Liveness != nil {
		l := *v.Liveness
		c.Liveness = &l
	}
	if v.FaceMatch != nil {
		f := *v.FaceMatch
		c.FaceMatch = &f
	}
	if v.Registry != nil {
		r := *v.Registry
		c.Registry = &r
	}
	if v.CompletedAt != nil {
		t := *v.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
