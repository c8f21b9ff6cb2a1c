package handler

import (
	"sort"
	"time"

	"identrisk/internal/verification/models"
)

type StartResponse struct {
	VerificationID string `json:"verificationId"`
	Status         string `json:"status"`
}

type ExtractionSummary struct {
	Confidence      float64           `json:"confidence"`
	Fields          map[string]string `json:"fields"`
	DefaultedFields []string          `json:"defaultedFields,omitempty"`
}

type DocumentResponse struct {
	Status            string             `json:"status"`
	ExtractionSummary *ExtractionSummary `json:"extractionSummary,omitempty"`
}

type LivenessSummary struct {
	IsLive       bool    `json:"isLive"`
	FaceDetected bool    `json:"faceDetected"`
	Confidence   float64 `json:"confidence"`
	QualityScore float64 `json:"qualityScore"`
}

type FaceMatchSummary struct {
	Outcome           string  `json:"outcome"`
	IsMatch           bool    `json:"isMatch"`
	Similarity        float64 `json:"similarity"`
	Threshold         float64 `json:"threshold"`
	DocumentFaceFound bool    `json:"documentFaceFound"`
	SelfieFaceFound   bool    `json:"selfieFaceFound"`
}

type RegistrySummary struct {
	IDNumber   string   `json:"idNumber"`
	IsValid    bool     `json:"isValid"`
	Status     string   `json:"status"`
	Name       string   `json:"name,omitempty"`
	BirthDate  string   `json:"birthDate,omitempty"`
	Gender     string   `json:"gender,omitempty"`
	MatchScore *float64 `json:"matchScore,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

type SelfieResponse struct {
	Status           string            `json:"status"`
	LivenessSummary  *LivenessSummary  `json:"livenessSummary,omitempty"`
	FaceMatchSummary *FaceMatchSummary `json:"faceMatchSummary,omitempty"`
	RegistrySummary  *RegistrySummary  `json:"registrySummary,omitempty"`
	RejectionReason  string            `json:"rejectionReason,omitempty"`
}

// VerificationResponse is the full record view.
type VerificationResponse struct {
	VerificationID   string             `json:"verificationId"`
	UserID           string             `json:"userId"`
	VerificationType string             `json:"verificationType"`
	Status           string             `json:"status"`
	Document         *ExtractionSummary `json:"document,omitempty"`
	Liveness         *LivenessSummary   `json:"liveness,omitempty"`
	FaceMatch        *FaceMatchSummary  `json:"faceMatch,omitempty"`
	Registry         *RegistrySummary   `json:"registry,omitempty"`
	RejectionReason  string             `json:"rejectionReason,omitempty"`
	RejectionKind    string             `json:"rejectionKind,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
	CompletedAt      *time.Time         `json:"completedAt,omitempty"`
}

func toExtractionSummary(d *models.DocumentExtraction) *ExtractionSummary {
	if d == nil {
		return nil
	}
	out := &ExtractionSummary{Confidence: d.Confidence, Fields: make(map[string]string, len(d.Fields))}
	for name, f := range d.Fields {
		out.Fields[string(name)] = f.Value
		if f.Source == models.SourceDefaulted {
			out.DefaultedFields = append(out.DefaultedFields, string(name))
		}
	}
	sort.Strings(out.DefaultedFields)
	return out
}

func toLivenessSummary(l *models.LivenessResult) *LivenessSummary {
	if l == nil {
		return nil
	}
	return &LivenessSummary{IsLive: l.IsLive, FaceDetected: l.FaceDetected, Confidence: l.Confidence, QualityScore: l.QualityScore}
}

func toFaceMatchSummary(f *models.FaceMatchResult) *FaceMatchSummary {
	if f == nil {
		return nil
	}
	return &FaceMatchSummary{
		Outcome:           string(f.Outcome),
		IsMatch:           f.IsMatch,
		Similarity:        f.Similarity,
		Threshold:         f.Threshold,
		DocumentFaceFound: f.DocumentFaceFound,
		SelfieFaceFound:   f.SelfieFaceFound,
	}
}

func toRegistrySummary(r *models.RegistryResult) *RegistrySummary {
	if r == nil {
		return nil
	}
	return &RegistrySummary{
		IDNumber:   r.IDNumber,
		IsValid:    r.IsValid,
		Status:     string(r.Status),
		Name:       r.Name,
		BirthDate:  r.BirthDate,
		Gender:     r.Gender,
		MatchScore: r.MatchScore,
		Notes:      r.Notes,
	}
}

func toDocumentResponse(v *models.Verification) *DocumentResponse {
	return &DocumentResponse{Status: string(v.Status), ExtractionSummary: toExtractionSummary(v.Document)}
}

func toSelfieResponse(v *models.Verification) *SelfieResponse {
	return &SelfieResponse{
		Status:           string(v.Status),
		LivenessSummary:  toLivenessSummary(v.Liveness),
		FaceMatchSummary: toFaceMatchSummary(v.FaceMatch),
		RegistrySummary:  toRegistrySummary(v.Registry),
		RejectionReason:  v.RejectionReason,
	}
}

func toVerificationResponse(v *models.Verification) *VerificationResponse {
	return &VerificationResponse{
		VerificationID:   v.ID.String(),
		UserID:           v.UserID,
		VerificationType: string(v.Type),
		Status:           string(v.Status),
		Document:         toExtractionSummary(v.Document),
		Liveness:         toLivenessSummary(v.Liveness),
		FaceMatch:        toFaceMatchSummary(v.FaceMatch),
		Registry:         toRegistrySummary(v.Registry),
		RejectionReason:  v.RejectionReason,
		RejectionKind:    string(v.RejectionKind),
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
		CompletedAt:      v.CompletedAt,
	}
}
