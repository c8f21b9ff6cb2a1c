package handler

import (
	"encoding/base64"
	"strings"

	dErrors "identrisk/pkg/domain-errors"
)

// StartRequest is the body of POST /verifications.
type StartRequest struct {
	UserID           string `json:"userId" validate:"required,max=128"`
	VerificationType string `json:"verificationType" validate:"required,max=32"`
}

func (r *StartRequest) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.VerificationType = strings.TrimSpace(r.VerificationType)
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "userId is required")
	}
	return nil
}

// ImageRequest is the body of the document and selfie submissions.
type ImageRequest struct {
	ImageBase64 string `json:"imageBase64" validate:"required"`

	decoded []byte
}

// Validate decodes the image. A data-URL prefix is accepted and dropped.
func (r *ImageRequest) Validate() error {
	raw := strings.TrimSpace(r.ImageBase64)
	if i := strings.Index(raw, ";base64,"); strings.HasPrefix(raw, "data:") && i >= 0 {
		raw = raw[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "imageBase64 is not valid base64")
	}
	if len(data) == 0 {
		return dErrors.New(dErrors.CodeValidation, "imageBase64 is empty")
	}
	r.decoded = data
	return nil
}

// Image returns the decoded bytes.
func (r *ImageRequest) Image() []byte {
	return r.decoded
}
