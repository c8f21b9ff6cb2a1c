package handler

import (
	"strings"

	"github.com/shopspring/decimal"

	"identrisk/internal/fraud/models"
	dErrors "identrisk/pkg/domain-errors"
)

type MetadataRequest struct {
	IPAddress string `json:"ipAddress" validate:"omitempty,ip"`
	UserAgent string `json:"userAgent" validate:"omitempty,max=512"`
	DeviceID  string `json:"deviceId" validate:"omitempty,max=128"`
}

// ScoreRequest is the body of POST /fraud/score.
type ScoreRequest struct {
	TransactionID string           `json:"transactionId" validate:"required,max=128"`
	UserID        string           `json:"userId" validate:"required,max=128"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency" validate:"required,iso4217"`
	Type          string           `json:"type" validate:"required,oneof=transfer withdrawal payment topup"`
	RecipientID   string           `json:"recipientId" validate:"omitempty,max=128"`
	Metadata      *MetadataRequest `json:"metadata"`
}

func (r *ScoreRequest) Validate() error {
	r.TransactionID = strings.TrimSpace(r.TransactionID)
	r.UserID = strings.TrimSpace(r.UserID)
	r.RecipientID = strings.TrimSpace(r.RecipientID)
	if !r.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return nil
}

// Transaction converts the request into the scored model.
func (r *ScoreRequest) Transaction() *models.Transaction {
	txn := &models.Transaction{
		ID:          r.TransactionID,
		UserID:      r.UserID,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Type:        models.TransactionType(r.Type),
		RecipientID: r.RecipientID,
	}
	if r.Metadata != nil {
		txn.Metadata = &models.Metadata{
			IPAddress: r.Metadata.IPAddress,
			UserAgent: r.Metadata.UserAgent,
			DeviceID:  r.Metadata.DeviceID,
		}
	}
	return txn
}

// BatchScoreRequest is the body of POST /fraud/score/batch.
type BatchScoreRequest struct {
	Transactions []*ScoreRequest `json:"transactions" validate:"required,min=1,max=1000,dive,required"`
}

// Validate normalises each item. Item-level problems are reported per index by
// the batch scorer rather than failing the whole request.
func (r *BatchScoreRequest) Validate() error {
	for _, t := range r.Transactions {
		t.TransactionID = strings.TrimSpace(t.TransactionID)
		t.UserID = strings.TrimSpace(t.UserID)
		t.RecipientID = strings.TrimSpace(t.RecipientID)
	}
	return nil
}

func (r *BatchScoreRequest) Items() []*models.Transaction {
	out := make([]*models.Transaction, len(r.Transactions))
	for i, t := range r.Transactions {
		out[i] = t.Transaction()
	}
	return out
}
