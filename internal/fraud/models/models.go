// Package models holds transactions, user history and fraud scores.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dErrors "identrisk/pkg/domain-errors"
)

// TransactionType is the payment kind.
type TransactionType string

const (
	TypeTransfer   TransactionType = "transfer"
	TypeWithdrawal TransactionType = "withdrawal"
	TypePayment    TransactionType = "payment"
	TypeTopUp      TransactionType = "topup"
)

func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeTransfer, TypeWithdrawal, TypePayment, TypeTopUp:
		return t, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unsupported transaction type: "+s)
	}
}

// Metadata is the network context of a transaction request.
type Metadata struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	DeviceID  string `json:"deviceId,omitempty"`
}

// Empty reports whether no network signal is present.
func (m *Metadata) Empty() bool {
	return m == nil || (m.IPAddress == "" && m.UserAgent == "")
}

// Transaction is the unit being scored.
type Transaction struct {
	ID          string          `json:"transactionId"`
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Type        TransactionType `json:"type"`
	RecipientID string          `json:"recipientId,omitempty"`
	Metadata    *Metadata       `json:"metadata,omitempty"`
}

// Validate checks the fields the engine relies on.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return dErrors.New(dErrors.CodeValidation, "transactionId is required")
	}
	if strings.TrimSpace(t.UserID) == "" {
		return dErrors.New(dErrors.CodeValidation, "userId is required")
	}
	if !t.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	if _, err := ParseTransactionType(string(t.Type)); err != nil {
		return err
	}
	return nil
}

// PastTransaction is one entry of a user's history.
type PastTransaction struct {
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Type          TransactionType `json:"type"`
	RecipientID   string          `json:"recipientId,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// UserHistory is what the engine knows about the user. A nil history and an
// empty one are scored the same.
type UserHistory struct {
	UserID           string            `json:"userId"`
	AccountCreatedAt *time.Time        `json:"accountCreatedAt,omitempty"`
	LastIPAddress    string            `json:"lastIpAddress,omitempty"`
	LastUserAgent    string            `json:"lastUserAgent,omitempty"`
	Transactions     []PastTransaction `json:"transactions,omitempty"`
}

// HasTransactions reports whether any past transaction is known.
func (h *UserHistory) HasTransactions() bool {
	return h != nil && len(h.Transactions) > 0
}

// Factor names one risk component.
type Factor string

const (
	FactorAmount     Factor = "amount_anomaly"
	FactorVelocity   Factor = "velocity"
	FactorBehavioral Factor = "behavioral_deviation"
	FactorLocation   Factor = "location_anomaly"
	FactorAccountAge Factor = "account_age"
)

// Factors is the fixed evaluation and trigger order.
var Factors = []Factor{FactorAmount, FactorVelocity, FactorBehavioral, FactorLocation, FactorAccountAge}

// RiskLevel is the classification of the aggregated score.
type RiskLevel string

const (
	LevelMinimal  RiskLevel = "MINIMAL"
	LevelLow      RiskLevel = "LOW"
	LevelMedium   RiskLevel = "MEDIUM"
	LevelHigh     RiskLevel = "HIGH"
	LevelCritical RiskLevel = "CRITICAL"
)

// Action is the recommended handling of a transaction.
type Action string

const (
	ActionApprove        Action = "approve"
	ActionMonitor        Action = "monitor"
	ActionReview         Action = "review"
	ActionBlockAndReview Action = "block_and_review"
	ActionBlock          Action = "block"
)

// Decision is the engine output.
type Decision struct {
	RiskScore         float64            `json:"riskScore"`
	RiskLevel         RiskLevel          `json:"riskLevel"`
	RiskFactors       map[Factor]float64 `json:"riskFactors"`
	IsSuspicious      bool               `json:"isSuspicious"`
	RecommendedAction Action             `json:"recommendedAction"`
	IsBlocked         bool               `json:"isBlocked"`
	RequiresReview    bool               `json:"requiresReview"`
	RuleTriggers      []string           `json:"ruleTriggers"`
}

// FraudScore is a stored decision. Records are immutable; re-scoring a
// transaction creates a new one.
type FraudScore struct {
	ID            uuid.UUID `json:"id"`
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	Decision
	ScoredAt time.Time `json:"scoredAt"`
}

// NewFraudScore stamps a decision for a transaction.
func NewFraudScore(txn *Transaction, d Decision, now time.Time) *FraudScore {
	return &FraudScore{
		ID:            uuid.New(),
		TransactionID: txn.ID,
		UserID:        txn.UserID,
		Decision:      d,
		ScoredAt:      now.UTC(),
	}
}
