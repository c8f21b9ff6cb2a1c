package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"identrisk/internal/events"
	"identrisk/internal/fraud/metrics"
	"identrisk/internal/fraud/models"
	"identrisk/internal/platform/kafka/consumer"
)

type transactionPayload struct {
	TransactionID string           `json:"transactionId"`
	UserID        string           `json:"userId"`
	Amount        decimal.Decimal  `json:"amount"`
	Type          string           `json:"type"`
	RecipientID   string           `json:"recipientId"`
	OccurredAt    *time.Time       `json:"occurredAt"`
	Metadata      *models.Metadata `json:"metadata"`
}

type userRegisteredPayload struct {
	UserID       string     `json:"userId"`
	RegisteredAt *time.Time `json:"registeredAt"`
}

// Updater applies transaction service events to a Store.
type Updater struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ consumer.Handler = (*Updater)(nil)

func NewUpdater(store Store, logger *slog.Logger, m *metrics.Metrics) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{store: store, logger: logger, metrics: m}
}

// Handle decodes one envelope. Event types it does not know are skipped;
// malformed payloads are returned as errors so the consumer logs them.
func (u *Updater) Handle(ctx context.Context, msg *consumer.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return fmt.Errorf("decode envelope at offset %d: %w", msg.Offset, err)
	}

	var err error
	switch env.Type {
	case events.TypeTransactionCreated, events.TypeTransactionCompleted:
		err = u.recordTransaction(ctx, env)
	case events.TypeUserRegistered:
		err = u.registerUser(ctx, env)
	default:
		u.logger.DebugContext(ctx, "ignoring event", "event_type", env.Type, "event_id", env.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply %s %s: %w", env.Type, env.ID, err)
	}
	u.metrics.IncrementHistoryUpdate(string(env.Type))
	return nil
}

func (u *Updater) recordTransaction(ctx context.Context, env events.Envelope) error {
	var p transactionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return err
	}
	if p.TransactionID == "" || p.UserID == "" {
		return fmt.Errorf("transactionId and userId are required")
	}
	typ, err := models.ParseTransactionType(p.Type)
	if err != nil {
		return err
	}
	occurred := env.OccurredAt
	if p.OccurredAt != nil {
		occurred = *p.OccurredAt
	}
	txn := models.PastTransaction{
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		Type:          typ,
		RecipientID:   p.RecipientID,
		OccurredAt:    occurred.UTC(),
	}
	if err := u.store.RecordTransaction(ctx, p.UserID, txn, p.Metadata); err != nil {
		return err
	}
	u.logger.InfoContext(ctx, "transaction recorded in history",
		"user_id", p.UserID,
		"transaction_id", p.TransactionID,
		"event_type", env.Type,
	)
	return nil
}

func (u *Updater) registerUser(ctx context.Context, env events.Envelope) error {
	var p userRegisteredPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return err
	}
	if p.UserID == "" {
		return fmt.Errorf("userId is required")
	}
	at := env.OccurredAt
	if p.RegisteredAt != nil {
		at = *p.RegisteredAt
	}
	return u.store.RegisterUser(ctx, p.UserID, at)
}
