// Package events defines the domain events emitted on committed state changes and
// the Publisher port their sinks implement.
package events

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Type names an event on the bus.
type Type string

const (
	TypeDocumentAccepted      Type = "document.accepted"
	TypeVerificationCompleted Type = "verification.completed"
	TypeVerificationFailed    Type = "verification.failed"
	TypeFraudScored           Type = "fraud.scored"
)

// Consumed from the transaction service.
const (
	TypeTransactionCreated   Type = "transaction.created"
	TypeTransactionCompleted Type = "transaction.completed"
	TypeUserRegistered       Type = "user.registered"
)

const (
	AggregateVerification = "verification"
	AggregateFraudScore   = "fraud_score"
)

// Event is one committed fact. Payload is marshaled to JSON as-is.
type Event struct {
	ID            string
	Type          Type
	AggregateType string
	AggregateID   string
	OccurredAt    time.Time
	RequestID     string
	Payload       any
}

// New stamps an event with a fresh ULID so ids sort by creation time.
func New(typ Type, aggregateType, aggregateID string, occurredAt time.Time, payload any) Event {
	return Event{
		ID:            ulid.MustNew(ulid.Timestamp(occurredAt), rand.Reader).String(),
		Type:          typ,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       payload,
	}
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Envelope is the JSON wire form shared by every sink.
type Envelope struct {
	ID            string          `json:"id"`
	Type          Type            `json:"type"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	OccurredAt    time.Time       `json:"occurredAt"`
	RequestID     string          `json:"requestId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Marshal renders the event envelope.
func (e Event) Marshal() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:            e.ID,
		Type:          e.Type,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		OccurredAt:    e.OccurredAt,
		RequestID:     e.RequestID,
		Payload:       payload,
	})
}

// Routes maps event types to topics.
type Routes struct {
	Verification string
	Fraud        string
}

// Topic returns the topic for an event type.
func (r Routes) Topic(t Type) string {
	if t == TypeFraudScored {
		return r.Fraud
	}
	return r.Verification
}
