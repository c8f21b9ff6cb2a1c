// Package outbox implements the transactional outbox: events are inserted in the
// same SQL transaction as the state change and relayed to Kafka afterwards.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"identrisk/internal/events"
	txcontext "identrisk/pkg/platform/tx"
)

// Store implements events.Publisher on top of the outbox table.
type Store struct {
	db     *sql.DB
	routes events.Routes
}

func New(db *sql.DB, routes events.Routes) *Store {
	return &Store{db: db, routes: routes}
}

// Publish writes the event to the outbox. Inside a transaction it commits or
// rolls back together with the caller's state change.
func (s *Store) Publish(ctx context.Context, event events.Event) error {
	payload, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, topic, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.New(),
		event.AggregateType,
		event.AggregateID,
		string(event.Type),
		s.routes.Topic(event.Type),
		string(payload),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}
