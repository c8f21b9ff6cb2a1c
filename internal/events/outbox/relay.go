package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"identrisk/internal/events/kafka"
)

// Entry is one unprocessed outbox row.
type Entry struct {
	ID          string
	AggregateID string
	EventType   string
	Topic       string
	Payload     []byte
	CreatedAt   time.Time
}

// Relay drains the outbox into Kafka. Rows are locked with SKIP LOCKED so several
// relays can run side by side; a row is marked processed only after the broker acks.
type Relay struct {
	db        *sql.DB
	producer  kafka.Producer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewRelay(db *sql.DB, producer kafka.Producer, logger *slog.Logger, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{db: db, producer: producer, logger: logger, interval: interval, batchSize: 100}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := r.RelayOnce(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.DebugContext(ctx, "outbox relayed", "count", n)
			}
		}
	}
}

// RelayOnce forwards one batch and returns how many rows were marked processed.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin relay tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, topic, payload, created_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select outbox: %w", err)
	}
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Topic, &e.Payload, &e.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	records := make([]*kgo.Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, &kgo.Record{
			Topic:     e.Topic,
			Key:       []byte(e.AggregateID),
			Value:     e.Payload,
			Headers:   []kgo.RecordHeader{{Key: "event-type", Value: []byte(e.EventType)}},
			Timestamp: e.CreatedAt,
		})
	}
	if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return 0, fmt.Errorf("produce outbox batch: %w", err)
	}

	now := time.Now().UTC()
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `UPDATE outbox SET processed_at = $1 WHERE id = $2`, now, e.ID); err != nil {
			return 0, fmt.Errorf("mark outbox processed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit relay tx: %w", err)
	}
	return len(entries), nil
}
