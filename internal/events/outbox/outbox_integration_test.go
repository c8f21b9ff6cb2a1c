//go:build integration

package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"identrisk/internal/events"
	"identrisk/internal/platform/postgres"
	"identrisk/pkg/testutil/containers"
)

type OutboxSuite struct {
	suite.Suite
	db       *sql.DB
	brokers  []string
	producer *kgo.Client
	store    *Store
	routes   events.Routes
}

func TestOutboxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxSuite))
}

func (s *OutboxSuite) SetupSuite() {
	pg := containers.NewPostgresContainer(s.T())
	rp := containers.NewRedpandaContainer(s.T())
	ctx := context.Background()

	db, err := sql.Open("postgres", pg.DSN)
	s.Require().NoError(err)
	s.Require().NoError(postgres.Migrate(ctx, db))
	s.db = db
	s.brokers = rp.Brokers

	s.producer, err = kgo.NewClient(kgo.SeedBrokers(rp.Brokers...), kgo.AllowAutoTopicCreation())
	s.Require().NoError(err)

	s.routes = events.Routes{Verification: "identity.verification.events", Fraud: "fraud.score.events"}
	s.store = New(db, s.routes)
}

func (s *OutboxSuite) TearDownSuite() {
	s.producer.Close()
	_ = s.db.Close()
}

func (s *OutboxSuite) SetupTest() {
	_, err := s.db.Exec(`TRUNCATE outbox`)
	s.Require().NoError(err)
}

func (s *OutboxSuite) pending() int {
	var n int
	s.Require().NoError(s.db.QueryRow(`SELECT count(*) FROM outbox WHERE processed_at IS NULL`).Scan(&n))
	return n
}

func (s *OutboxSuite) TestRolledBackTransactionLeavesNoEvent() {
	ctx := context.Background()
	evt := events.New(events.TypeVerificationFailed, events.AggregateVerification, "ver-rollback", time.Now(), map[string]string{"status": "FAILED"})

	boom := errors.New("transition aborted")
	err := postgres.RunInTx(ctx, s.db, func(txCtx context.Context, _ *sql.Tx) error {
		s.Require().NoError(s.store.Publish(txCtx, evt))
		return boom
	})
	s.ErrorIs(err, boom)
	s.Zero(s.pending())
}

func (s *OutboxSuite) TestRelayDeliversCommittedEvents() {
	ctx := context.Background()
	evt := events.New(events.TypeDocumentAccepted, events.AggregateVerification, "ver-relay", time.Now(), map[string]string{"status": "PROCESSING"})
	s.Require().NoError(postgres.RunInTx(ctx, s.db, func(txCtx context.Context, _ *sql.Tx) error {
		return s.store.Publish(txCtx, evt)
	}))
	s.Equal(1, s.pending())

	relay := NewRelay(s.db, s.producer, slog.Default(), 10*time.Millisecond)
	n, err := relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Zero(s.pending())

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(s.routes.Verification),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	var got *kgo.Record
	for got == nil && pollCtx.Err() == nil {
		fetches := consumer.PollFetches(pollCtx)
		fetches.EachRecord(func(r *kgo.Record) {
			if string(r.Key) == "ver-relay" {
				got = r
			}
		})
	}
	s.Require().NotNil(got, "relayed record not consumed")

	var env events.Envelope
	s.Require().NoError(json.Unmarshal(got.Value, &env))
	s.Equal(evt.ID, env.ID)
	s.Equal(events.TypeDocumentAccepted, env.Type)

	n, err = relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Zero(n)
}
