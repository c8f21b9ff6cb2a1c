// Package service scores transactions and keeps the resulting decisions.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"identrisk/internal/events"
	"identrisk/internal/fraud/engine"
	"identrisk/internal/fraud/metrics"
	"identrisk/internal/fraud/models"
	dErrors "identrisk/pkg/domain-errors"
	"identrisk/pkg/platform/sentinel"
	"identrisk/pkg/requestcontext"
)

const (
	DefaultBatchWorkers = 8
	MaxBatchSize        = 1000
)

// Store persists fraud scores.
type Store interface {
	Save(ctx context.Context, score *models.FraudScore) error
	LatestForTransaction(ctx context.Context, transactionID string) (*models.FraudScore, error)
}

// HistoryLoader returns what is known about a user.
type HistoryLoader interface {
	Load(ctx context.Context, userID string) (*models.UserHistory, error)
}

type Service struct {
	store   Store
	history HistoryLoader
	engine  *engine.Engine

	publisher    events.Publisher
	batchWorkers int
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEventPublisher emits fraud.scored after each saved score. Delivery is
// best effort.
func WithEventPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithBatchWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchWorkers = n
		}
	}
}

// New builds the service. A nil engine uses the default rules.
func New(store Store, history HistoryLoader, eng *engine.Engine, opts ...Option) *Service {
	if eng == nil {
		eng = engine.Default()
	}
	s := &Service{
		store:        store,
		history:      history,
		engine:       eng,
		batchWorkers: DefaultBatchWorkers,
		logger:       slog.Default(),
		tracer:       otel.Tracer("identrisk/fraud"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score evaluates one transaction and stores the decision. When history is
// unavailable the transaction is scored as if the user had none.
func (s *Service) Score(ctx context.Context, txn *models.Transaction) (*models.FraudScore, error) {
	if txn == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "transaction is required")
	}
	if err := txn.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "fraud.score", trace.WithAttributes(
		attribute.String("transaction_id", txn.ID),
		attribute.String("transaction_type", string(txn.Type)),
	))
	defer span.End()

	started := time.Now()
	now := requestcontext.Now(ctx)
	history := s.loadHistory(ctx, txn.UserID)

	decision := s.engine.Score(txn, history, now)
	score := models.NewFraudScore(txn, decision, now)
	if err := s.store.Save(ctx, score); err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save fraud score")
	}
	span.SetAttributes(
		attribute.Float64("risk_score", decision.RiskScore),
		attribute.String("risk_level", string(decision.RiskLevel)),
	)
	s.metrics.ObserveScore(string(decision.RiskLevel), decision.RiskScore, time.Since(started))
	s.publish(ctx, score)

	s.logger.InfoContext(ctx, "transaction scored",
		"transaction_id", txn.ID,
		"user_id", txn.UserID,
		"risk_score", decision.RiskScore,
		"risk_level", string(decision.RiskLevel),
		"recommended_action", string(decision.RecommendedAction),
		"request_id", requestcontext.RequestID(ctx),
	)
	return score, nil
}

func (s *Service) loadHistory(ctx context.Context, userID string) *models.UserHistory {
	if s.history == nil {
		return nil
	}
	h, err := s.history.Load(ctx, userID)
	if err != nil {
		s.metrics.IncrementHistoryDegraded()
		s.logger.WarnContext(ctx, "user history unavailable, scoring without it",
			"user_id", userID,
			"error", err,
		)
		return nil
	}
	return h
}

// Get returns the newest score for a transaction.
func (s *Service) Get(ctx context.Context, transactionID string) (*models.FraudScore, error) {
	if transactionID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "transaction id is required")
	}
	score, err := s.store.LatestForTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "fraud score not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load fraud score")
	}
	return score, nil
}

// ScoreEvent is the fraud.scored payload.
type ScoreEvent struct {
	ScoreID           string                    `json:"scoreId"`
	TransactionID     string                    `json:"transactionId"`
	UserID            string                    `json:"userId"`
	RiskScore         float64                   `json:"riskScore"`
	RiskLevel         models.RiskLevel          `json:"riskLevel"`
	RecommendedAction models.Action             `json:"recommendedAction"`
	IsBlocked         bool                      `json:"isBlocked"`
	RequiresReview    bool                      `json:"requiresReview"`
	RuleTriggers      []string                  `json:"ruleTriggers"`
	RiskFactors       map[models.Factor]float64 `json:"riskFactors"`
}

func (s *Service) publish(ctx context.Context, score *models.FraudScore) {
	if s.publisher == nil {
		return
	}
	evt := events.New(events.TypeFraudScored, events.AggregateFraudScore, score.TransactionID, score.ScoredAt, ScoreEvent{
		ScoreID:           score.ID.String(),
		TransactionID:     score.TransactionID,
		UserID:            score.UserID,
		RiskScore:         score.RiskScore,
		RiskLevel:         score.RiskLevel,
		RecommendedAction: score.RecommendedAction,
		IsBlocked:         score.IsBlocked,
		RequiresReview:    score.RequiresReview,
		RuleTriggers:      score.RuleTriggers,
		RiskFactors:       score.RiskFactors,
	})
	evt.RequestID = requestcontext.RequestID(ctx)
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.metrics.IncrementPublishFailure()
		s.logger.WarnContext(ctx, "event publish failed",
			"event_type", string(events.TypeFraudScored),
			"transaction_id", score.TransactionID,
			"error", err,
		)
	}
}
