package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"identrisk/internal/fraud/models"
	"identrisk/pkg/platform/sentinel"
)

// PostgresStore persists scores through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Save(ctx context.Context, score *models.FraudScore) error {
	factors, err := json.Marshal(score.RiskFactors)
	if err != nil {
		return fmt.Errorf("marshal risk factors: %w", err)
	}
	triggers := score.RuleTriggers
	if triggers == nil {
		triggers = []string{}
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO fraud_scores (
			id, transaction_id, user_id, risk_score, risk_level, risk_factors, is_suspicious,
			recommended_action, is_blocked, requires_review, rule_triggers, scored_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, score.ID.String(), score.TransactionID, score.UserID, score.RiskScore, string(score.RiskLevel),
		string(factors), score.IsSuspicious, string(score.RecommendedAction), score.IsBlocked,
		score.RequiresReview, triggers, score.ScoredAt)
	if err != nil {
		return fmt.Errorf("insert fraud score: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestForTransaction(ctx context.Context, transactionID string) (*models.FraudScore, error) {
	var (
		score   models.FraudScore
		id      string
		level   string
		action  string
		factors []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, transaction_id, user_id, risk_score, risk_level, risk_factors, is_suspicious,
		       recommended_action, is_blocked, requires_review, rule_triggers, scored_at
		FROM fraud_scores
		WHERE transaction_id = $1
		ORDER BY scored_at DESC
		LIMIT 1
	`, transactionID).Scan(&id, &score.TransactionID, &score.UserID, &score.RiskScore, &level, &factors,
		&score.IsSuspicious, &action, &score.IsBlocked, &score.RequiresReview, &score.RuleTriggers, &score.ScoredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("select fraud score: %w", err)
	}

	if score.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse fraud score id: %w", err)
	}
	if err := json.Unmarshal(factors, &score.RiskFactors); err != nil {
		return nil, fmt.Errorf("unmarshal risk factors: %w", err)
	}
	score.RiskLevel = models.RiskLevel(level)
	score.RecommendedAction = models.Action(action)
	score.ScoredAt = score.ScoredAt.UTC()
	return &score, nil
}
