// Package store persists fraud scores. Scores are append-only: a transaction
// scored twice has two records and lookups return the newest.
package store

import (
	"context"
	"sync"

	"identrisk/internal/fraud/models"
	"identrisk/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	byTxn map[string][]*models.FraudScore
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byTxn: make(map[string][]*models.FraudScore)}
}

func (s *InMemoryStore) Save(_ context.Context, score *models.FraudScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := clone(score)
	s.byTxn[score.TransactionID] = append(s.byTxn[score.TransactionID], cp)
	return nil
}

// LatestForTransaction returns the newest score; on equal times the one saved
// last wins.
func (s *InMemoryStore) LatestForTransaction(_ context.Context, transactionID string) (*models.FraudScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.FraudScore
	for _, sc := range s.byTxn[transactionID] {
		if latest == nil || !sc.ScoredAt.Before(latest.ScoredAt) {
			latest = sc
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return clone(latest), nil
}

func clone(s *models.FraudScore) *models.FraudScore {
	cp := *s
	cp.RiskFactors = make(map[models.Factor]float64, len(s.RiskFactors))
	for k, v := range s.RiskFactors {
		cp.RiskFactors[k] = v
	}
	cp.RuleTriggers = append([]string(nil), s.RuleTriggers...)
	return &cp
}
