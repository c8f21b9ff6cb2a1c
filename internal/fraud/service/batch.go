package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"identrisk/internal/fraud/models"
	dErrors "identrisk/pkg/domain-errors"
)

// BatchFailure describes one transaction of a batch that could not be scored.
type BatchFailure struct {
	Index         int
	TransactionID string
	Err           error
}

// BatchResult holds the scores in input order. Failed positions are left out of
// Scores and reported in Failures.
type BatchResult struct {
	Scores   []*models.FraudScore
	Failures []BatchFailure
}

// ScoreBatch scores transactions concurrently on at most batchWorkers
// goroutines. One failing transaction does not stop the others.
func (s *Service) ScoreBatch(ctx context.Context, txns []*models.Transaction) (*BatchResult, error) {
	if len(txns) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "batch is empty")
	}
	if len(txns) > MaxBatchSize {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("batch exceeds %d transactions", MaxBatchSize))
	}

	scores := make([]*models.FraudScore, len(txns))
	errs := make([]error, len(txns))

	var g errgroup.Group
	g.SetLimit(s.batchWorkers)
	for i, txn := range txns {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = dErrors.Wrap(err, dErrors.CodeTimeout, "batch cancelled")
				return nil
			}
			scores[i], errs[i] = s.Score(ctx, txn)
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchResult{Scores: make([]*models.FraudScore, 0, len(txns))}
	for i, err := range errs {
		if err != nil {
			id := ""
			if txns[i] != nil {
				id = txns[i].ID
			}
			result.Failures = append(result.Failures, BatchFailure{Index: i, TransactionID: id, Err: err})
			continue
		}
		result.Scores = append(result.Scores, scores[i])
	}
	s.metrics.ObserveBatch(len(txns), len(result.Failures))

	s.logger.InfoContext(ctx, "batch scored",
		"batch_size", len(txns),
		"failures", len(result.Failures),
	)
	return result, nil
}
