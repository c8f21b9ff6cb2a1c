package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identrisk/internal/fraud/models"
	"identrisk/pkg/platform/sentinel"
)

func newScore(txnID string, score float64, at time.Time) *models.FraudScore {
	txn := &models.Transaction{ID: txnID, UserID: "user-1", Amount: decimal.NewFromInt(1000), Type: models.TypeTransfer}
	return models.NewFraudScore(txn, models.Decision{
		RiskScore:    score,
		RiskLevel:    models.LevelMinimal,
		RiskFactors:  map[models.Factor]float64{models.FactorAmount: 0},
		RuleTriggers: []string{"Moderate new account risk (30)"},
	}, at)
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("unknown transaction", func(t *testing.T) {
		_, err := s.LatestForTransaction(ctx, "missing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("re-scoring appends and the newest wins", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, newScore("txn-1", 10, at)))
		require.NoError(t, s.Save(ctx, newScore("txn-1", 70, at.Add(time.Minute))))

		got, err := s.LatestForTransaction(ctx, "txn-1")
		require.NoError(t, err)
		assert.Equal(t, 70.0, got.RiskScore)
	})

	t.Run("stored records are copies", func(t *testing.T) {
		sc := newScore("txn-2", 5, at)
		require.NoError(t, s.Save(ctx, sc))
		sc.RuleTriggers[0] = "changed"
		sc.RiskFactors[models.FactorAmount] = 99

		got, err := s.LatestForTransaction(ctx, "txn-2")
		require.NoError(t, err)
		assert.Equal(t, "Moderate new account risk (30)", got.RuleTriggers[0])
		assert.Equal(t, 0.0, got.RiskFactors[models.FactorAmount])
	})
}
