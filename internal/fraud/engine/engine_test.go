package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identrisk/internal/fraud/models"
	"identrisk/pkg/testutil"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	chromeWindows  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	chromeWindows2 = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	safariIPhone   = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

func txn(amount int64, typ models.TransactionType) *models.Transaction {
	return &models.Transaction{
		ID:       "txn-1",
		UserID:   "user-1",
		Amount:   decimal.NewFromInt(amount),
		Currency: "IDR",
		Type:     typ,
	}
}

func pastTxns(n int, amount int64, typ models.TransactionType, age time.Duration) []models.PastTransaction {
	out := make([]models.PastTransaction, n)
	for i := range out {
		out[i] = models.PastTransaction{
			TransactionID: fmt.Sprintf("past-%d", i),
			Amount:        decimal.NewFromInt(amount),
			Type:          typ,
			OccurredAt:    now.Add(-age),
		}
	}
	return out
}

func createdAgo(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func TestScoreScenarios(t *testing.T) {
	e := Default()

	testutil.Given(t, "a huge transfer from a two-day-old account with a burst of recent activity", func(t *testing.T) {
		history := &models.UserHistory{
			UserID:           "user-1",
			AccountCreatedAt: createdAgo(48 * time.Hour),
			Transactions:     pastTxns(6, 1_000_000, models.TypeTransfer, time.Minute),
		}

		testutil.When(t, "the transaction is scored", func(t *testing.T) {
			d := e.Score(txn(250_000_000, models.TypeTransfer), history, now)

			testutil.Then(t, "it is at least MEDIUM risk", func(t *testing.T) {
				assert.GreaterOrEqual(t, d.RiskScore, 40.0)
				assert.Contains(t, []models.RiskLevel{models.LevelMedium, models.LevelHigh, models.LevelCritical}, d.RiskLevel)
			})
			testutil.Then(t, "the factors match the rules", func(t *testing.T) {
				assert.Equal(t, 100.0, d.RiskFactors[models.FactorAmount])
				assert.Equal(t, 60.0, d.RiskFactors[models.FactorVelocity])
				assert.Equal(t, 80.0, d.RiskFactors[models.FactorBehavioral])
				assert.Equal(t, 0.0, d.RiskFactors[models.FactorLocation])
				assert.Equal(t, 40.0, d.RiskFactors[models.FactorAccountAge])
				assert.InDelta(t, 63.0, d.RiskScore, 1e-9)
			})
			testutil.Then(t, "it is blocked for review", func(t *testing.T) {
				assert.Equal(t, models.LevelHigh, d.RiskLevel)
				assert.Equal(t, models.ActionBlockAndReview, d.RecommendedAction)
				assert.True(t, d.IsBlocked)
				assert.True(t, d.RequiresReview)
				assert.True(t, d.IsSuspicious)
			})
			testutil.Then(t, "triggers follow factor order", func(t *testing.T) {
				assert.Equal(t, []string{
					"High transaction amount (100)",
					"High transaction velocity (60)",
					"High behavioral deviation (80)",
					"Moderate new account risk (40)",
				}, d.RuleTriggers)
			})
		})
	})

	testutil.Given(t, "a small payment with no metadata and no history", func(t *testing.T) {
		d := e.Score(txn(10_000, models.TypePayment), nil, now)

		testutil.Then(t, "it is MINIMAL and approved", func(t *testing.T) {
			assert.InDelta(t, 9.0, d.RiskScore, 1e-9)
			assert.Equal(t, models.LevelMinimal, d.RiskLevel)
			assert.Equal(t, models.ActionApprove, d.RecommendedAction)
			assert.False(t, d.IsBlocked)
			assert.False(t, d.RequiresReview)
			assert.False(t, d.IsSuspicious)
			assert.Len(t, d.RiskFactors, 5)
		})
	})
}

func TestAmountFactor(t *testing.T) {
	e := Default()
	cases := []struct {
		name   string
		amount int64
		typ    models.TransactionType
		want   float64
	}{
		{"below threshold", 49_999_999, models.TypeTransfer, 0},
		{"at threshold", 50_000_000, models.TypeTransfer, 20},
		{"double threshold", 100_000_000, models.TypeTransfer, 40},
		{"capped", 1_000_000_000, models.TypeTransfer, 100},
		{"large withdrawal floor", 15_000_000, models.TypeWithdrawal, 60},
		{"withdrawal at secondary threshold", 10_000_000, models.TypeWithdrawal, 0},
		{"withdrawal above floor keeps ratio", 200_000_000, models.TypeWithdrawal, 80},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := e.Score(txn(tc.amount, tc.typ), nil, now)
			assert.InDelta(t, tc.want, d.RiskFactors[models.FactorAmount], 1e-9)
		})
	}
}

func TestVelocityFactor(t *testing.T) {
	e := Default()
	cases := []struct {
		name   string
		recent int
		want   float64
	}{
		{"quiet", 3, 0},
		{"just below max", 4, 30},
		{"at max", 5, 30},
		{"one over", 6, 60},
		{"far over", 12, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			history := &models.UserHistory{Transactions: pastTxns(tc.recent, 100_000, models.TypeTransfer, 2*time.Minute)}
			d := e.Score(txn(100_000, models.TypeTransfer), history, now)
			assert.Equal(t, tc.want, d.RiskFactors[models.FactorVelocity])
		})
	}

	t.Run("transactions outside the window are ignored", func(t *testing.T) {
		history := &models.UserHistory{Transactions: pastTxns(10, 100_000, models.TypeTransfer, 6*time.Minute)}
		d := e.Score(txn(100_000, models.TypeTransfer), history, now)
		assert.Equal(t, 0.0, d.RiskFactors[models.FactorVelocity])
	})
}

func TestBehavioralFactor(t *testing.T) {
	e := Default()

	t.Run("no history is moderately risky", func(t *testing.T) {
		d := e.Score(txn(100_000, models.TypeTransfer), &models.UserHistory{}, now)
		assert.Equal(t, 30.0, d.RiskFactors[models.FactorBehavioral])
	})

	t.Run("ratio buckets", func(t *testing.T) {
		history := &models.UserHistory{Transactions: pastTxns(2, 1_000_000, models.TypeTransfer, time.Hour)}
		for amount, want := range map[int64]float64{
			2_000_000:  0,
			3_500_000:  30,
			6_000_000:  50,
			11_000_000: 80,
		} {
			d := e.Score(txn(amount, models.TypeTransfer), history, now)
			assert.Equal(t, want, d.RiskFactors[models.FactorBehavioral], "amount %d", amount)
		}
	})

	t.Run("same type average wins over overall average", func(t *testing.T) {
		history := &models.UserHistory{Transactions: append(
			pastTxns(1, 100_000, models.TypeTransfer, time.Hour),
			pastTxns(1, 5_000_000, models.TypePayment, time.Hour)...,
		)}
		d := e.Score(txn(1_200_000, models.TypeTransfer), history, now)
		assert.Equal(t, 80.0, d.RiskFactors[models.FactorBehavioral])
	})

	t.Run("falls back to all history for an unseen type", func(t *testing.T) {
		history := &models.UserHistory{Transactions: pastTxns(2, 1_000_000, models.TypePayment, time.Hour)}
		d := e.Score(txn(4_000_000, models.TypeTopUp), history, now)
		assert.Equal(t, 30.0, d.RiskFactors[models.FactorBehavioral])
	})

	t.Run("large amount to a new recipient adds an increment", func(t *testing.T) {
		history := &models.UserHistory{Transactions: pastTxns(2, 10_000_000, models.TypeTransfer, time.Hour)}
		history.Transactions[0].RecipientID = "known"

		fresh := txn(12_000_000, models.TypeTransfer)
		fresh.RecipientID = "stranger"
		assert.Equal(t, 20.0, e.Score(fresh, history, now).RiskFactors[models.FactorBehavioral])

		known := txn(12_000_000, models.TypeTransfer)
		known.RecipientID = "known"
		assert.Equal(t, 0.0, e.Score(known, history, now).RiskFactors[models.FactorBehavioral])
	})

	t.Run("increment is capped", func(t *testing.T) {
		history := &models.UserHistory{Transactions: pastTxns(2, 1_000_000, models.TypeTransfer, time.Hour)}
		big := txn(20_000_000, models.TypeTransfer)
		big.RecipientID = "stranger"
		assert.Equal(t, 100.0, e.Score(big, history, now).RiskFactors[models.FactorBehavioral])
	})
}

func TestLocationFactor(t *testing.T) {
	rules := DefaultRules()
	rules.Location.SuspiciousIPs = []string{"203.0.113.7", "198.51.100.0/24"}
	e, err := New(rules)
	require.NoError(t, err)

	history := &models.UserHistory{LastIPAddress: "10.0.0.1", LastUserAgent: chromeWindows}
	withMeta := func(ip, ua string) *models.Transaction {
		tx := txn(100_000, models.TypeTransfer)
		tx.Metadata = &models.Metadata{IPAddress: ip, UserAgent: ua}
		return tx
	}

	cases := []struct {
		name string
		txn  *models.Transaction
		want float64
	}{
		{"no metadata", txn(100_000, models.TypeTransfer), 0},
		{"listed address", withMeta("203.0.113.7", chromeWindows), 100},
		{"listed prefix", withMeta("198.51.100.42", chromeWindows), 100},
		{"same address and device", withMeta("10.0.0.1", chromeWindows2), 0},
		{"address change", withMeta("10.0.0.2", chromeWindows), 30},
		{"device change", withMeta("10.0.0.1", safariIPhone), 30},
		{"both change", withMeta("10.0.0.2", safariIPhone), 60},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, e.Score(tc.txn, history, now).RiskFactors[models.FactorLocation])
		})
	}
}

func TestAccountAgeFactor(t *testing.T) {
	e := Default()
	cases := []struct {
		name    string
		created *time.Time
		want    float64
	}{
		{"unknown", nil, 30},
		{"hours old", createdAgo(3 * time.Hour), 80},
		{"days old", createdAgo(3 * 24 * time.Hour), 40},
		{"established", createdAgo(30 * 24 * time.Hour), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			history := &models.UserHistory{AccountCreatedAt: tc.created}
			assert.Equal(t, tc.want, e.Score(txn(100_000, models.TypeTransfer), history, now).RiskFactors[models.FactorAccountAge])
		})
	}
}

// Decisions across a spread of inputs keep the score bounded and the flags
// consistent with the level.
func TestDecisionInvariants(t *testing.T) {
	e := Default()
	amounts := []int64{1, 50_000, 9_000_000, 15_000_000, 60_000_000, 900_000_000}
	types := []models.TransactionType{models.TypeTransfer, models.TypeWithdrawal, models.TypePayment}
	histories := []*models.UserHistory{
		nil,
		{AccountCreatedAt: createdAgo(time.Hour), Transactions: pastTxns(9, 10_000, models.TypeTransfer, time.Minute)},
		{AccountCreatedAt: createdAgo(400 * 24 * time.Hour), Transactions: pastTxns(2, 5_000_000, models.TypePayment, time.Hour), LastIPAddress: "10.0.0.1"},
	}

	require.InDelta(t, 1.0, e.Rules().Weights.Sum(), 1e-9)
	for _, amount := range amounts {
		for _, typ := range types {
			for _, h := range histories {
				tx := txn(amount, typ)
				tx.Metadata = &models.Metadata{IPAddress: "10.0.0.9"}
				d := e.Score(tx, h, now)

				assert.GreaterOrEqual(t, d.RiskScore, 0.0)
				assert.LessOrEqual(t, d.RiskScore, 100.0)
				assert.Len(t, d.RiskFactors, 5)
				assert.Equal(t, d.RiskScore >= 50, d.IsSuspicious)
				if d.IsBlocked {
					assert.Contains(t, []models.RiskLevel{models.LevelHigh, models.LevelCritical}, d.RiskLevel)
				}
			}
		}
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	e := Default()
	history := &models.UserHistory{Transactions: pastTxns(4, 2_000_000, models.TypeTransfer, time.Minute)}
	first := e.Score(txn(30_000_000, models.TypeTransfer), history, now)
	second := e.Score(txn(30_000_000, models.TypeTransfer), history, now)
	assert.Equal(t, first, second)
}

func TestDeviceFamilyIgnoresVersions(t *testing.T) {
	assert.Equal(t, DeviceFamily(chromeWindows), DeviceFamily(chromeWindows2))
	assert.NotEqual(t, DeviceFamily(chromeWindows), DeviceFamily(safariIPhone))
}
