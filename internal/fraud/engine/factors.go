package engine

import (
	"net/netip"
	"time"

	"github.com/mssola/useragent"
	"github.com/shopspring/decimal"

	"identrisk/internal/fraud/models"
)

// amountScore is 0 below the high threshold and 20 per threshold multiple at or
// above it. Large withdrawals get a floor.
func (e *Engine) amountScore(txn *models.Transaction) float64 {
	r := e.rules.Amount
	var score float64
	if txn.Amount.GreaterThanOrEqual(r.HighThreshold) {
		score = 20 * txn.Amount.Div(r.HighThreshold).InexactFloat64()
	}
	if txn.Type == models.TypeWithdrawal && txn.Amount.GreaterThan(r.WithdrawalThreshold) && score < r.WithdrawalFloor {
		score = r.WithdrawalFloor
	}
	return score
}

// velocityScore counts past transactions inside the trailing window.
func (e *Engine) velocityScore(history *models.UserHistory, now time.Time) float64 {
	if !history.HasTransactions() {
		return 0
	}
	r := e.rules.Velocity
	since := now.Add(-r.Window)
	count := 0
	for _, t := range history.Transactions {
		if t.OccurredAt.After(since) && !t.OccurredAt.After(now) {
			count++
		}
	}
	switch {
	case count > r.MaxTransactions:
		return 50 + 10*float64(count-r.MaxTransactions)
	case count >= r.MaxTransactions-1:
		return 30
	default:
		return 0
	}
}

// behavioralScore compares the amount with the user's average for the same
// type, falling back to the average over all types.
func (e *Engine) behavioralScore(txn *models.Transaction, history *models.UserHistory) float64 {
	r := e.rules.Behavioral
	if !history.HasTransactions() {
		return r.NoHistoryScore
	}

	avg := averageAmount(history.Transactions, txn.Type)
	if avg.IsZero() {
		avg = averageAmount(history.Transactions, "")
	}

	var score float64
	if avg.IsPositive() {
		ratio := txn.Amount.Div(avg).InexactFloat64()
		switch {
		case ratio > 10:
			score = 80
		case ratio > 5:
			score = 50
		case ratio > 3:
			score = 30
		}
	}

	if txn.RecipientID != "" && txn.Amount.GreaterThanOrEqual(r.NewRecipientThreshold) && !knownRecipient(history, txn.RecipientID) {
		score += r.NewRecipientIncrement
	}
	return score
}

// averageAmount averages transactions of typ, or all when typ is empty.
func averageAmount(txns []models.PastTransaction, typ models.TransactionType) decimal.Decimal {
	sum := decimal.Zero
	n := 0
	for _, t := range txns {
		if typ != "" && t.Type != typ {
			continue
		}
		sum = sum.Add(t.Amount)
		n++
	}
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}

func knownRecipient(history *models.UserHistory, recipient string) bool {
	for _, t := range history.Transactions {
		if t.RecipientID == recipient {
			return true
		}
	}
	return false
}

// locationScore flags listed addresses outright and adds a fixed score each for
// an address change and a device family change.
func (e *Engine) locationScore(txn *models.Transaction, history *models.UserHistory) float64 {
	md := txn.Metadata
	if md.Empty() {
		return 0
	}
	if e.isSuspicious(md.IPAddress) {
		return 100
	}
	if history == nil {
		return 0
	}
	r := e.rules.Location
	var score float64
	if md.IPAddress != "" && history.LastIPAddress != "" && md.IPAddress != history.LastIPAddress {
		score += r.IPChangeScore
	}
	if md.UserAgent != "" && history.LastUserAgent != "" && DeviceFamily(md.UserAgent) != DeviceFamily(history.LastUserAgent) {
		score += r.DeviceChangeScore
	}
	return score
}

func (e *Engine) isSuspicious(ip string) bool {
	if ip == "" || len(e.suspicious) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range e.suspicious {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// DeviceFamily reduces a user agent to platform, OS and browser name so
// version bumps do not count as a new device.
func DeviceFamily(ua string) string {
	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	kind := "desktop"
	switch {
	case parsed.Bot():
		kind = "bot"
	case parsed.Mobile():
		kind = "mobile"
	}
	return kind + "|" + parsed.OSInfo().Name + "|" + browser
}

func (e *Engine) accountAgeScore(history *models.UserHistory, now time.Time) float64 {
	if history == nil || history.AccountCreatedAt == nil {
		return e.rules.AccountAge.UnknownScore
	}
	age := now.Sub(*history.AccountCreatedAt)
	switch {
	case age < 24*time.Hour:
		return 80
	case age < time.Duration(e.rules.AccountAge.NewAccountDays)*24*time.Hour:
		return 40
	default:
		return 0
	}
}
