// Package history keeps the per-user transaction history the engine scores
// against. It is fed by transaction lifecycle events and read on every score.
package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"identrisk/internal/fraud/models"
)

// DefaultMaxTransactions bounds how many past transactions are kept per user.
const DefaultMaxTransactions = 200

// Store reads and updates user history.
type Store interface {
	Load(ctx context.Context, userID string) (*models.UserHistory, error)
	RecordTransaction(ctx context.Context, userID string, txn models.PastTransaction, md *models.Metadata) error
	RegisterUser(ctx context.Context, userID string, createdAt time.Time) error
}

// MemoryStore keeps history in process. Recording the same transaction id twice
// replaces the earlier entry.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*models.UserHistory
	max   int
}

func NewMemoryStore(maxTransactions int) *MemoryStore {
	if maxTransactions <= 0 {
		maxTransactions = DefaultMaxTransactions
	}
	return &MemoryStore{users: make(map[string]*models.UserHistory), max: maxTransactions}
}

// Load returns an empty history for unknown users.
func (s *MemoryStore) Load(_ context.Context, userID string) (*models.UserHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.users[userID]
	if !ok {
		return &models.UserHistory{UserID: userID}, nil
	}
	cp := *h
	cp.Transactions = append([]models.PastTransaction(nil), h.Transactions...)
	if h.AccountCreatedAt != nil {
		t := *h.AccountCreatedAt
		cp.AccountCreatedAt = &t
	}
	return &cp, nil
}

func (s *MemoryStore) RecordTransaction(_ context.Context, userID string, txn models.PastTransaction, md *models.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.user(userID)

	replaced := false
	for i := range h.Transactions {
		if h.Transactions[i].TransactionID == txn.TransactionID {
			h.Transactions[i] = txn
			replaced = true
			break
		}
	}
	if !replaced {
		h.Transactions = append(h.Transactions, txn)
	}
	sort.SliceStable(h.Transactions, func(i, j int) bool {
		return h.Transactions[i].OccurredAt.Before(h.Transactions[j].OccurredAt)
	})
	if over := len(h.Transactions) - s.max; over > 0 {
		h.Transactions = append([]models.PastTransaction(nil), h.Transactions[over:]...)
	}
	if md != nil {
		if md.IPAddress != "" {
			h.LastIPAddress = md.IPAddress
		}
		if md.UserAgent != "" {
			h.LastUserAgent = md.UserAgent
		}
	}
	return nil
}

func (s *MemoryStore) RegisterUser(_ context.Context, userID string, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := createdAt.UTC()
	s.user(userID).AccountCreatedAt = &t
	return nil
}

// Seed replaces a user's history wholesale, keeping the newest transactions up
// to the cap.
func (s *MemoryStore) Seed(h models.UserHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txns := append([]models.PastTransaction(nil), h.Transactions...)
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].OccurredAt.Before(txns[j].OccurredAt) })
	if over := len(txns) - s.max; over > 0 {
		txns = txns[over:]
	}
	h.Transactions = txns
	s.users[h.UserID] = &h
}

func (s *MemoryStore) user(userID string) *models.UserHistory {
	h, ok := s.users[userID]
	if !ok {
		h = &models.UserHistory{UserID: userID}
		s.users[userID] = h
	}
	return h
}
