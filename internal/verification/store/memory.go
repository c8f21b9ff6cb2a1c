package store

import (
	"context"
	"sync"

	"identrisk/internal/verification/models"
	"identrisk/pkg/platform/sentinel"
)

// InMemoryStore keeps records in process.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[models.VerificationID]*models.Verification
	byUser  map[string][]models.VerificationID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[models.VerificationID]*models.Verification),
		byUser:  make(map[string][]models.VerificationID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, v *models.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[v.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[v.ID] = v.Clone()
	s.byUser[v.UserID] = append(s.byUser[v.UserID], v.ID)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id models.VerificationID) (*models.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return v.Clone(), nil
}

// LatestForUser returns the newest record; on equal creation times the one
// created last wins.
func (s *InMemoryStore) LatestForUser(_ context.Context, userID string) (*models.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Verification
	for _, id := range s.byUser[userID] {
		v := s.records[id]
		if latest == nil || !v.CreatedAt.Before(latest.CreatedAt) {
			latest = v
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return latest.Clone(), nil
}

func (s *InMemoryStore) Execute(ctx context.Context, id models.VerificationID, validate ValidateFunc, mutate MutateFunc) (*models.Verification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(current.Clone()); err != nil {
		return nil, err
	}
	next := current.Clone()
	if err := mutate(ctx, next); err != nil {
		return nil, err
	}
	s.records[id] = next
	return next.Clone(), nil
}
