// Package images stores the accepted document image so the selfie stage can
// compare against it.
package images

import (
	"context"
	"sync"

	"identrisk/internal/verification/models"
	"identrisk/pkg/platform/sentinel"
)

// Store persists raw image bytes. Get returns sentinel.ErrNotFound for unknown keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// DocumentKey is the storage key of a verification's document image.
func DocumentKey(id models.VerificationID) string {
	return "verifications/" + id.String() + "/document"
}

// MemoryStore keeps images in process.
type MemoryStore struct {
	mu     sync.RWMutex
	images map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{images: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.images[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Delete removes an image; used to simulate retention purges.
func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.images, key)
}
