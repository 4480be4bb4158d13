package cache

import (
	"context"
	"sync"
	"time"

	"reporting-gateway/internal/models"
)

// RefreshTokenStore tracks outstanding refresh tokens. Take must be atomic:
// of any number of concurrent Takes for one token, exactly one sees the data.
type RefreshTokenStore interface {
	Store(ctx context.Context, token string, data *models.RefreshTokenData, ttl time.Duration) error
	// Take removes and returns the entry for token, or nil if there is none.
	Take(ctx context.Context, token string) (*models.RefreshTokenData, error)
}

// MemoryStore is a process-local RefreshTokenStore. Entries do not survive a
// restart: every outstanding refresh token becomes invalid and callers must
// log in again.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*models.RefreshTokenData
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*models.RefreshTokenData),
	}
}

// Store records data under token. The TTL is carried by data.ExpiresAt.
func (s *MemoryStore) Store(_ context.Context, token string, data *models.RefreshTokenData, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = data
	return nil
}

// Take removes and returns the entry for token.
func (s *MemoryStore) Take(_ context.Context, token string) (*models.RefreshTokenData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.entries[token]
	if !ok {
		return nil, nil
	}
	delete(s.entries, token)
	return data, nil
}

// PurgeExpired drops entries whose expiry is at or before now and reports
// how many were removed.
func (s *MemoryStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, data := range s.entries {
		if !now.Before(data.ExpiresAt) {
			delete(s.entries, token)
			removed++
		}
	}
	return removed
}

// Len returns the number of outstanding tokens.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
