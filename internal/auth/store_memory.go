package auth

import (
	"context"
	"sync"
)

// MemoryClientStore backs the development profile and tests.
type MemoryClientStore struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewMemoryClientStore() *MemoryClientStore {
	return &MemoryClientStore{clients: map[string]*Client{}}
}

func (s *MemoryClientStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	return &cp, nil
}

func (s *MemoryClientStore) UpsertClient(ctx context.Context, clientID, secret string, scopes []string) error {
	hash, err := HashClientSecret(secret)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[clientID] = &Client{
		ID:         clientID,
		SecretHash: hash,
		Scopes:     append([]string(nil), scopes...),
	}
	return nil
}
