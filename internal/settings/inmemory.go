package settings

import (
	"context"
	"sync"
)

// InMemoryStore keeps settings for the process lifetime only.
type InMemoryStore struct {
	mu       sync.RWMutex
	settings Settings
}

func NewInMemoryStore(initial Settings) *InMemoryStore {
	return &InMemoryStore{settings: initial}
}

func (s *InMemoryStore) Load(_ context.Context) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *InMemoryStore) Save(_ context.Context, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = s.settings.apply(creds)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
