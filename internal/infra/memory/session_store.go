package memory

import (
	"context"
	"sync"

	"trivia-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore, used in
// tests and single-process dev setups.
type SessionStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewSessionStore() *SessionStore {
	return &SessionStore{blobs: make(map[string][]byte)}
}

func (s *SessionStore) Get(_ context.Context, owner string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[owner]
	if !ok {
		return nil, domain.ErrNoSession
	}
	return append([]byte(nil), blob...), nil
}

func (s *SessionStore) Set(_ context.Context, owner string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[owner] = append([]byte(nil), blob...)
	return nil
}

func (s *SessionStore) Remove(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, owner)
	return nil
}
