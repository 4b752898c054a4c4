package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-quiz-service/internal/domain"
)

// SessionStore persists full session snapshots in Redis, one key per owner.
// The blob is the whole serialized session; there are no partial writes, so
// last-write-wins matches the in-memory mutation order as long as the
// service serializes operations (it does).
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Get(ctx context.Context, owner string) ([]byte, error) {
	blob, err := s.client.Get(ctx, s.key(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("get session blob: %w", err)
	}
	return blob, nil
}

func (s *SessionStore) Set(ctx context.Context, owner string, blob []byte) error {
	if err := s.client.Set(ctx, s.key(owner), blob, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session blob: %w", err)
	}
	return nil
}

func (s *SessionStore) Remove(ctx context.Context, owner string) error {
	if err := s.client.Del(ctx, s.key(owner)).Err(); err != nil {
		return fmt.Errorf("remove session blob: %w", err)
	}
	return nil
}

// key namespaces sessions per owner so two identities never see each
// other's attempt.
func (s *SessionStore) key(owner string) string {
	return "quiz:session:" + owner
}
