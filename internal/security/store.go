package security

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore keeps one CSRF token per session.
type TokenStore interface {
	// LoadOrStore returns the token already stored for sessionID, or stores
	// and returns token when there is none.
	LoadOrStore(ctx context.Context, sessionID, token string) (string, error)
	Load(ctx context.Context, sessionID string) (string, bool, error)
}

// MemoryStore is a process-local TokenStore. Tokens never expire.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

func (s *MemoryStore) LoadOrStore(_ context.Context, sessionID, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tokens[sessionID]; ok {
		return existing, nil
	}
	s.tokens[sessionID] = token
	return token, nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[sessionID]
	return token, ok, nil
}

// RedisStore keeps tokens under csrf:<session> with a TTL, so several
// portal instances share them.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return "csrf:" + sessionID
}

func (s *RedisStore) LoadOrStore(ctx context.Context, sessionID, token string) (string, error) {
	key := s.key(sessionID)
	stored, err := s.rdb.SetNX(ctx, key, token, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to store csrf token: %w", err)
	}
	if stored {
		return token, nil
	}

	existing, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET.
		if err := s.rdb.Set(ctx, key, token, s.ttl).Err(); err != nil {
			return "", fmt.Errorf("failed to store csrf token: %w", err)
		}
		return token, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load csrf token: %w", err)
	}
	return existing, nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (string, bool, error) {
	token, err := s.rdb.Get(ctx, s.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load csrf token: %w", err)
	}
	return token, true, nil
}
