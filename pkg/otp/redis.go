package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists pending entries as JSON with TTL = expiry + grace, so
// an expired entry is still readable for a while and reported as expired.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	grace     time.Duration
}

func NewRedisStore(client *redis.Client, keyPrefix string, grace time.Duration) *RedisStore {
	keyPrefix = strings.TrimSpace(keyPrefix)
	if keyPrefix == "" {
		keyPrefix = "lms:otp"
	}
	if grace <= 0 {
		grace = DefaultTTL
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, grace: grace}
}

func (s *RedisStore) Put(ctx context.Context, purpose Purpose, p Pending) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending entry: %w", err)
	}
	ttl := time.Until(p.ExpiresAt) + s.grace
	if ttl <= 0 {
		ttl = s.grace
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Set(ctx, s.key(purpose, p.Email), raw, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, purpose Purpose, email string) (Pending, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	raw, err := s.client.Get(ctx, s.key(purpose, email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Pending{}, false, nil
	}
	if err != nil {
		return Pending{}, false, err
	}
	var p Pending
	if err := json.Unmarshal(raw, &p); err != nil {
		return Pending{}, false, fmt.Errorf("unmarshal pending entry: %w", err)
	}
	return p, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, purpose Purpose, email string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Del(ctx, s.key(purpose, email)).Err()
}

func (s *RedisStore) key(purpose Purpose, email string) string {
	return fmt.Sprintf("%s:%s:%s", s.keyPrefix, purpose, email)
}
