package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store with SET NX EX.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore using the default key prefix.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: KeyPrefix}
}

func (s *RedisStore) namespaceKey(key string) string {
	return s.prefix + key
}

// Claim implements Store.
func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ok, err := s.client.SetNX(ctx, s.namespaceKey(key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim dedup key: %w", err)
	}
	return ok, nil
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.namespaceKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release dedup key: %w", err)
	}
	return nil
}
