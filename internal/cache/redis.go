package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisStore shares the entry between replicas. Keys outlive the TTL by
// retention so a stale result is still available when a refresh fails.
type RedisStore struct {
	client    *redis.Client
	key       string
	retention time.Duration
}

func NewRedisStore(client *redis.Client, key string, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, key: key, retention: retention}
}

func (s *RedisStore) Get(ctx context.Context) (*Entry, error) {
	val, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &entry, nil
}

func (s *RedisStore) Set(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	if err := s.client.Set(ctx, s.key, body, entry.TTL+s.retention).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
