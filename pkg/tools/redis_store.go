package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis, for deployments that run more
// than one Engine process and need idempotency replay and locks shared
// across all of them.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) resultKey(key string) string { return s.prefix + "result:" + key }
func (s *RedisStore) lockKey(key string) string   { return s.prefix + "lock:" + key }

func (s *RedisStore) Get(ctx context.Context, key string) (*ToolResult, bool, error) {
	raw, err := s.client.Get(ctx, s.resultKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var result ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, result *ToolResult, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.resultKey(key), raw, ttl).Err()
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, result *ToolResult, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return false, err
	}
	return s.client.SetNX(ctx, s.resultKey(key), raw, ttl).Result()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.resultKey(key)).Err()
}

// Lock acquires a Redis-side named lock using SET NX with a TTL, polling
// until it succeeds or ctx is done. The returned unlock func deletes the
// key so a clean release is immediate instead of waiting out the TTL.
func (s *RedisStore) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	lockKey := s.lockKey(key)
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		ok, err := s.client.SetNX(ctx, lockKey, "1", ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				s.client.Del(context.Background(), lockKey)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
