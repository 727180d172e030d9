package online

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"skyreg/internal/registry"
)

const redisKeyPrefix = "skyreg:online:"

// RedisCache is an OutcomeCache shared across replicas. Expiry is enforced
// twice: Redis TTL evicts entries and ExpiresAt guards against clock skew.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed outcome cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Outcome, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached outcome: %w", err)
	}

	var entry Outcome
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cached outcome: %w", err)
	}
	if time.Now().After(entry.ExpiresAt) {
		return nil, nil
	}
	return &entry, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, summary *registry.Summary) error {
	entry := Outcome{
		Summary:   summary,
		NotFound:  summary == nil,
		ExpiresAt: time.Now().Add(c.ttl),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cached outcome: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("put cached outcome: %w", err)
	}
	return nil
}

func (c *RedisCache) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, redisKeyPrefix+"*", 500).Result()
		if err != nil {
			return 0, fmt.Errorf("scan cached outcomes: %w", err)
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}
