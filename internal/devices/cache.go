package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"notifier/internal/constants"
)

// Cache is a read-through cache for the registration IDs of a user.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

func (c *Cache) Get(ctx context.Context, userID string) ([]string, error) {
	val, err := c.client.Get(ctx, cacheKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(val), &ids); err != nil {
		return nil, fmt.Errorf("failed to decode cached registration ids: %w", err)
	}

	return ids, nil
}

func (c *Cache) Set(ctx context.Context, userID string, registrationIDs []string) error {
	data, err := json.Marshal(registrationIDs)
	if err != nil {
		return fmt.Errorf("failed to encode registration ids: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func cacheKey(userID string) string {
	return constants.CacheKeyPrefixDevices + userID
}
