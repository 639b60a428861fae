package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// RedisHistoryCache implements HistoryCache on Redis.
type RedisHistoryCache struct {
	client *redis.Client
	prefix string
}

// NewRedisHistoryCache creates a Redis-backed history cache reusing an
// existing client.
func NewRedisHistoryCache(client *redis.Client, prefix string) *RedisHistoryCache {
	return &RedisHistoryCache{
		client: client,
		prefix: prefix,
	}
}

// BuildKey derives the cache key for a history page. The key includes the
// requesting user because whenLeaved clipping makes pages user-specific.
func (c *RedisHistoryCache) BuildKey(roomID, userID string, page int) string {
	return fmt.Sprintf("%s:%s:%s:%d", c.prefix, roomID, userID, page)
}

// Get fetches a cached page.
func (c *RedisHistoryCache) Get(ctx context.Context, key string) (*HistoryPage, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var page HistoryPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &page, nil
}

// Set stores a page with the given TTL.
func (c *RedisHistoryCache) Set(ctx context.Context, key string, page *HistoryPage, ttl time.Duration) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

// Close is a no-op; the shared Redis client is closed by its owner.
func (c *RedisHistoryCache) Close() error {
	return nil
}
