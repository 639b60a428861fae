// Package client holds collaborators owned by other parts of the platform,
// specified here only at their interface boundary.
package client

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/unithread/chat-service/internal/config"
)

// BlockList answers which users the current user has blocked. Rooms
// involving a blocked peer are hidden from listing, not deleted.
type BlockList interface {
	BlockedUserIDs(ctx context.Context, userID string) (map[string]struct{}, error)
}

// RedisBlockList reads the block sets maintained by the platform's
// moderation system.
type RedisBlockList struct {
	client *redis.Client
	prefix string
}

// NewRedisBlockList creates a Redis-backed block list client.
func NewRedisBlockList(client *redis.Client, cfg config.RedisConfig) *RedisBlockList {
	return &RedisBlockList{
		client: client,
		prefix: cfg.BlockPrefix,
	}
}

// BlockedUserIDs returns the set of user IDs blocked by userID.
func (b *RedisBlockList) BlockedUserIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	key := fmt.Sprintf("%s:%s", b.prefix, userID)

	members, err := b.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read block list: %w", err)
	}

	blocked := make(map[string]struct{}, len(members))
	for _, m := range members {
		blocked[m] = struct{}{}
	}
	return blocked, nil
}
