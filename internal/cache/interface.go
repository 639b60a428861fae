package cache

import (
	"context"
	"time"

	"github.com/unithread/chat-service/internal/domain"
)

// HistoryPage is one cached page of message history.
type HistoryPage struct {
	Messages []domain.Message `json:"messages"`
}

// HistoryCache caches older history pages. The latest page is always read
// from the store because its residual unread counts change on entry.
type HistoryCache interface {
	Get(ctx context.Context, key string) (*HistoryPage, error)
	Set(ctx context.Context, key string, page *HistoryPage, ttl time.Duration) error
	BuildKey(roomID, userID string, page int) string
	Close() error
}
