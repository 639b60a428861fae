package repository

import (
	"context"
	"time"

	"github.com/unithread/chat-service/internal/domain"
)

// RoomRepository is the persistence boundary for rooms and their
// participant records.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	Save(ctx context.Context, room *domain.Room) error
	SoftDelete(ctx context.Context, id string) error

	// FindByReferencePair looks up the room deduplicated on
	// (origin reference, participant pair).
	FindByReferencePair(ctx context.Context, referenceID, senderID, receiverID string) (*domain.Room, error)

	// ListActiveByUser returns non-deleted rooms where the user has not left.
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Room, error)
}

// MessageRepository is the append-only store of chat messages.
type MessageRepository interface {
	Insert(ctx context.Context, msg *domain.Message) error

	// ListByRoom returns one page of messages, newest first.
	ListByRoom(ctx context.Context, roomID string, page, size int) ([]domain.Message, error)

	// ListByRoomAfter behaves like ListByRoom but only returns messages
	// created strictly after the given time.
	ListByRoomAfter(ctx context.Context, roomID string, after time.Time, page, size int) ([]domain.Message, error)

	// Recent returns the most recent messages of a room, newest first.
	Recent(ctx context.Context, roomID string, limit int) ([]domain.Message, error)

	// DecrementUnread lowers the residual unread count of each message by
	// one, both in the store and on the passed slice. Order-independent.
	DecrementUnread(ctx context.Context, msgs []domain.Message) error

	Close() error
}

// UserDirectory resolves whether a receiver exists.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}
