// Package service implements the chat room, messaging and session use cases
// on top of the repositories, the session registry and the event dispatcher.
package service

import (
	"context"

	"github.com/unithread/chat-service/internal/domain"
)

// RoomService manages chat room lifecycle and listing.
type RoomService interface {
	// Create opens a room for an origin reference. A *domain.RoomExistsError
	// carries the existing room's ID when the pair already has one.
	Create(ctx context.Context, senderID string, req domain.CreateRoomRequest) (string, error)

	// List returns the user's active rooms, newest activity first, with
	// rooms involving blocked peers filtered out.
	List(ctx context.Context, userID string) ([]domain.RoomListItem, error)

	// Leave marks the user as having left the room. When every participant
	// has left, the room is soft-deleted.
	Leave(ctx context.Context, userID, roomID string) error

	// ToggleNotification flips the user's notification setting for a room.
	ToggleNotification(ctx context.Context, userID, roomID string) error
}

// ChatService handles message sending and history.
type ChatService interface {
	// Send stores a message and triggers its post-commit effects. The
	// returned message carries the residual unread count stamped at send.
	Send(ctx context.Context, roomID, senderID, content string, contentType domain.ContentType) (*domain.Message, error)

	// History returns one page of messages, newest first, clipped to what
	// the user is allowed to see after a leave-and-return.
	History(ctx context.Context, roomID, userID string, page int) (*domain.HistoryResponse, error)
}

// SessionService tracks live connections and their room subscriptions.
type SessionService interface {
	// Connect registers a new connection with no room assigned.
	Connect(connID string)

	// Subscribe enters the user into the room on this connection,
	// reconciling residual unread counts of recent messages.
	Subscribe(ctx context.Context, connID, userID, roomID string) error

	// Unsubscribe exits the user from the connection's current room, if
	// any. Idempotent.
	Unsubscribe(ctx context.Context, connID, userID string) error

	// Disconnect drops the connection from the registry. Callers exit the
	// room first via Unsubscribe.
	Disconnect(connID string)
}
