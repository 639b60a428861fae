package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming for chat delivery. Per-user channels are addressed by the
// stable user ID, never by connection ID; per-room channels broadcast to
// every current subscriber of the room.
const (
	channelUser = "chat:user:%s"
	channelRoom = "chat:room:%s"

	PatternUser = "chat:user:*"
	PatternRoom = "chat:room:*"
)

// Event types carried on delivery channels.
const (
	EventMessageNew  = "message_new"  // room channel: a message arrived
	EventRoomUpdate  = "room_update"  // user channel: unread/last-message change
	EventMessageRead = "message_read" // room channel: residual unread counts dropped
)

// UserChannel returns the private delivery channel for a user.
func UserChannel(userID string) string {
	return fmt.Sprintf(channelUser, userID)
}

// RoomChannel returns the broadcast channel for a room.
func RoomChannel(roomID string) string {
	return fmt.Sprintf(channelRoom, roomID)
}

// UserFromChannel extracts the user ID from a user channel name.
func UserFromChannel(channel string) (string, bool) {
	return suffix(channel, "chat:user:")
}

// RoomFromChannel extracts the room ID from a room channel name.
func RoomFromChannel(channel string) (string, bool) {
	return suffix(channel, "chat:room:")
}

func suffix(channel, prefix string) (string, bool) {
	if !strings.HasPrefix(channel, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(channel, prefix)
	return id, id != ""
}

// RoomUpdatePayload refreshes one room entry in a user's room list.
type RoomUpdatePayload struct {
	RoomID      string `json:"room_id"`
	LastMessage string `json:"last_message"`
	UnreadCount int    `json:"unread_count"`
}

// MessageUnread is one message's reconciled residual unread count.
type MessageUnread struct {
	MessageID   string `json:"message_id"`
	UnreadCount int    `json:"unread_count"`
}

// MessageReadPayload carries the reconciled counts published after a user
// enters a room and drains their pending unread messages.
type MessageReadPayload struct {
	RoomID   string          `json:"room_id"`
	Messages []MessageUnread `json:"messages"`
}
