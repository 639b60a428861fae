package domain

import "time"

// CreateRoomRequest is the payload for opening a chat room from an origin
// reference (the post or comment that spawned it).
type CreateRoomRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	ReferenceID string `json:"reference_id" binding:"required"`
	ReceiverID  string `json:"receiver_id" binding:"required"`
}

// CreateRoomResponse carries the ID of the newly created room.
type CreateRoomResponse struct {
	RoomID string `json:"room_id"`
}

// RoomListItem is one entry of the current user's room list.
type RoomListItem struct {
	RoomID        string    `json:"room_id"`
	Name          string    `json:"name"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count"`
}

// HistoryResponse is a page of message history plus the requesting user's ID
// so the client can tell own messages apart.
type HistoryResponse struct {
	Messages []Message `json:"messages"`
	UserID   string    `json:"user_id"`
}
