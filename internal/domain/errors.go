package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSelfChat rejects opening a room where sender and receiver are the
	// same user. Recoverable by the caller with corrected input.
	ErrSelfChat = errors.New("cannot open a chat room with yourself")

	// ErrRoomNotFound covers missing and soft-deleted rooms.
	ErrRoomNotFound = errors.New("chat room not found")

	// ErrUserNotFound covers unknown receivers and unauthenticated principals.
	ErrUserNotFound = errors.New("user not found")

	// ErrParticipantNotFound signals corrupted room state: an operation was
	// attempted for a user that has no membership record in the room.
	ErrParticipantNotFound = errors.New("participant not found")
)

// RoomExistsError is not a failure: a room for the same origin reference and
// participant pair already exists, and the caller is expected to redirect to
// RoomID instead of creating a duplicate.
type RoomExistsError struct {
	RoomID string
}

func (e *RoomExistsError) Error() string {
	return fmt.Sprintf("chat room already exists: %s", e.RoomID)
}
