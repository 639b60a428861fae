package service

import (
	"context"
	"errors"

	"github.com/unithread/chat-service/internal/audit"
	"github.com/unithread/chat-service/internal/domain"
	"github.com/unithread/chat-service/internal/log"
	"github.com/unithread/chat-service/internal/repository"
)

// RoomValidator centralizes room creation and deletion rules so the room
// service stays a thin orchestrator.
type RoomValidator struct {
	rooms repository.RoomRepository
	users repository.UserDirectory
}

// NewRoomValidator creates a validator over the given repositories.
func NewRoomValidator(rooms repository.RoomRepository, users repository.UserDirectory) *RoomValidator {
	return &RoomValidator{rooms: rooms, users: users}
}

// ValidateCreate checks a create request against the self-chat, receiver
// existence and dedup rules. On a dedup hit it reactivates the room for the
// sender if they had left it, and returns a *domain.RoomExistsError carrying
// the existing room's ID.
func (v *RoomValidator) ValidateCreate(ctx context.Context, senderID string, req domain.CreateRoomRequest) error {
	if senderID == req.ReceiverID {
		return domain.ErrSelfChat
	}

	exists, err := v.users.Exists(ctx, req.ReceiverID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrUserNotFound
	}

	existing, err := v.rooms.FindByReferencePair(ctx, req.ReferenceID, senderID, req.ReceiverID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil
		}
		return err
	}

	// Re-opening a room the sender had left makes it visible again instead
	// of producing a duplicate.
	if p, ok := existing.Participants.Get(senderID); ok && p.Leaved {
		if err := existing.Remain(senderID); err != nil {
			return err
		}
		if err := v.rooms.Save(ctx, existing); err != nil {
			return err
		}
		log.Ctx(ctx).Info().
			Str(log.FieldRoomID, existing.ID).
			Str(log.FieldUserID, senderID).
			Msg("room reactivated for returning sender")
	}

	return &domain.RoomExistsError{RoomID: existing.ID}
}

// FinalizeLeave soft-deletes the room when every participant has left.
// Returns whether the room was deleted.
func (v *RoomValidator) FinalizeLeave(ctx context.Context, userID string, room *domain.Room) (bool, error) {
	if !room.AllLeaved() {
		return false, nil
	}
	if err := v.rooms.SoftDelete(ctx, room.ID); err != nil {
		return false, err
	}
	audit.Log(ctx, audit.ActionDeleteRoom, userID, room.ID, "room soft-deleted after last participant left")
	return true, nil
}
