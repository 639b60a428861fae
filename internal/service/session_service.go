package service

import (
	"context"
	"errors"

	"github.com/unithread/chat-service/internal/domain"
	"github.com/unithread/chat-service/internal/events"
	"github.com/unithread/chat-service/internal/locks"
	"github.com/unithread/chat-service/internal/log"
	"github.com/unithread/chat-service/internal/registry"
	"github.com/unithread/chat-service/internal/repository"
)

type sessionService struct {
	rooms      repository.RoomRepository
	messages   repository.MessageRepository
	registry   registry.Registry
	dispatcher *events.Dispatcher
	locks      *locks.Keyed
}

// NewSessionService creates the connection and subscription service.
func NewSessionService(
	rooms repository.RoomRepository,
	messages repository.MessageRepository,
	reg registry.Registry,
	dispatcher *events.Dispatcher,
	roomLocks *locks.Keyed,
) SessionService {
	return &sessionService{
		rooms:      rooms,
		messages:   messages,
		registry:   reg,
		dispatcher: dispatcher,
		locks:      roomLocks,
	}
}

func (s *sessionService) Connect(connID string) {
	s.registry.Connect(connID)
	log.L().Debug().Str(log.FieldConnectionID, connID).Int("connections", s.registry.Len()).Msg("connection registered")
}

// Subscribe enters the user into the room: their pending unread count is
// drained, and the residual unread counts of the most recent messages are
// reconciled to match.
func (s *sessionService) Subscribe(ctx context.Context, connID, userID, roomID string) error {
	// A connection views one room at a time.
	if current, ok := s.registry.Get(connID); ok && current != roomID {
		if err := s.exitRoom(ctx, userID, current); err != nil {
			log.Ctx(ctx).Error().Err(err).Str(log.FieldRoomID, current).Msg("failed to exit previous room")
		}
	}

	s.locks.Lock(roomID)
	defer s.locks.Unlock(roomID)

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}

	pending, err := room.Participants.UnreadCount(userID)
	if err != nil {
		return err
	}
	if pending > 0 {
		if err := s.reconcileUnread(ctx, roomID, pending); err != nil {
			return err
		}
	}

	if err := room.Enter(userID); err != nil {
		return err
	}
	if err := s.rooms.Save(ctx, room); err != nil {
		return err
	}

	s.registry.Assign(connID, roomID)
	log.Ctx(ctx).Debug().
		Str(log.FieldConnectionID, connID).
		Str(log.FieldRoomID, roomID).
		Int("reconciled", pending).
		Msg("subscribed to room")
	return nil
}

// reconcileUnread drops the residual unread count of the user's pending
// messages by one each, newest first. A shortfall between the pending count
// and the stored messages is repaired by reconciling what exists.
func (s *sessionService) reconcileUnread(ctx context.Context, roomID string, pending int) error {
	msgs, err := s.messages.Recent(ctx, roomID, pending)
	if err != nil {
		return err
	}
	if len(msgs) < pending {
		log.Ctx(ctx).Warn().
			Str(log.FieldRoomID, roomID).
			Int("pending", pending).
			Int("stored", len(msgs)).
			Msg("unread count exceeds stored messages, repairing")
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := s.messages.DecrementUnread(ctx, msgs); err != nil {
		return err
	}
	s.dispatcher.UnreadReconciled(roomID, msgs)
	return nil
}

func (s *sessionService) Unsubscribe(ctx context.Context, connID, userID string) error {
	roomID, ok := s.registry.Get(connID)
	if !ok {
		return nil
	}

	if err := s.exitRoom(ctx, userID, roomID); err != nil {
		return err
	}

	s.registry.Remove(connID)
	log.Ctx(ctx).Debug().
		Str(log.FieldConnectionID, connID).
		Str(log.FieldRoomID, roomID).
		Msg("unsubscribed from room")
	return nil
}

func (s *sessionService) Disconnect(connID string) {
	s.registry.Remove(connID)
	log.L().Debug().Str(log.FieldConnectionID, connID).Int("connections", s.registry.Len()).Msg("connection removed")
}

// exitRoom marks the user disconnected in the room. Their unread count
// stays as last reconciled so a later entry can pick it up.
func (s *sessionService) exitRoom(ctx context.Context, userID, roomID string) error {
	s.locks.Lock(roomID)
	defer s.locks.Unlock(roomID)

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			// Room was deleted while the user viewed it; nothing to update.
			return nil
		}
		return err
	}
	if err := room.Exit(userID); err != nil {
		return err
	}
	return s.rooms.Save(ctx, room)
}
