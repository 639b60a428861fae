package service

import (
	"context"

	"github.com/samber/lo"

	"github.com/unithread/chat-service/internal/audit"
	"github.com/unithread/chat-service/internal/client"
	"github.com/unithread/chat-service/internal/domain"
	"github.com/unithread/chat-service/internal/events"
	"github.com/unithread/chat-service/internal/locks"
	"github.com/unithread/chat-service/internal/log"
	"github.com/unithread/chat-service/internal/repository"
)

type roomService struct {
	rooms      repository.RoomRepository
	validator  *RoomValidator
	blocks     client.BlockList
	dispatcher *events.Dispatcher
	locks      *locks.Keyed
}

// NewRoomService creates the room lifecycle service.
func NewRoomService(
	rooms repository.RoomRepository,
	validator *RoomValidator,
	blocks client.BlockList,
	dispatcher *events.Dispatcher,
	roomLocks *locks.Keyed,
) RoomService {
	return &roomService{
		rooms:      rooms,
		validator:  validator,
		blocks:     blocks,
		dispatcher: dispatcher,
		locks:      roomLocks,
	}
}

func (s *roomService) Create(ctx context.Context, senderID string, req domain.CreateRoomRequest) (string, error) {
	if err := s.validator.ValidateCreate(ctx, senderID, req); err != nil {
		return "", err
	}

	room := domain.NewRoom(req.Name, req.ReferenceID, senderID, req.ReceiverID)
	if err := s.rooms.Create(ctx, room); err != nil {
		return "", err
	}

	audit.Log(ctx, audit.ActionCreateRoom, senderID, room.ID, "room created")
	s.dispatcher.RoomCreated(room.ID, req.ReceiverID)
	return room.ID, nil
}

func (s *roomService) List(ctx context.Context, userID string) ([]domain.RoomListItem, error) {
	rooms, err := s.rooms.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	blocked, err := s.blocks.BlockedUserIDs(ctx, userID)
	if err != nil {
		// Hiding blocked peers is a courtesy filter; listing still works
		// when the moderation store is down.
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldUserID, userID).Msg("block list unavailable, listing unfiltered")
		blocked = nil
	}

	visible := lo.Filter(rooms, func(r *domain.Room, _ int) bool {
		return !r.Participants.ContainsAny(blocked)
	})

	items := lo.Map(visible, func(r *domain.Room, _ int) domain.RoomListItem {
		unread, err := r.Participants.UnreadCount(userID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str(log.FieldRoomID, r.ID).Msg("listed room missing membership record")
		}
		return domain.RoomListItem{
			RoomID:        r.ID,
			Name:          r.Name,
			LastMessage:   r.LastMessage,
			LastMessageAt: r.LastMessageAt,
			UnreadCount:   unread,
		}
	})
	return items, nil
}

func (s *roomService) Leave(ctx context.Context, userID, roomID string) error {
	s.locks.Lock(roomID)
	defer s.locks.Unlock(roomID)

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if err := room.Leave(userID); err != nil {
		return err
	}
	if err := s.rooms.Save(ctx, room); err != nil {
		return err
	}
	audit.Log(ctx, audit.ActionLeaveRoom, userID, roomID, "participant left room")

	_, err = s.validator.FinalizeLeave(ctx, userID, room)
	return err
}

func (s *roomService) ToggleNotification(ctx context.Context, userID, roomID string) error {
	s.locks.Lock(roomID)
	defer s.locks.Unlock(roomID)

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if err := room.ToggleNotification(userID); err != nil {
		return err
	}
	return s.rooms.Save(ctx, room)
}
