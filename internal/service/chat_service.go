package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/unithread/chat-service/internal/cache"
	"github.com/unithread/chat-service/internal/domain"
	"github.com/unithread/chat-service/internal/events"
	"github.com/unithread/chat-service/internal/locks"
	"github.com/unithread/chat-service/internal/log"
	"github.com/unithread/chat-service/internal/pubsub"
	"github.com/unithread/chat-service/internal/repository"
)

// historyPageSize is the fixed page size for message history.
const historyPageSize = 20

type chatService struct {
	rooms      repository.RoomRepository
	messages   repository.MessageRepository
	dispatcher *events.Dispatcher
	pub        pubsub.Publisher
	history    cache.HistoryCache
	cacheTTL   time.Duration
	locks      *locks.Keyed
	group      singleflight.Group
}

// NewChatService creates the messaging service.
func NewChatService(
	rooms repository.RoomRepository,
	messages repository.MessageRepository,
	dispatcher *events.Dispatcher,
	pub pubsub.Publisher,
	history cache.HistoryCache,
	cacheTTL time.Duration,
	roomLocks *locks.Keyed,
) ChatService {
	return &chatService{
		rooms:      rooms,
		messages:   messages,
		dispatcher: dispatcher,
		pub:        pub,
		history:    history,
		cacheTTL:   cacheTTL,
		locks:      roomLocks,
	}
}

func (s *chatService) Send(ctx context.Context, roomID, senderID, content string, contentType domain.ContentType) (*domain.Message, error) {
	if !contentType.Valid() {
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}

	s.locks.Lock(roomID)
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		s.locks.Unlock(roomID)
		return nil, err
	}
	if _, ok := room.Participants.Get(senderID); !ok {
		s.locks.Unlock(roomID)
		return nil, domain.ErrParticipantNotFound
	}

	// Sending into a room the peer left pulls them back in.
	if room.ReactivateReceivers(senderID) {
		if err := s.rooms.Save(ctx, room); err != nil {
			s.locks.Unlock(roomID)
			return nil, err
		}
	}

	msg := &domain.Message{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		SenderID:    senderID,
		Content:     content,
		ContentType: contentType,
		UnreadCount: room.Participants.Size() - room.Participants.ConnectedCount(),
		CreatedAt:   time.Now().UTC(),
	}
	err = s.messages.Insert(ctx, msg)
	s.locks.Unlock(roomID)
	if err != nil {
		return nil, err
	}

	// Post-commit effects are fire-and-forget from the caller's view.
	s.dispatcher.MessageArrived(*msg)
	s.dispatcher.NotifyRecipients(roomID, senderID)
	s.broadcast(ctx, msg)

	return msg, nil
}

// broadcast pushes the new message to everyone subscribed to the room.
// Best effort: the message is already durable, live delivery failures only
// cost a refresh.
func (s *chatService) broadcast(ctx context.Context, msg *domain.Message) {
	event, err := pubsub.NewEvent(pubsub.EventMessageNew, msg)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to marshal message event")
		return
	}
	if err := s.pub.Publish(ctx, pubsub.RoomChannel(msg.RoomID), event); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("live message broadcast failed")
	}
}

func (s *chatService) History(ctx context.Context, roomID, userID string, page int) (*domain.HistoryResponse, error) {
	if page < 0 {
		page = 0
	}

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	whenLeaved, err := room.Participants.WhenLeaved(userID)
	if err != nil {
		return nil, err
	}

	// Page 0 always hits the store: its residual unread counts change when
	// a participant enters the room.
	if page == 0 {
		msgs, err := s.fetchPage(ctx, roomID, whenLeaved, page)
		if err != nil {
			return nil, err
		}
		return &domain.HistoryResponse{Messages: msgs, UserID: userID}, nil
	}

	key := s.history.BuildKey(roomID, userID, page)
	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		cached, err := s.history.Get(ctx, key)
		if err == nil {
			return cached.Messages, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("history cache read failed")
		}

		msgs, err := s.fetchPage(ctx, roomID, whenLeaved, page)
		if err != nil {
			return nil, err
		}
		if err := s.history.Set(ctx, key, &cache.HistoryPage{Messages: msgs}, s.cacheTTL); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("history cache write failed")
		}
		return msgs, nil
	})
	if err != nil {
		return nil, err
	}
	return &domain.HistoryResponse{Messages: result.([]domain.Message), UserID: userID}, nil
}

// fetchPage reads one history page, clipped to messages after the user's
// leave timestamp when they left and came back.
func (s *chatService) fetchPage(ctx context.Context, roomID string, whenLeaved *time.Time, page int) ([]domain.Message, error) {
	if whenLeaved != nil {
		return s.messages.ListByRoomAfter(ctx, roomID, *whenLeaved, page, historyPageSize)
	}
	return s.messages.ListByRoom(ctx, roomID, page, historyPageSize)
}
