package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unithread/chat-service/internal/cache"
	"github.com/unithread/chat-service/internal/domain"
	"github.com/unithread/chat-service/internal/events"
	"github.com/unithread/chat-service/internal/locks"
	"github.com/unithread/chat-service/internal/pubsub"
	"github.com/unithread/chat-service/internal/registry"
)

// fakeRoomRepo stores deep copies so mutations only become visible through
// Save, mirroring a real store.
type fakeRoomRepo struct {
	mu      sync.Mutex
	rooms   map[string]*domain.Room
	deleted map[string]bool
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		rooms:   make(map[string]*domain.Room),
		deleted: make(map[string]bool),
	}
}

func cloneRoom(room *domain.Room) *domain.Room {
	clone := *room
	clone.Participants = make(domain.Participants, len(room.Participants))
	for userID, p := range room.Participants {
		cp := *p
		if p.WhenLeaved != nil {
			t := *p.WhenLeaved
			cp.WhenLeaved = &t
		}
		clone.Participants[userID] = &cp
	}
	return &clone
}

func (f *fakeRoomRepo) Create(ctx context.Context, room *domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room.ID = uuid.New().String()
	room.CreatedAt = time.Now().UTC()
	f.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (f *fakeRoomRepo) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok || f.deleted[id] {
		return nil, domain.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (f *fakeRoomRepo) Save(ctx context.Context, room *domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[room.ID]; !ok {
		return domain.ErrRoomNotFound
	}
	f.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (f *fakeRoomRepo) SoftDelete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[id]; !ok || f.deleted[id] {
		return domain.ErrRoomNotFound
	}
	f.deleted[id] = true
	return nil
}

func (f *fakeRoomRepo) FindByReferencePair(ctx context.Context, referenceID, senderID, receiverID string) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, room := range f.rooms {
		if f.deleted[id] || room.ReferenceID != referenceID {
			continue
		}
		_, hasSender := room.Participants.Get(senderID)
		_, hasReceiver := room.Participants.Get(receiverID)
		if hasSender && hasReceiver {
			return cloneRoom(room), nil
		}
	}
	return nil, domain.ErrRoomNotFound
}

func (f *fakeRoomRepo) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*domain.Room
	for id, room := range f.rooms {
		if f.deleted[id] {
			continue
		}
		p, ok := room.Participants.Get(userID)
		if !ok || p.Leaved {
			continue
		}
		result = append(result, cloneRoom(room))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})
	return result, nil
}

// isDeleted reports whether the room was soft-deleted.
func (f *fakeRoomRepo) isDeleted(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleted[id]
}

// fakeMessageRepo keeps messages per room in insertion order.
type fakeMessageRepo struct {
	mu   sync.Mutex
	msgs map[string][]domain.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{msgs: make(map[string][]domain.Message)}
}

func (f *fakeMessageRepo) Insert(ctx context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[msg.RoomID] = append(f.msgs[msg.RoomID], *msg)
	return nil
}

func (f *fakeMessageRepo) newestFirst(roomID string) []domain.Message {
	stored := f.msgs[roomID]
	result := make([]domain.Message, len(stored))
	for i := range stored {
		result[len(stored)-1-i] = stored[i]
	}
	return result
}

func (f *fakeMessageRepo) ListByRoom(ctx context.Context, roomID string, page, size int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pageOf(f.newestFirst(roomID), page, size), nil
}

func (f *fakeMessageRepo) ListByRoomAfter(ctx context.Context, roomID string, after time.Time, page, size int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var filtered []domain.Message
	for _, m := range f.newestFirst(roomID) {
		if m.CreatedAt.After(after) {
			filtered = append(filtered, m)
		}
	}
	return pageOf(filtered, page, size), nil
}

func (f *fakeMessageRepo) Recent(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pageOf(f.newestFirst(roomID), 0, limit), nil
}

func (f *fakeMessageRepo) DecrementUnread(ctx context.Context, msgs []domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range msgs {
		msgs[i].UnreadCount--
		stored := f.msgs[msgs[i].RoomID]
		for j := range stored {
			if stored[j].ID == msgs[i].ID {
				stored[j].UnreadCount = msgs[i].UnreadCount
			}
		}
	}
	return nil
}

func (f *fakeMessageRepo) Close() error { return nil }

// unreadOf returns the stored residual unread count of a message.
func (f *fakeMessageRepo) unreadOf(roomID, msgID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs[roomID] {
		if m.ID == msgID {
			return m.UnreadCount
		}
	}
	return -1
}

func pageOf(msgs []domain.Message, page, size int) []domain.Message {
	start := page * size
	if start >= len(msgs) {
		return nil
	}
	end := start + size
	if end > len(msgs) {
		end = len(msgs)
	}
	return msgs[start:end]
}

type fakeUserDirectory struct {
	users map[string]bool
}

func (f *fakeUserDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	return f.users[userID], nil
}

type fakeBlockList struct {
	blocked map[string]map[string]struct{}
}

func (f *fakeBlockList) BlockedUserIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	return f.blocked[userID], nil
}

// fakePublisher records published events per channel.
type fakePublisher struct {
	mu     sync.Mutex
	events map[string][]*pubsub.Event
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{events: make(map[string][]*pubsub.Event)}
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, event *pubsub.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event.Channel = channel
	f.events[channel] = append(f.events[channel], event)
	return nil
}

func (f *fakePublisher) published(channel string) []*pubsub.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*pubsub.Event(nil), f.events[channel]...)
}

// fakeNotifier records notification deliveries.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []notification
}

type notification struct {
	userID string
	roomID string
}

func (f *fakeNotifier) Notify(ctx context.Context, userID, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notification{userID: userID, roomID: roomID})
	return nil
}

func (f *fakeNotifier) Close() error { return nil }

func (f *fakeNotifier) notified() []notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification(nil), f.calls...)
}

// fakeHistoryCache is a map-backed HistoryCache.
type fakeHistoryCache struct {
	mu    sync.Mutex
	pages map[string]*cache.HistoryPage
	gets  int
	sets  int
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{pages: make(map[string]*cache.HistoryPage)}
}

func (f *fakeHistoryCache) Get(ctx context.Context, key string) (*cache.HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	page, ok := f.pages[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return page, nil
}

func (f *fakeHistoryCache) Set(ctx context.Context, key string, page *cache.HistoryPage, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.pages[key] = page
	return nil
}

func (f *fakeHistoryCache) BuildKey(roomID, userID string, page int) string {
	return fmt.Sprintf("%s:%s:%d", roomID, userID, page)
}

func (f *fakeHistoryCache) Close() error { return nil }

// env bundles everything a service test needs.
type env struct {
	rooms      *fakeRoomRepo
	messages   *fakeMessageRepo
	users      *fakeUserDirectory
	blocks     *fakeBlockList
	pub        *fakePublisher
	notifier   *fakeNotifier
	history    *fakeHistoryCache
	registry   *registry.StripedRegistry
	locks      *locks.Keyed
	dispatcher *events.Dispatcher
}

func newEnv() *env {
	e := &env{
		rooms:    newFakeRoomRepo(),
		messages: newFakeMessageRepo(),
		users:    &fakeUserDirectory{users: map[string]bool{"alice": true, "bob": true, "carol": true}},
		blocks:   &fakeBlockList{blocked: map[string]map[string]struct{}{}},
		pub:      newFakePublisher(),
		notifier: &fakeNotifier{},
		history:  newFakeHistoryCache(),
		registry: registry.NewStripedRegistry(),
		locks:    locks.NewKeyed(),
	}
	e.dispatcher = events.New(e.rooms, e.locks, e.pub, e.notifier, 64)
	e.dispatcher.Start()
	return e
}

func (e *env) close() {
	e.dispatcher.Close()
}

func (e *env) roomService() RoomService {
	validator := NewRoomValidator(e.rooms, e.users)
	return NewRoomService(e.rooms, validator, e.blocks, e.dispatcher, e.locks)
}

func (e *env) chatService() ChatService {
	return NewChatService(e.rooms, e.messages, e.dispatcher, e.pub, e.history, time.Minute, e.locks)
}

func (e *env) sessionService() SessionService {
	return NewSessionService(e.rooms, e.messages, e.registry, e.dispatcher, e.locks)
}
