package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unithread/chat-service/internal/domain"
	"github.com/unithread/chat-service/internal/locks"
	"github.com/unithread/chat-service/internal/pubsub"
)

type memRooms struct {
	mu    sync.Mutex
	rooms map[string]*domain.Room
}

func newMemRooms(rooms ...*domain.Room) *memRooms {
	m := &memRooms{rooms: make(map[string]*domain.Room)}
	for _, r := range rooms {
		m.rooms[r.ID] = r
	}
	return m
}

func (m *memRooms) Create(ctx context.Context, room *domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.ID] = room
	return nil
}

func (m *memRooms) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	clone := *room
	clone.Participants = make(domain.Participants, len(room.Participants))
	for userID, p := range room.Participants {
		cp := *p
		clone.Participants[userID] = &cp
	}
	return &clone, nil
}

func (m *memRooms) Save(ctx context.Context, room *domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.ID] = room
	return nil
}

func (m *memRooms) SoftDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, id)
	return nil
}

func (m *memRooms) FindByReferencePair(ctx context.Context, referenceID, senderID, receiverID string) (*domain.Room, error) {
	return nil, domain.ErrRoomNotFound
}

func (m *memRooms) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	return nil, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*pubsub.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, event *pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	event.Channel = channel
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) all() []*pubsub.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*pubsub.Event(nil), p.events...)
}

type recordingNotifier struct {
	mu    sync.Mutex
	users []string
	err   error
}

func (n *recordingNotifier) Notify(ctx context.Context, userID, roomID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.users = append(n.users, userID)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.users...)
}

func testRoom(id string) *domain.Room {
	room := domain.NewRoom("r", "ref", "alice", "bob")
	room.ID = id
	return room
}

func TestMessageArrived_Updates_Room_And_Publishes(t *testing.T) {
	req := require.New(t)
	rooms := newMemRooms(testRoom("room-1"))
	pub := &recordingPublisher{}
	n := &recordingNotifier{}

	d := New(rooms, locks.NewKeyed(), pub, n, 8)
	d.Start()

	d.MessageArrived(domain.Message{
		ID: "m1", RoomID: "room-1", SenderID: "alice",
		Content: "hello", CreatedAt: time.Now().UTC(),
	})
	d.Close()

	room, err := rooms.GetByID(context.Background(), "room-1")
	req.NoError(err)
	req.Equal("hello", room.LastMessage)
	unread, err := room.Participants.UnreadCount("bob")
	req.NoError(err)
	req.Equal(1, unread)

	events := pub.all()
	req.Len(events, 1)
	req.Equal(pubsub.EventRoomUpdate, events[0].Type)
	req.Equal(pubsub.UserChannel("bob"), events[0].Channel)

	var payload pubsub.RoomUpdatePayload
	req.NoError(events[0].UnmarshalPayload(&payload))
	req.Equal("room-1", payload.RoomID)
	req.Equal(1, payload.UnreadCount)
}

func TestMessageArrived_Keeps_FIFO_Per_Room(t *testing.T) {
	req := require.New(t)
	rooms := newMemRooms(testRoom("room-1"))
	pub := &recordingPublisher{}

	d := New(rooms, locks.NewKeyed(), pub, &recordingNotifier{}, 32)
	d.Start()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		d.MessageArrived(domain.Message{
			ID: fmt.Sprintf("m%d", i), RoomID: "room-1", SenderID: "alice",
			Content: fmt.Sprintf("msg %d", i), CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		})
	}
	d.Close()

	room, err := rooms.GetByID(context.Background(), "room-1")
	req.NoError(err)
	req.Equal("msg 4", room.LastMessage)
	unread, err := room.Participants.UnreadCount("bob")
	req.NoError(err)
	req.Equal(5, unread)

	// Bob's room updates arrive in send order with monotonically rising counts
	var counts []int
	for _, ev := range pub.all() {
		var payload pubsub.RoomUpdatePayload
		req.NoError(ev.UnmarshalPayload(&payload))
		counts = append(counts, payload.UnreadCount)
	}
	req.Equal([]int{1, 2, 3, 4, 5}, counts)
}

func TestNotifyRecipients_Targets_Away_Users(t *testing.T) {
	req := require.New(t)
	room := testRoom("room-1")
	req.NoError(room.Enter("alice"))
	rooms := newMemRooms(room)
	n := &recordingNotifier{}

	d := New(rooms, locks.NewKeyed(), &recordingPublisher{}, n, 8)
	d.Start()
	d.NotifyRecipients("room-1", "alice")
	d.Close()

	req.Equal([]string{"bob"}, n.notified())
}

func TestRoomCreated_Notifies_Receiver(t *testing.T) {
	req := require.New(t)
	rooms := newMemRooms(testRoom("room-1"))
	n := &recordingNotifier{}

	d := New(rooms, locks.NewKeyed(), &recordingPublisher{}, n, 8)
	d.Start()
	d.RoomCreated("room-1", "bob")
	d.Close()

	req.Equal([]string{"bob"}, n.notified())
}

func TestRoomCreated_Skips_Muted_Receiver(t *testing.T) {
	req := require.New(t)
	room := testRoom("room-1")
	req.NoError(room.ToggleNotification("bob"))
	rooms := newMemRooms(room)
	n := &recordingNotifier{}

	d := New(rooms, locks.NewKeyed(), &recordingPublisher{}, n, 8)
	d.Start()
	d.RoomCreated("room-1", "bob")
	d.Close()

	req.Empty(n.notified())
}

func TestUnreadReconciled_Broadcasts_To_Room(t *testing.T) {
	req := require.New(t)
	pub := &recordingPublisher{}

	d := New(newMemRooms(), locks.NewKeyed(), pub, &recordingNotifier{}, 8)
	d.Start()
	d.UnreadReconciled("room-1", []domain.Message{
		{ID: "m1", UnreadCount: 0},
		{ID: "m2", UnreadCount: 1},
	})
	d.Close()

	events := pub.all()
	req.Len(events, 1)
	req.Equal(pubsub.EventMessageRead, events[0].Type)
	req.Equal(pubsub.RoomChannel("room-1"), events[0].Channel)

	var payload pubsub.MessageReadPayload
	req.NoError(events[0].UnmarshalPayload(&payload))
	req.Equal("room-1", payload.RoomID)
	req.Len(payload.Messages, 2)
	req.Equal("m1", payload.Messages[0].MessageID)
	req.Zero(payload.Messages[0].UnreadCount)
}

func TestEffects_Are_Isolated(t *testing.T) {
	req := require.New(t)
	rooms := newMemRooms(testRoom("room-1"))
	pub := &recordingPublisher{}
	n := &recordingNotifier{err: errors.New("sink down")}

	d := New(rooms, locks.NewKeyed(), pub, n, 8)
	d.Start()

	// A broken notification sink must not block arrival processing
	d.NotifyRecipients("room-1", "alice")
	d.MessageArrived(domain.Message{
		ID: "m1", RoomID: "room-1", SenderID: "alice",
		Content: "hello", CreatedAt: time.Now().UTC(),
	})
	d.Close()

	room, err := rooms.GetByID(context.Background(), "room-1")
	req.NoError(err)
	req.Equal("hello", room.LastMessage)
	req.Len(pub.all(), 1)
}

func TestArrival_For_Deleted_Room_Is_Dropped(t *testing.T) {
	req := require.New(t)
	pub := &recordingPublisher{}

	d := New(newMemRooms(), locks.NewKeyed(), pub, &recordingNotifier{}, 8)
	d.Start()
	d.MessageArrived(domain.Message{ID: "m1", RoomID: "gone", SenderID: "alice"})
	d.Close()

	req.Empty(pub.all())
}

func TestEnqueue_After_Close_Drops_Without_Panic(t *testing.T) {
	req := require.New(t)
	rooms := newMemRooms(testRoom("room-1"))
	pub := &recordingPublisher{}
	n := &recordingNotifier{}

	d := New(rooms, locks.NewKeyed(), pub, n, 8)
	d.Start()
	d.Close()

	// Late websocket sessions may still fire effects during shutdown;
	// they must be dropped, not crash the process.
	req.NotPanics(func() {
		d.MessageArrived(domain.Message{
			ID: "m1", RoomID: "room-1", SenderID: "alice",
			Content: "late", CreatedAt: time.Now().UTC(),
		})
		d.NotifyRecipients("room-1", "alice")
		d.RoomCreated("room-1", "bob")
		d.UnreadReconciled("room-1", nil)
	})
	req.NotPanics(d.Close)

	room, err := rooms.GetByID(context.Background(), "room-1")
	req.NoError(err)
	req.Empty(room.LastMessage)
	req.Empty(pub.all())
	req.Empty(n.notified())
}
