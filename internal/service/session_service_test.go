package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unithread/chat-service/internal/domain"
	"github.com/unithread/chat-service/internal/pubsub"
)

func TestSubscribe_Enters_And_Assigns(t *testing.T) {
	req := require.New(t)
	e := newEnv()
	defer e.close()
	svc := e.sessionService()
	ctx := context.Background()

	roomID := e.createRoom(t, "alice", "bob", "post-1")
	svc.Connect("conn-1")

	req.NoError(svc.Subscribe(ctx, "conn-1", "bob", roomID))

	assigned, ok := e.registry.Get("conn-1")
	req.True(ok)
	req.Equal(roomID, assigned)

	room, err := e.rooms.GetByID(ctx, roomID)
	req.NoError(err)
	p, _ := room.Participants.Get("bob")
	req.True(p.Connected)
	req.Zero(p.UnreadCount)
}

func TestSubscribe_Unknown_Room(t *testing.T) {
	req := require.New(t)
	e := newEnv()
	defer e.close()
	svc := e.sessionService()

	svc.Connect("conn-1")
	err := svc.Subscribe(context.Background(), "conn-1", "bob", "no-such-room")
	req.ErrorIs(err, domain.ErrRoomNotFound)

	_, ok := e.registry.Get("conn-1")
	req.False(ok)
}

func TestSubscribe_Non_Participant(t *testing.T) {
	req := require.New(t)
	e := newEnv()
	defer e.close()
	svc := e.sessionService()

	roomID := e.createRoom(t, "alice", "bob", "post-1")
	svc.Connect("conn-1")

	err := svc.Subscribe(context.Background(), "conn-1", "carol", roomID)
	req.ErrorIs(err, domain.ErrParticipantNotFound)
}

func TestSubscribe_Reconciles_Pending_Unread(t *testing.T) {
	req := require.New(t)
	e := newEnv()
	defer e.close()
	sessions := e.sessionService()
	chats := e.chatService()
	ctx := context.Background()

	roomID := e.createRoom(t, "alice", "bob", "post-1")

	// Given alice sent three messages while bob was away
	var msgIDs []string
	for i := 0; i < 3; i++ {
		msg, err := chats.Send(ctx, roomID, "alice", "hi", domain.ContentTypeText)
		req.NoError(err)
		req.Equal(2, msg.UnreadCount) // both participants away
		msgIDs = append(msgIDs, msg.ID)
	}
	req.Eventually(func() bool {
		room, err := e.rooms.GetByID(ctx, roomID)
		if err != nil {
			return false
		}
		unread, err := room.Participants.UnreadCount("bob")
		return err == nil && unread == 3
	}, time.Second, 10*time.Millisecond)

	// When bob subscribes
	sessions.Connect("conn-1")
	req.NoError(sessions.Subscribe(ctx, "conn-1", "bob", roomID))

	// Then each pending message's residual count drops by one
	for _, id := range msgIDs {
		req.Equal(1, e.messages.unreadOf(roomID, id))
	}

	// And the reconciled counts are broadcast to the room
	req.Eventually(func() bool {
		for _, ev := range e.pub.published(pubsub.RoomChannel(roomID)) {
			if ev.Type == pubsub.EventMessageRead {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	var payload pubsub.MessageReadPayload
	for _, ev := range e.pub.published(pubsub.RoomChannel(roomID)) {
		if ev.Type == pubsub.EventMessageRead {
			req.NoError(ev.UnmarshalPayload(&payload))
		}
	}
	req.Equal(roomID, payload.RoomID)
	req.Len(payload.Messages, 3)
	for _, m := range payload.Messages {
		req.Equal(1, m.UnreadCount)
	}
}

func TestSubscribe_Repairs_Unread_Shortfall(t *testing.T) {
	req := require.New(t)
	e := newEnv()
	defer e.close()
	svc := e.sessionService()
	ctx := context.Background()

	roomID := e.createRoom(t, "alice", "bob", "post-1")

	// Given a pending count larger than the stored history
	room, err := e.rooms.GetByID(ctx, roomID)
	req.NoError(err)
	p, _ := room.Participants.Get("bob")
	p.UnreadCount = 5
	req.NoError(e.rooms.Save(ctx, room))

	req.NoError(e.messages.Insert(ctx, &domain.Message{
		ID: "only", RoomID: roomID, SenderID: "alice", Content: "x",
		ContentType: domain.ContentTypeText, UnreadCount: 1,
		CreatedAt: time.Now().UTC(),
	}))

	// When bob subscribes, entry succeeds and what exists is reconciled
	svc.Connect("conn-1")
	req.NoError(svc.Subscribe(ctx, "conn-1", "bob", roomID))

	req.Zero(e.messages.unreadOf(roomID, "only"))

	room, err = e.rooms.GetByID(ctx, roomID)
	req.NoError(err)
	p, _ = room.Participants.Get("bob")
	req.True(p.Connected)
	req.Zero(p.UnreadCount)
}

func TestSubscribe_Without_Pending_Skips_Reconciliation(t *testing.T) {
	req := require.New(t)
	e := newEnv()
	defer e.close()
	svc := e.sessionService()
	ctx := context.Background()

	roomID := e.createRoom(t, "alice", "bob", "post-1")

	svc.Connect("conn-1")
	req.NoError(svc.Subscribe(ctx, "conn-1", "bob", roomID))

	// No message_read broadcast when nothing was pending
	req.Never(func() bool {
		return len(e.pub.published(pubsub.RoomChannel(roomID))) > 0
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestSubscribe_Switches_Rooms(t *testing.T) {
	req := require.New(t)
	e := newEnv()
	defer e.close()
	svc := e.sessionService()
	ctx := context.Background()

	first := e.createRoom(t, "alice", "bob", "post-1")
	second := e.createRoom(t, "carol", "bob", "post-2")

	svc.Connect("conn-1")
	req.NoError(svc.Subscribe(ctx, "conn-1", "bob", first))
	req.NoError(svc.Subscribe(ctx, "conn-1", "bob", second))

	assigned, ok := e.registry.Get("conn-1")
	req.True(ok)
	req.Equal(second, assigned)

	// Bob exited the first room when the connection moved on
	room, err := e.rooms.GetByID(ctx, first)
	req.NoError(err)
	p, _ := room.Participants.Get("bob")
	req.False(p.Connected)
}

func TestUnsubscribe_Exits_And_Keeps_Unread_Flow(t *testing.T) {
	req := require.New(t)
	e := newEnv()
	defer e.close()
	sessions := e.sessionService()
	chats := e.chatService()
	ctx := context.Background()

	roomID := e.createRoom(t, "alice", "bob", "post-1")
	sessions.Connect("conn-1")
	req.NoError(sessions.Subscribe(ctx, "conn-1", "bob", roomID))

	req.NoError(sessions.Unsubscribe(ctx, "conn-1", "bob"))

	_, ok := e.registry.Get("conn-1")
	req.False(ok)

	// Messages sent after the exit count against bob again
	_, err := chats.Send(ctx, roomID, "alice", "while away", domain.ContentTypeText)
	req.NoError(err)

	req.Eventually(func() bool {
		room, err := e.rooms.GetByID(ctx, roomID)
		if err != nil {
			return false
		}
		unread, err := room.Participants.UnreadCount("bob")
		return err == nil && unread == 1
	}, time.Second, 10*time.Millisecond)
}

func TestUnsubscribe_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	e := newEnv()
	defer e.close()
	svc := e.sessionService()
	ctx := context.Background()

	// Unknown connection: nothing to do
	req.NoError(svc.Unsubscribe(ctx, "conn-1", "bob"))

	// Connected but never subscribed: still a no-op
	svc.Connect("conn-1")
	req.NoError(svc.Unsubscribe(ctx, "conn-1", "bob"))
	req.NoError(svc.Unsubscribe(ctx, "conn-1", "bob"))
}

func TestUnsubscribe_Tolerates_Deleted_Room(t *testing.T) {
	req := require.New(t)
	e := newEnv()
	defer e.close()
	svc := e.sessionService()
	ctx := context.Background()

	roomID := e.createRoom(t, "alice", "bob", "post-1")
	svc.Connect("conn-1")
	req.NoError(svc.Subscribe(ctx, "conn-1", "bob", roomID))

	// The room vanishes while bob views it
	req.NoError(e.rooms.SoftDelete(ctx, roomID))

	req.NoError(svc.Unsubscribe(ctx, "conn-1", "bob"))
	_, ok := e.registry.Get("conn-1")
	req.False(ok)
}

func TestDisconnect_Removes_Connection(t *testing.T) {
	req := require.New(t)
	e := newEnv()
	defer e.close()
	svc := e.sessionService()

	svc.Connect("conn-1")
	req.Equal(1, e.registry.Len())

	svc.Disconnect("conn-1")
	req.Zero(e.registry.Len())

	// Repeated disconnects are harmless
	svc.Disconnect("conn-1")
}

func TestMessage_Flow_Send_Then_Subscribe(t *testing.T) {
	req := require.New(t)
	e := newEnv()
	defer e.close()
	sessions := e.sessionService()
	chats := e.chatService()
	ctx := context.Background()

	roomID := e.createRoom(t, "alice", "bob", "post-1")

	// Alice is watching the room, bob is away
	sessions.Connect("conn-a")
	req.NoError(sessions.Subscribe(ctx, "conn-a", "alice", roomID))

	msg, err := chats.Send(ctx, roomID, "alice", "hello", domain.ContentTypeText)
	req.NoError(err)
	req.Equal(1, msg.UnreadCount)

	// Bob's pending counter catches the message
	req.Eventually(func() bool {
		room, err := e.rooms.GetByID(ctx, roomID)
		if err != nil {
			return false
		}
		unread, err := room.Participants.UnreadCount("bob")
		return err == nil && unread == 1
	}, time.Second, 10*time.Millisecond)

	// When bob opens the room, the message is marked seen everywhere
	sessions.Connect("conn-b")
	req.NoError(sessions.Subscribe(ctx, "conn-b", "bob", roomID))

	req.Zero(e.messages.unreadOf(roomID, msg.ID))

	room, err := e.rooms.GetByID(ctx, roomID)
	req.NoError(err)
	unread, err := room.Participants.UnreadCount("bob")
	req.NoError(err)
	req.Zero(unread)
}
