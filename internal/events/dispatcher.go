// Package events decouples the chat write path from its side effects.
// Effects run post-commit: services enqueue only after the triggering write
// has been durably stored, and each effect type is consumed by its own
// worker so failures never cross effect boundaries.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/unithread/chat-service/internal/domain"
	"github.com/unithread/chat-service/internal/locks"
	"github.com/unithread/chat-service/internal/log"
	"github.com/unithread/chat-service/internal/notifier"
	"github.com/unithread/chat-service/internal/pubsub"
	"github.com/unithread/chat-service/internal/repository"
)

const handlerTimeout = 10 * time.Second

type arrivedEvent struct {
	msg domain.Message
}

type notifyEvent struct {
	roomID string
	// senderID is set for message notifications; receiverID for
	// room-created notifications.
	senderID   string
	receiverID string
}

type reconciledEvent struct {
	roomID string
	msgs   []domain.Message
}

// Dispatcher fans out send-time and entry-time side effects. One worker
// goroutine per effect type consumes a FIFO queue, which preserves
// per-room ordering within each effect type.
type Dispatcher struct {
	rooms    repository.RoomRepository
	locks    *locks.Keyed
	pub      pubsub.Publisher
	notifier notifier.Notifier

	arrivalCh   chan arrivedEvent
	notifyCh    chan notifyEvent
	reconcileCh chan reconciledEvent

	// mu guards closed against in-flight producers: websocket sessions
	// can still enqueue while the server shuts down, and sending on a
	// closed channel would panic.
	mu     sync.RWMutex
	closed bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a dispatcher with the given queue capacity per effect type.
func New(rooms repository.RoomRepository, roomLocks *locks.Keyed, pub pubsub.Publisher, n notifier.Notifier, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		rooms:       rooms,
		locks:       roomLocks,
		pub:         pub,
		notifier:    n,
		arrivalCh:   make(chan arrivedEvent, queueSize),
		notifyCh:    make(chan notifyEvent, queueSize),
		reconcileCh: make(chan reconciledEvent, queueSize),
	}
}

// Start launches the three effect workers.
func (d *Dispatcher) Start() {
	d.wg.Add(3)
	go d.arrivalWorker()
	go d.notifyWorker()
	go d.reconcileWorker()
}

// Close stops accepting events, drains the queues and waits for the
// workers to finish. Events enqueued after Close are dropped.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		close(d.arrivalCh)
		close(d.notifyCh)
		close(d.reconcileCh)
	})
	d.wg.Wait()
}

// MessageArrived enqueues the arrival effect for a durably stored message:
// last-message update, unread bump for disconnected receivers, and a room
// list refresh pushed to each bumped receiver's private channel.
func (d *Dispatcher) MessageArrived(msg domain.Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.L().Warn().Str(log.FieldRoomID, msg.RoomID).Msg("dispatcher closed, arrival effect dropped")
		return
	}
	d.arrivalCh <- arrivedEvent{msg: msg}
}

// NotifyRecipients enqueues the notification effect for a stored message.
func (d *Dispatcher) NotifyRecipients(roomID, senderID string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.L().Warn().Str(log.FieldRoomID, roomID).Msg("dispatcher closed, notification effect dropped")
		return
	}
	d.notifyCh <- notifyEvent{roomID: roomID, senderID: senderID}
}

// RoomCreated enqueues a notification for the receiver of a new room.
func (d *Dispatcher) RoomCreated(roomID, receiverID string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.L().Warn().Str(log.FieldRoomID, roomID).Msg("dispatcher closed, room notification dropped")
		return
	}
	d.notifyCh <- notifyEvent{roomID: roomID, receiverID: receiverID}
}

// UnreadReconciled enqueues the broadcast of reconciled per-message unread
// counts after a user entered a room.
func (d *Dispatcher) UnreadReconciled(roomID string, msgs []domain.Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.L().Warn().Str(log.FieldRoomID, roomID).Msg("dispatcher closed, reconcile broadcast dropped")
		return
	}
	d.reconcileCh <- reconciledEvent{roomID: roomID, msgs: msgs}
}

func (d *Dispatcher) arrivalWorker() {
	defer d.wg.Done()
	for ev := range d.arrivalCh {
		d.handleArrived(ev)
	}
}

func (d *Dispatcher) notifyWorker() {
	defer d.wg.Done()
	for ev := range d.notifyCh {
		d.handleNotify(ev)
	}
}

func (d *Dispatcher) reconcileWorker() {
	defer d.wg.Done()
	for ev := range d.reconcileCh {
		d.handleReconciled(ev)
	}
}

func (d *Dispatcher) handleArrived(ev arrivedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	l := log.L().With().Str(log.FieldRoomID, ev.msg.RoomID).Str(log.FieldMessageID, ev.msg.ID).Logger()

	d.locks.Lock(ev.msg.RoomID)
	room, err := d.rooms.GetByID(ctx, ev.msg.RoomID)
	if err != nil {
		d.locks.Unlock(ev.msg.RoomID)
		l.Error().Err(err).Msg("arrival effect: room lookup failed")
		return
	}

	room.UpdateLastMessage(ev.msg.Content, ev.msg.CreatedAt)
	updates := room.Participants.DisconnectedReceiversBump(ev.msg.SenderID)

	// Single write covering both the last-message and the unread updates.
	err = d.rooms.Save(ctx, room)
	d.locks.Unlock(ev.msg.RoomID)
	if err != nil {
		l.Error().Err(err).Msg("arrival effect: room save failed")
		return
	}

	for _, u := range updates {
		event, err := pubsub.NewEvent(pubsub.EventRoomUpdate, pubsub.RoomUpdatePayload{
			RoomID:      ev.msg.RoomID,
			LastMessage: ev.msg.Content,
			UnreadCount: u.UnreadCount,
		})
		if err != nil {
			l.Error().Err(err).Msg("arrival effect: payload marshal failed")
			continue
		}
		if err := d.pub.Publish(ctx, pubsub.UserChannel(u.UserID), event); err != nil {
			l.Warn().Err(err).Str(log.FieldUserID, u.UserID).Msg("arrival effect: room update push failed")
		}
	}
}

func (d *Dispatcher) handleNotify(ev notifyEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	l := log.L().With().Str(log.FieldRoomID, ev.roomID).Logger()

	room, err := d.rooms.GetByID(ctx, ev.roomID)
	if err != nil {
		l.Error().Err(err).Msg("notification effect: room lookup failed")
		return
	}

	var targets []string
	if ev.receiverID != "" {
		if p, ok := room.Participants.Get(ev.receiverID); ok && p.NotificationsEnabled {
			targets = []string{ev.receiverID}
		}
	} else {
		targets = room.Participants.UsersToNotify(ev.senderID)
	}

	for _, userID := range targets {
		if err := d.notifier.Notify(ctx, userID, ev.roomID); err != nil {
			l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("notification sink failed")
		}
	}
}

func (d *Dispatcher) handleReconciled(ev reconciledEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	payload := pubsub.MessageReadPayload{RoomID: ev.roomID}
	for _, m := range ev.msgs {
		payload.Messages = append(payload.Messages, pubsub.MessageUnread{
			MessageID:   m.ID,
			UnreadCount: m.UnreadCount,
		})
	}

	event, err := pubsub.NewEvent(pubsub.EventMessageRead, payload)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, ev.roomID).Msg("reconcile effect: payload marshal failed")
		return
	}
	if err := d.pub.Publish(ctx, pubsub.RoomChannel(ev.roomID), event); err != nil {
		log.L().Warn().Err(err).Str(log.FieldRoomID, ev.roomID).Msg("reconcile effect: broadcast failed")
	}
}
