package hub

import (
	"context"
	"encoding/json"

	"github.com/unithread/chat-service/internal/log"
	"github.com/unithread/chat-service/internal/pubsub"
)

// Bridge forwards delivery-channel events into the hub so events published
// by any instance reach the sockets held by this one.
type Bridge struct {
	hub *Hub
	sub pubsub.Subscriber
}

// NewBridge creates a bridge between the subscriber and the hub.
func NewBridge(h *Hub, sub pubsub.Subscriber) *Bridge {
	return &Bridge{hub: h, sub: sub}
}

// Run subscribes to the user and room channel patterns and routes events
// until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	userCh, err := b.sub.SubscribePattern(ctx, pubsub.PatternUser)
	if err != nil {
		return err
	}
	roomCh, err := b.sub.SubscribePattern(ctx, pubsub.PatternRoom)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-userCh:
			if !ok {
				return nil
			}
			b.routeUser(event)
		case event, ok := <-roomCh:
			if !ok {
				return nil
			}
			b.routeRoom(event)
		}
	}
}

func (b *Bridge) routeUser(event *pubsub.Event) {
	userID, ok := pubsub.UserFromChannel(event.Channel)
	if !ok {
		log.L().Warn().Str("channel", event.Channel).Msg("unroutable user event")
		return
	}
	frame, err := frameFor(event)
	if err != nil {
		log.L().Error().Err(err).Str("channel", event.Channel).Msg("failed to frame user event")
		return
	}
	b.hub.SendRawToUser(userID, frame)
}

func (b *Bridge) routeRoom(event *pubsub.Event) {
	roomID, ok := pubsub.RoomFromChannel(event.Channel)
	if !ok {
		log.L().Warn().Str("channel", event.Channel).Msg("unroutable room event")
		return
	}
	frame, err := frameFor(event)
	if err != nil {
		log.L().Error().Err(err).Str("channel", event.Channel).Msg("failed to frame room event")
		return
	}
	b.hub.BroadcastRawToRoom(roomID, frame)
}

// frameFor converts a delivery event into the client wire frame. The event
// types map one-to-one onto WebSocket message types, so the frame is the
// payload with the type injected.
func frameFor(event *pubsub.Event) ([]byte, error) {
	switch event.Type {
	case pubsub.EventMessageNew, pubsub.EventRoomUpdate, pubsub.EventMessageRead:
	default:
		return nil, &unknownEventError{eventType: event.Type}
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return nil, err
	}
	typeJSON, err := json.Marshal(event.Type)
	if err != nil {
		return nil, err
	}
	payload["type"] = typeJSON
	return json.Marshal(payload)
}

type unknownEventError struct {
	eventType string
}

func (e *unknownEventError) Error() string {
	return "unknown delivery event type: " + e.eventType
}
