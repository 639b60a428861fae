package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/unithread/chat-service/internal/auth"
	"github.com/unithread/chat-service/internal/config"
	"github.com/unithread/chat-service/internal/domain"
	"github.com/unithread/chat-service/internal/hub"
	"github.com/unithread/chat-service/internal/log"
	"github.com/unithread/chat-service/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const wsRequestTimeout = 10 * time.Second

// WSHandler upgrades chat connections and drives the WebSocket protocol.
type WSHandler struct {
	hub      *hub.Hub
	sessions service.SessionService
	chats    service.ChatService
	auth     *auth.Manager
	wsCfg    config.WebSocketConfig
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(h *hub.Hub, sessions service.SessionService, chats service.ChatService, authManager *auth.Manager, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:      h,
		sessions: sessions,
		chats:    chats,
		auth:     authManager,
		wsCfg:    wsCfg,
	}
}

// RegisterRoutes registers the WebSocket endpoint.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/chat", h.HandleWebSocket)
}

// HandleWebSocket authenticates and upgrades the connection. The token
// travels as a query parameter because browsers cannot set headers on
// WebSocket upgrades.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	userID, err := h.auth.ResolveUser(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.L().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), userID, h.hub, conn, h.wsCfg)
	h.hub.Register(client)
	h.sessions.Connect(client.ID)

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleMessage)
		h.cleanup(client)
	}()
}

// cleanup runs when the socket drops: the user exits their current room so
// unread accounting restarts, then the connection leaves the registry.
func (h *WSHandler) cleanup(client *hub.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), wsRequestTimeout)
	defer cancel()

	if err := h.sessions.Unsubscribe(ctx, client.ID, client.UserID); err != nil {
		log.L().Error().Err(err).Str(log.FieldConnectionID, client.ID).Msg("failed to exit room on disconnect")
	}
	h.sessions.Disconnect(client.ID)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsRequestTimeout)
	defer cancel()

	switch base.Type {
	case domain.MsgTypeSubscribe:
		h.handleSubscribe(ctx, client, message)

	case domain.MsgTypeUnsubscribe:
		if err := h.sessions.Unsubscribe(ctx, client.ID, client.UserID); err != nil {
			log.Ctx(ctx).Error().Err(err).Str(log.FieldConnectionID, client.ID).Msg("unsubscribe failed")
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "failed to unsubscribe"))
			return
		}
		h.hub.LeaveRoom(client)

	case domain.MsgTypeSend:
		h.handleSend(ctx, client, message)

	case domain.MsgTypePing:
		client.SendMessage(map[string]string{"type": domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "unknown message type"))
	}
}

func (h *WSHandler) handleSubscribe(ctx context.Context, client *hub.Client, message []byte) {
	var msg domain.SubscribeMessage
	if err := json.Unmarshal(message, &msg); err != nil || msg.RoomID == "" {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid subscribe message"))
		return
	}

	if err := h.sessions.Subscribe(ctx, client.ID, client.UserID, msg.RoomID); err != nil {
		switch {
		case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrParticipantNotFound):
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotFound, "room not found"))
		default:
			log.Ctx(ctx).Error().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("subscribe failed")
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "failed to subscribe"))
		}
		return
	}

	h.hub.JoinRoom(client, msg.RoomID)
	client.SendMessage(domain.SubscribedMessage{Type: domain.MsgTypeSubscribed, RoomID: msg.RoomID})
}

func (h *WSHandler) handleSend(ctx context.Context, client *hub.Client, message []byte) {
	var msg domain.SendMessage
	if err := json.Unmarshal(message, &msg); err != nil || msg.Content == "" {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid chat message"))
		return
	}

	roomID := client.Room()
	if roomID == "" {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotSubscribed, "subscribe to a room first"))
		return
	}

	contentType := domain.ContentType(msg.ContentType)
	if msg.ContentType == "" {
		contentType = domain.ContentTypeText
	}
	if !contentType.Valid() {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "unsupported content type"))
		return
	}

	if _, err := h.chats.Send(ctx, roomID, client.UserID, msg.Content, contentType); err != nil {
		switch {
		case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrParticipantNotFound):
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotFound, "room not found"))
		default:
			log.Ctx(ctx).Error().Err(err).Str(log.FieldRoomID, roomID).Msg("send failed")
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "failed to send message"))
		}
	}
}
