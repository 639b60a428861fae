// Package handler exposes the chat service over REST and WebSocket.
package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/unithread/chat-service/internal/domain"
	"github.com/unithread/chat-service/internal/log"
	"github.com/unithread/chat-service/internal/middleware"
	"github.com/unithread/chat-service/internal/response"
	"github.com/unithread/chat-service/internal/service"
)

// Handler handles HTTP requests for the chat service.
type Handler struct {
	rooms          service.RoomService
	chats          service.ChatService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(rooms service.RoomService, chats service.ChatService, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		rooms:          rooms,
		chats:          chats,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		rooms := api.Group("/chats/rooms", h.authMiddleware.RequireAuth())
		{
			rooms.POST("", h.CreateRoom)
			rooms.GET("", h.ListRooms)
			rooms.POST("/:room_id/leave", h.LeaveRoom)
			rooms.POST("/:room_id/notification", h.ToggleNotification)
			rooms.GET("/:room_id/messages", h.GetMessages)
		}
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// CreateRoom opens a chat room from an origin reference. When the pair
// already has a room for the reference, the existing room's ID comes back
// with a 409 so the client can redirect into it.
func (h *Handler) CreateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)

	var req domain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create room request")
		response.BadRequest(c, err.Error())
		return
	}

	roomID, err := h.rooms.Create(ctx, userID, req)
	if err != nil {
		var exists *domain.RoomExistsError
		switch {
		case errors.As(err, &exists):
			response.ConflictWith(c, "ROOM_EXISTS", domain.CreateRoomResponse{RoomID: exists.RoomID})
		case errors.Is(err, domain.ErrSelfChat):
			response.BadRequest(c, "cannot open a chat room with yourself")
		case errors.Is(err, domain.ErrUserNotFound):
			response.NotFound(c, "receiver not found")
		default:
			l.Error().Err(err).Msg("failed to create room")
			response.InternalError(c, "failed to create room")
		}
		return
	}

	response.Created(c, domain.CreateRoomResponse{RoomID: roomID})
}

// ListRooms returns the user's active rooms, newest activity first.
func (h *Handler) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()

	userID := middleware.GetUserID(c)

	items, err := h.rooms.List(ctx, userID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list rooms")
		response.InternalError(c, "failed to list rooms")
		return
	}

	response.Success(c, items)
}

// LeaveRoom marks the user as having left the room.
func (h *Handler) LeaveRoom(c *gin.Context) {
	ctx := c.Request.Context()

	userID := middleware.GetUserID(c)
	roomID := c.Param("room_id")

	if err := h.rooms.Leave(ctx, userID, roomID); err != nil {
		h.writeRoomError(c, err, roomID, "failed to leave room")
		return
	}

	response.Success(c, nil)
}

// ToggleNotification flips the user's notification setting for the room.
func (h *Handler) ToggleNotification(c *gin.Context) {
	ctx := c.Request.Context()

	userID := middleware.GetUserID(c)
	roomID := c.Param("room_id")

	if err := h.rooms.ToggleNotification(ctx, userID, roomID); err != nil {
		h.writeRoomError(c, err, roomID, "failed to toggle notification")
		return
	}

	response.Success(c, nil)
}

// GetMessages returns one page of message history, newest first.
func (h *Handler) GetMessages(c *gin.Context) {
	ctx := c.Request.Context()

	userID := middleware.GetUserID(c)
	roomID := c.Param("room_id")

	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		response.BadRequest(c, "invalid page")
		return
	}

	history, err := h.chats.History(ctx, roomID, userID, page)
	if err != nil {
		h.writeRoomError(c, err, roomID, "failed to get messages")
		return
	}

	response.Success(c, history)
}

func (h *Handler) writeRoomError(c *gin.Context, err error, roomID, msg string) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		response.NotFound(c, "room not found")
	case errors.Is(err, domain.ErrParticipantNotFound):
		response.NotFound(c, "not a participant of this room")
	default:
		log.Ctx(c.Request.Context()).Error().Err(err).Str(log.FieldRoomID, roomID).Msg(msg)
		response.InternalError(c, msg)
	}
}
