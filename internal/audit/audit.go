package audit

import (
	"context"

	"github.com/unithread/chat-service/internal/log"
)

// Audit actions for the chat service.
const (
	ActionCreateRoom = "chat.room.create"
	ActionLeaveRoom  = "chat.room.leave"
	ActionDeleteRoom = "chat.room.delete"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, userID, roomID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(log.FieldRoomID, roomID).
		Msg(msg)
}
