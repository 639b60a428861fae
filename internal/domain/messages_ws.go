package domain

// WebSocket message types, client to server.
const (
	MsgTypeSubscribe   = "subscribe"
	MsgTypeUnsubscribe = "unsubscribe"
	MsgTypeSend        = "message"
	MsgTypePing        = "ping"
)

// WebSocket message types, server to client.
const (
	MsgTypeSubscribed  = "subscribed"
	MsgTypeMessageNew  = "message_new"
	MsgTypeRoomUpdate  = "room_update"
	MsgTypeMessageRead = "message_read"
	MsgTypePong        = "pong"
	MsgTypeError       = "error"
)

// Error codes sent over the WebSocket.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNotFound      = "not_found"
	ErrCodeNotSubscribed = "not_subscribed"
	ErrCodeInternalError = "internal_error"
)

// BaseMessage is parsed first to determine the message type.
type BaseMessage struct {
	Type string `json:"type"`
}

// SubscribeMessage subscribes the connection to a room.
type SubscribeMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// SendMessage carries a new chat message from the client.
type SendMessage struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// SubscribedMessage confirms a room subscription.
type SubscribedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// ErrorMessage reports a failure back to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorMessage builds an ErrorMessage.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{Type: MsgTypeError, Code: code, Message: message}
}
