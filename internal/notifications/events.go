package notifications

import (
	"encoding/json"
	"errors"
	"fmt"

	"dermai/internal/models"
)

// Outbound event types.
const (
	EventConnected         = "connected"
	EventRoomsJoined       = "rooms_joined"
	EventJoined            = "joined"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventNewMessage        = "new_message"
	EventMessagesRead      = "messages_read"
	EventNotification      = "notification"
	EventError             = "error"
	EventMessagesDropped   = "messages_dropped"
	EventServerShutdown    = "server_shutdown"
	EventUserStatus        = "user_status"
)

// Inbound event types.
const (
	EventJoin        = "join"
	EventLeave       = "leave"
	EventTyping      = "typing"
	EventStopTyping  = "stop_typing"
	EventSendMessage = "send_message"
	EventMarkRead    = "mark_read"
)

// Event is the envelope every realtime frame uses: {"type": ..., "payload": ...}.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Encode marshals the event for the wire.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// InboundEvent is a client frame on the chat socket.
type InboundEvent struct {
	Type           string `json:"type"`
	ConversationID uint   `json:"conversation_id,omitempty"`
	Text           string `json:"text,omitempty"`
	ClientRef      string `json:"client_ref,omitempty"`
}

// DecodeInbound parses a client frame. A missing type is an error.
func DecodeInbound(raw []byte) (InboundEvent, error) {
	var in InboundEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("malformed event: %w", err)
	}
	if in.Type == "" {
		return in, fmt.Errorf("event type is required")
	}
	return in, nil
}

type ConnectedPayload struct {
	UserID uint        `json:"user_id"`
	ConnID string      `json:"conn_id"`
	Role   models.Role `json:"role"`
}

type RoomsJoinedPayload struct {
	ConversationIDs []uint `json:"conversation_ids"`
}

type JoinedPayload struct {
	ConversationID uint `json:"conversation_id"`
}

type TypingPayload struct {
	ConversationID uint   `json:"conversation_id"`
	UserID         uint   `json:"user_id"`
	DisplayName    string `json:"display_name,omitempty"`
}

type NewMessagePayload struct {
	ConversationID uint            `json:"conversation_id"`
	Message        *models.Message `json:"message"`
	SenderName     string          `json:"sender_name,omitempty"`
}

type MessagesReadPayload struct {
	ConversationID uint        `json:"conversation_id"`
	UserID         uint        `json:"user_id"`
	ReaderRole     models.Role `json:"reader_role"`
	ReadCount      int64       `json:"read_count"`
}

// ErrorPayload is sent only to the connection that caused the error.
// Text echoes a failed send so the client can restore its input.
type ErrorPayload struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	Event          string `json:"event,omitempty"`
	ConversationID uint   `json:"conversation_id,omitempty"`
	ClientRef      string `json:"client_ref,omitempty"`
	Text           string `json:"text,omitempty"`
}

type UserStatusPayload struct {
	UserID uint   `json:"user_id"`
	Status string `json:"status"`
}

func NewMessageEvent(msg *models.Message, senderName string) Event {
	return Event{Type: EventNewMessage, Payload: NewMessagePayload{
		ConversationID: msg.ConversationID,
		Message:        msg,
		SenderName:     senderName,
	}}
}

func NotificationEvent(n *models.Notification) Event {
	return Event{Type: EventNotification, Payload: n}
}

// ErrorEvent builds an error event from err, falling back to INTERNAL_ERROR without leaking details.
func ErrorEvent(err error, in InboundEvent) Event {
	code := models.CodeOf(err)
	msg := "Internal server error"
	var appErr *models.AppError
	switch {
	case code == models.CodeInternal:
	case errors.As(err, &appErr):
		msg = appErr.Message
	default:
		msg = err.Error()
	}
	p := ErrorPayload{
		Code:           code,
		Message:        msg,
		Event:          in.Type,
		ConversationID: in.ConversationID,
		ClientRef:      in.ClientRef,
	}
	if in.Type == EventSendMessage {
		p.Text = in.Text
	}
	return Event{Type: EventError, Payload: p}
}
