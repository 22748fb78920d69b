package server

import (
	"net/http"

	"github.com/npezzotti/go-chatrooms/internal/types"
)

// Inbound event names.
const (
	EventJoinRoom      = "join-room"
	EventSendMessage   = "send-message"
	EventDeleteMessage = "delete-message"
	EventDeleteRoom    = "delete-room"
)

// Outbound event names.
const (
	EventRoomHistory       = "room-history"
	EventMessage           = "message"
	EventMessageDeleted    = "message-deleted"
	EventDeleteSuccess     = "delete-success"
	EventDeleteError       = "delete-error"
	EventRoomCreated       = "chatroom-created"
	EventRoomDeleted       = "chatroom-deleted"
	EventDeleteRoomSuccess = "delete-room-success"
	EventDeleteRoomError   = "delete-room-error"
	EventError             = "error"
)

// ClientEvent is an inbound event after a transport has decoded it. Fields not
// used by an event type are left empty.
type ClientEvent struct {
	Type      string `json:"-"`
	Username  string `json:"username,omitempty"`
	RoomId    string `json:"roomId,omitempty"`
	Message   string `json:"message,omitempty"`
	MessageId string `json:"messageId,omitempty"`
}

// ServerEvent is an outbound event. Transports choose how to frame it.
type ServerEvent struct {
	Type    string
	Payload any
}

type RoomHistory struct {
	RoomId   string          `json:"roomId"`
	Messages []types.Message `json:"messages"`
}

type MessageDeleted struct {
	MessageId string `json:"messageId"`
	RoomId    string `json:"roomId"`
}

type DeleteSuccess struct {
	MessageId string `json:"messageId"`
}

type RoomDeleted struct {
	RoomId string `json:"roomId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func NewErrorEvent(eventType string, code int, msg string) *ServerEvent {
	return &ServerEvent{
		Type: eventType,
		Payload: ErrorPayload{
			Message: msg,
			Code:    code,
		},
	}
}

func ErrInvalidMessage() *ServerEvent {
	return NewErrorEvent(EventError, http.StatusBadRequest, "Invalid message format")
}

func ErrUnknownMessageType() *ServerEvent {
	return NewErrorEvent(EventError, http.StatusBadRequest, "Unknown message type")
}
