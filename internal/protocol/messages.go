// Package protocol defines the realtime wire format shared with the chat
// event server: the envelope, the event names, and the payloads of every
// event in both directions.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gregriff/parley/internal/models"
)

// EventName identifies the kind of a realtime event.
type EventName string

const (
	// Client -> Server
	JoinRoom      EventName = "join_room"
	LeaveRoom     EventName = "leave_room"
	SendMessage   EventName = "send_message"
	EditMessage   EventName = "edit_message"
	DeleteMessage EventName = "delete_message"
	TypingStart   EventName = "typing_start"
	TypingStop    EventName = "typing_stop"

	// Server -> Client
	NewMessageEvent        EventName = "new_message"
	MessageEditedEvent     EventName = "message_edited"
	MessageDeletedEvent    EventName = "message_deleted"
	UserJoinedEvent        EventName = "user_joined"
	UserLeftEvent          EventName = "user_left"
	UserTypingEvent        EventName = "user_typing"
	UserStoppedTypingEvent EventName = "user_stopped_typing"
	RoomJoinedEvent        EventName = "room_joined"
	RoomLeftEvent          EventName = "room_left"
	ErrorEvent             EventName = "error"

	// Raised locally by the transport, never sent on the wire.
	ConnectEvent         EventName = "connect"
	DisconnectEvent      EventName = "disconnect"
	ConnectionErrorEvent EventName = "connection_error"
)

// Envelope wraps every frame with its event name.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope creates an envelope with the given event name and payload.
func NewEnvelope(event EventName, data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return &Envelope{Event: event, Data: raw}, nil
}

// Decode unmarshals the payload of env into a value of type T.
func Decode[T any](env Envelope) (T, error) {
	var v T
	if len(env.Data) == 0 {
		return v, fmt.Errorf("%s: empty payload", env.Event)
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("decoding %s payload: %w", env.Event, err)
	}
	return v, nil
}

// RoomRef is the payload of join_room, leave_room, typing_start,
// typing_stop, room_joined and room_left.
type RoomRef struct {
	RoomID string `json:"roomId"`
}

// SendMessageData is the payload of send_message.
type SendMessageData struct {
	RoomID  string             `json:"roomId"`
	Content string             `json:"content"`
	Type    models.MessageType `json:"type"`
}

// EditMessageData is the payload of edit_message.
type EditMessageData struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

// DeleteMessageData is the payload of delete_message.
type DeleteMessageData struct {
	MessageID string `json:"messageId"`
}

// NewMessage is the payload of new_message. It is narrower than the
// canonical models.Message.
type NewMessage struct {
	ID        string             `json:"id"`
	Content   string             `json:"content"`
	Type      models.MessageType `json:"type"`
	UserID    string             `json:"userId"`
	UserName  string             `json:"username"`
	RoomID    string             `json:"roomId"`
	CreatedAt time.Time          `json:"createdAt"`
	IsEdited  bool               `json:"isEdited"`
}

// MessageEdited is the payload of message_edited.
type MessageEdited struct {
	ID       string    `json:"id"`
	Content  string    `json:"content"`
	EditedAt time.Time `json:"editedAt"`
	RoomID   string    `json:"roomId"`
}

// MessageDeleted is the payload of message_deleted.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// UserPresence is the payload of user_joined and user_left.
type UserPresence struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"username"`
	RoomID    string    `json:"roomId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UserTyping is the payload of user_typing.
type UserTyping struct {
	UserID   string `json:"userId"`
	UserName string `json:"username"`
	RoomID   string `json:"roomId,omitempty"`
}

// UserStoppedTyping is the payload of user_stopped_typing.
type UserStoppedTyping struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId,omitempty"`
}

// ErrorPayload is the payload of a server error event.
type ErrorPayload struct {
	Message string `json:"message"`
}
