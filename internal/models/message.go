package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType is the kind of content a message carries.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeFile  MessageType = "file"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeFile:
		return true
	}
	return false
}

// OrDefault returns t, or TypeText when t is unknown or empty.
func (t MessageType) OrDefault() MessageType {
	if t.Valid() {
		return t
	}
	return TypeText
}

// Author identifies who wrote a message.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Message is the canonical, fully-fielded message record. Its ID is stable
// across the REST and realtime representations.
type Message struct {
	ID        string
	Content   string
	Type      MessageType
	IsEdited  bool
	EditedAt  *time.Time
	CreatedAt time.Time
	Author    Author
	RoomID    string
	RoomName  string

	// IsMine is set once, when the record enters the client, by IsMine.
	IsMine bool
}

// IsMine reports whether a message written by authorID belongs to the
// signed-in user selfID. An anonymous client owns nothing.
func IsMine(authorID, selfID string) bool {
	return selfID != "" && authorID == selfID
}

// restMessage mirrors the REST payload, which nests the author and room.
type restMessage struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	IsEdited  bool        `json:"isEdited"`
	EditedAt  *time.Time  `json:"editedAt,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	User      *Author     `json:"user,omitempty"`
	Room      *roomRef    `json:"room,omitempty"`
	RoomID    string      `json:"roomId,omitempty"`
}

type roomRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UnmarshalJSON decodes the REST shape of a message.
func (m *Message) UnmarshalJSON(data []byte) error {
	var r restMessage
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("message: %w", err)
	}
	*m = Message{
		ID:        r.ID,
		Content:   r.Content,
		Type:      r.Type.OrDefault(),
		IsEdited:  r.IsEdited,
		EditedAt:  r.EditedAt,
		CreatedAt: r.CreatedAt,
		RoomID:    r.RoomID,
	}
	if r.User != nil {
		m.Author = *r.User
	}
	if r.Room != nil {
		m.RoomID = r.Room.ID
		m.RoomName = r.Room.Name
	}
	return nil
}

// MarshalJSON encodes the message in its REST shape.
func (m Message) MarshalJSON() ([]byte, error) {
	r := restMessage{
		ID:        m.ID,
		Content:   m.Content,
		Type:      m.Type,
		IsEdited:  m.IsEdited,
		EditedAt:  m.EditedAt,
		CreatedAt: m.CreatedAt,
		User:      &Author{ID: m.Author.ID, Name: m.Author.Name, Email: m.Author.Email},
		Room:      &roomRef{ID: m.RoomID, Name: m.RoomName},
	}
	return json.Marshal(r)
}

// NewMessage is the body of a REST send.
type NewMessage struct {
	Content string      `json:"content"`
	Type    MessageType `json:"type"`
}
