package protocol

import "github.com/gregriff/parley/internal/models"

// ToMessage maps a new_message payload onto the canonical message record.
// Fields the wire does not carry are filled with safe defaults: the room
// name comes from the caller, the author email is empty. Ownership is
// decided here and nowhere else, by comparing the author with selfID.
func ToMessage(ev NewMessage, roomName, selfID string) models.Message {
	return models.Message{
		ID:        ev.ID,
		Content:   ev.Content,
		Type:      ev.Type.OrDefault(),
		IsEdited:  ev.IsEdited,
		CreatedAt: ev.CreatedAt,
		Author: models.Author{
			ID:   ev.UserID,
			Name: ev.UserName,
		},
		RoomID:   ev.RoomID,
		RoomName: roomName,
		IsMine:   models.IsMine(ev.UserID, selfID),
	}
}

// FromMessage is the inverse of ToMessage for the fields the wire carries.
func FromMessage(m models.Message) NewMessage {
	return NewMessage{
		ID:        m.ID,
		Content:   m.Content,
		Type:      m.Type,
		UserID:    m.Author.ID,
		UserName:  m.Author.Name,
		RoomID:    m.RoomID,
		CreatedAt: m.CreatedAt,
		IsEdited:  m.IsEdited,
	}
}
