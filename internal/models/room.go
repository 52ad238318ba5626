package models

import "time"

// Room is the client's cached projection of a chat room. The server holds
// the authoritative copy.
type Room struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	IsPrivate       bool      `json:"isPrivate"`
	MaxParticipants int       `json:"maxParticipants"`
	MemberCount     int       `json:"memberCount"`
	IsJoined        bool      `json:"isJoined"`
	IsAdmin         bool      `json:"isAdmin"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NewRoom is the body of a room creation request.
type NewRoom struct {
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	IsPrivate       bool   `json:"isPrivate"`
	MaxParticipants int    `json:"maxParticipants,omitempty"`
}
