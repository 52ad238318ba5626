package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// User represents an account on the chat server.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsActive  Flag      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Flag is a boolean that also accepts the buffer encoding some MySQL-backed
// servers emit for BIT columns, e.g. {"type":"Buffer","data":[1]}.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = false
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}

	var buf struct {
		Type string `json:"type"`
		Data []int  `json:"data"`
	}
	if err := json.Unmarshal(data, &buf); err != nil {
		return fmt.Errorf("flag: unsupported encoding %s", string(data))
	}
	*f = Flag(len(buf.Data) > 0 && buf.Data[0] != 0)
	return nil
}

// UpdateUser holds the optional fields of a profile edit. Empty fields are
// left unchanged by the server.
type UpdateUser struct {
	Name  string
	Email string
}
