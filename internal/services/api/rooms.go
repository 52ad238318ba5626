package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gregriff/parley/internal/models"
)

const roomsPath = "/chat/rooms"

func roomPath(roomID string) string {
	return roomsPath + "/" + url.PathEscape(roomID)
}

// ListRooms returns every room visible to the user.
func (c *Client) ListRooms(ctx context.Context) ([]models.Room, error) {
	return get[[]models.Room](ctx, c, roomsPath)
}

// GetRoom returns one room.
func (c *Client) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	return get[models.Room](ctx, c, roomPath(roomID))
}

// CreateRoom creates a room owned by the user.
func (c *Client) CreateRoom(ctx context.Context, room models.NewRoom) (models.Room, error) {
	created, err := do[models.Room](ctx, c, http.MethodPost, roomsPath, room)
	if err == nil {
		c.invalidate(roomsPath)
	}
	return created, err
}

// JoinRoom makes the user a member of the room.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	_, err := do[json.RawMessage](ctx, c, http.MethodPost, roomPath(roomID)+"/join", nil)
	c.invalidate(roomsPath)
	return err
}

// LeaveRoom ends the user's membership of the room.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	_, err := do[json.RawMessage](ctx, c, http.MethodPost, roomPath(roomID)+"/leave", nil)
	c.invalidate(roomsPath)
	return err
}
