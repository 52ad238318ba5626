package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gregriff/parley/internal/models"
)

func messagePath(messageID string) string {
	return "/chat/messages/" + url.PathEscape(messageID)
}

// RoomMessages returns the message history of a room. History is never
// cached: it is the baseline the live timeline is reconciled against.
func (c *Client) RoomMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	return do[[]models.Message](ctx, c, http.MethodGet, roomPath(roomID)+"/messages", nil)
}

// SendMessage posts a message through REST, for use when the realtime
// channel is unavailable.
func (c *Client) SendMessage(ctx context.Context, roomID string, msg models.NewMessage) (models.Message, error) {
	msg.Type = msg.Type.OrDefault()
	return do[models.Message](ctx, c, http.MethodPost, roomPath(roomID)+"/messages", msg)
}

type updateMessageRequest struct {
	Content string `json:"content"`
}

// EditMessage replaces the content of a message.
func (c *Client) EditMessage(ctx context.Context, messageID, content string) (models.Message, error) {
	return do[models.Message](ctx, c, http.MethodPut, messagePath(messageID), updateMessageRequest{Content: content})
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := do[json.RawMessage](ctx, c, http.MethodDelete, messagePath(messageID), nil)
	return err
}
