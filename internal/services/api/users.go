package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gregriff/parley/internal/models"
)

const usersPath = "/users"

func userPath(userID string) string {
	return usersPath + "/" + url.PathEscape(userID)
}

// Profile returns the signed-in user.
func (c *Client) Profile(ctx context.Context) (models.User, error) {
	return get[models.User](ctx, c, usersPath+"/profile")
}

// ListUsers returns every user.
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	return get[[]models.User](ctx, c, usersPath)
}

// GetUser returns one user.
func (c *Client) GetUser(ctx context.Context, userID string) (models.User, error) {
	return get[models.User](ctx, c, userPath(userID))
}

// UpdateUser edits a user. The server takes the fields as query
// parameters; empty fields are omitted and left unchanged.
func (c *Client) UpdateUser(ctx context.Context, userID string, update models.UpdateUser) (models.User, error) {
	params := url.Values{}
	if update.Name != "" {
		params.Set("name", update.Name)
	}
	if update.Email != "" {
		params.Set("email", update.Email)
	}

	path := userPath(userID)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	user, err := do[models.User](ctx, c, http.MethodPatch, path, nil)
	if err == nil {
		c.invalidate(usersPath)
	}
	return user, err
}

// DeleteUser removes a user.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	_, err := do[json.RawMessage](ctx, c, http.MethodDelete, userPath(userID), nil)
	if err == nil {
		c.invalidate(usersPath)
	}
	return err
}
