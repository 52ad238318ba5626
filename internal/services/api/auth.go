package api

import (
	"context"
	"net/http"

	"github.com/gregriff/parley/internal/models"
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	AccessToken string      `json:"access_token"`
	User        models.User `json:"user"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and returns its first session.
func (c *Client) Register(ctx context.Context, name, email, password string) (AuthResult, error) {
	return do[AuthResult](ctx, c, http.MethodPost, "/auth/register",
		registerRequest{Name: name, Email: email, Password: password})
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	return do[AuthResult](ctx, c, http.MethodPost, "/auth/login",
		loginRequest{Email: email, Password: password})
}
