// Package services holds the HTTP plumbing shared by the REST gateway.
package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// TokenSource yields the current access token, or "" when logged out.
type TokenSource interface {
	Token() string
}

// Transport allows custom attributes to be added to each HTTP request sent by an http.Client that uses this transport.
// Requests are issued with a path only; the transport prefixes BaseURL, attaches the bearer token and tags
// the request with an id for server-side correlation.
type Transport struct {
	BaseURL string
	Tokens  TokenSource
	Base    http.RoundTripper
	Logger  *slog.Logger
}

// RoundTrip adds upon the normal http.Transport.RoundTrip() behavior to add bearer auth and a base url to each request.
// Reference: https://cs.opensource.google/go/x/oauth2/+/refs/tags/v0.31.0:transport.go
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	path := req.URL.RequestURI()
	baseURL := strings.TrimSuffix(t.BaseURL, "/")
	newURL, err := req.URL.Parse(baseURL + "/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid request url %q: %w", baseURL+path, err)
	}

	// RoundTrippers must not modify the caller's request
	out := req.Clone(req.Context())
	out.URL = newURL
	out.Host = ""

	requestID := uuid.NewString()
	out.Header.Set("X-Request-ID", requestID)
	if !isPublic(path) && t.Tokens != nil {
		if token := t.Tokens.Token(); token != "" {
			out.Header.Set("Authorization", "Bearer "+token)
		}
	}

	t.logger().Debug("making request to chat server", "method", out.Method, "path", path, "request_id", requestID)

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(out)
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// isPublic reports whether path is reachable without a session.
func isPublic(path string) bool {
	return path == "/auth/login" || path == "/auth/register"
}
