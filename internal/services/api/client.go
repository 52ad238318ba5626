// Package api implements the REST gateway to the chat server. Every call is
// an independent request; nothing is retried. Read calls may be answered
// from a short-lived query cache, which mutations invalidate.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gregriff/parley/internal/querycache"
	"github.com/gregriff/parley/internal/services"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the origin of the REST API, e.g. http://localhost:8080.
	BaseURL string
	// Tokens supplies the bearer token for authenticated calls.
	Tokens services.TokenSource
	// Timeout bounds each request. Zero means 10 seconds.
	Timeout time.Duration
	// Cache, when set, answers repeated reads until they expire.
	Cache  *querycache.Cache
	Logger *slog.Logger
	// Transport is the underlying round tripper, http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// Client is the REST gateway.
type Client struct {
	http   *http.Client
	cache  *querycache.Cache
	logger *slog.Logger
}

// NewClient provides a Client for requests to the chat server
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &services.Transport{
				BaseURL: cfg.BaseURL,
				Tokens:  cfg.Tokens,
				Base:    cfg.Transport,
				Logger:  logger,
			},
		},
		cache:  cfg.Cache,
		logger: logger,
	}
}

// envelope is the wrapper around every response body.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

// do issues one request and unwraps the response envelope. A nil body sends
// no payload. The zero T is returned when the server sends no data.
func do[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("json marshal error: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, path, reader)
	if err != nil {
		return zero, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("request error: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return zero, fmt.Errorf("reading response: %w", err)
	}

	var env envelope[T]
	decodeErr := json.Unmarshal(raw, &env)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &Error{StatusCode: res.StatusCode, Method: method, Path: path, Message: env.Message}
		if decodeErr != nil || apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(raw))
		}
		return zero, apiErr
	}
	if decodeErr != nil {
		return zero, fmt.Errorf("json decode error: %w", decodeErr)
	}
	if !env.Success {
		return zero, &Error{StatusCode: res.StatusCode, Method: method, Path: path, Message: env.Message}
	}
	if env.Data == nil {
		return zero, nil
	}
	return *env.Data, nil
}

// get is do for reads, consulting the query cache first.
func get[T any](ctx context.Context, c *Client, path string) (T, error) {
	var cached T
	if hit, err := c.cache.Get(path, &cached); err != nil {
		c.logger.Debug("ignoring unreadable cache entry", "path", path, "error", err)
	} else if hit {
		return cached, nil
	}

	v, err := do[T](ctx, c, http.MethodGet, path, nil)
	if err != nil {
		return v, err
	}
	if err := c.cache.Set(path, v); err != nil {
		c.logger.Debug("not caching response", "path", path, "error", err)
	}
	return v, nil
}

// invalidate drops cached reads below the given path prefixes.
func (c *Client) invalidate(prefixes ...string) {
	c.cache.Invalidate(prefixes...)
}

// ClearCache drops every cached read, e.g. after logout.
func (c *Client) ClearCache() {
	c.cache.Clear()
}
