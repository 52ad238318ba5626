// Package realtimetest provides an in-process chat event server for tests.
package realtimetest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"golang.org/x/net/websocket"

	"github.com/gregriff/parley/internal/protocol"
)

// EventsPath is the path the server accepts websocket connections on.
const EventsPath = "/events"

// Server accepts event connections, records every inbound envelope and
// pushes events to connected clients.
type Server struct {
	*httptest.Server

	token string

	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	accepted int
	tokens   []string
	received []protocol.Envelope
}

// NewServer starts a server that requires the bearer token on the
// handshake. An empty token accepts any client. The server is closed when
// the test ends.
func NewServer(t testing.TB, token string) *Server {
	t.Helper()

	s := &Server{
		token: token,
		conns: make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+EventsPath, websocket.Server{
		Handshake: s.handshake,
		Handler:   s.serve,
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) handshake(_ *websocket.Config, r *http.Request) error {
	auth := r.Header.Get("Authorization")
	s.mu.Lock()
	s.tokens = append(s.tokens, auth)
	s.mu.Unlock()

	if s.token != "" && auth != "Bearer "+s.token {
		return errors.New("invalid token")
	}
	return nil
}

func (s *Server) serve(ws *websocket.Conn) {
	s.mu.Lock()
	s.conns[ws] = struct{}{}
	s.accepted++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		var env protocol.Envelope
		if err := websocket.JSON.Receive(ws, &env); err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, env)
		s.mu.Unlock()
	}
}

// Close drops every client and shuts the server down.
func (s *Server) Close() {
	s.DropAll()
	s.Server.Close()
}

// Push sends an event to every connected client.
func (s *Server) Push(event protocol.EventName, data any) error {
	env, err := protocol.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	for _, ws := range s.live() {
		if err := websocket.JSON.Send(ws, env); err != nil {
			return err
		}
	}
	return nil
}

// PushRaw sends a raw text frame to every connected client.
func (s *Server) PushRaw(frame string) error {
	for _, ws := range s.live() {
		if err := websocket.Message.Send(ws, frame); err != nil {
			return err
		}
	}
	return nil
}

// DropAll closes every live connection, as a network failure would.
func (s *Server) DropAll() {
	for _, ws := range s.live() {
		_ = ws.Close()
	}
}

func (s *Server) live() []*websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for ws := range s.conns {
		conns = append(conns, ws)
	}
	return conns
}

// Live returns the number of open connections.
func (s *Server) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Authorizations returns the Authorization header of every handshake.
func (s *Server) Authorizations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tokens)
}

// Received returns every envelope received so far, in order.
func (s *Server) Received() []protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.received)
}

// ReceivedEvents returns the received envelopes named event.
func (s *Server) ReceivedEvents(event protocol.EventName) []protocol.Envelope {
	var out []protocol.Envelope
	for _, env := range s.Received() {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

// Payload decodes a received envelope's data, failing the test on error.
func Payload[T any](t testing.TB, env protocol.Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decoding %s payload: %v", env.Event, err)
	}
	return v
}
