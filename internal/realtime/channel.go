// Package realtime owns the single persistent websocket connection to the
// chat event server. It sends fire-and-forget commands and dispatches
// inbound events to one handler per event kind.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/gregriff/parley/internal/models"
	"github.com/gregriff/parley/internal/protocol"
)

// ErrNotConnected is returned by commands issued while no connection is live.
var ErrNotConnected = errors.New("realtime: not connected")

// State is the lifecycle state of a Channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler receives one inbound event. Handlers run on the channel's read
// goroutine, one at a time, in arrival order, and must not call Disconnect.
type Handler func(protocol.Envelope)

// Config configures a Channel.
type Config struct {
	// APIOrigin is the http(s) origin of the chat server.
	APIOrigin string
	// EventsPath is the path of the websocket endpoint on APIOrigin.
	EventsPath string

	// Reconnect redials after an unexpected drop, waiting ReconnectMin
	// at first and doubling up to ReconnectMax between attempts.
	Reconnect    bool
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Channel is the realtime connection. Create one with New and share it.
type Channel struct {
	url    string
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	token    string
	gen      uint64 // bumped by Connect and Disconnect; stale goroutines compare against it
	cancel   context.CancelFunc
	rooms    map[string]struct{}
	handlers map[protocol.EventName]Handler

	wg sync.WaitGroup
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger used by the channel.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// New creates a disconnected Channel.
func New(cfg Config, opts ...Option) *Channel {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 500 * time.Millisecond
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = max(30*time.Second, cfg.ReconnectMin)
	}

	c := &Channel{
		url:      eventsURL(cfg.APIOrigin, cfg.EventsPath),
		cfg:      cfg,
		logger:   slog.Default(),
		rooms:    make(map[string]struct{}),
		handlers: make(map[protocol.EventName]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "realtime")
	return c
}

// Connect opens the connection, presenting token on the handshake. It is a
// no-op while a connection is open or being opened. On failure the channel
// returns to Disconnected and connection_error is dispatched.
func (c *Channel) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = Connecting
	c.token = token
	c.gen++
	gen := c.gen
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Debug("connecting", "url", c.url)
	ws, err := dial(ctx, c.url, token)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.state = Disconnected
			c.cancel = nil
		}
		c.mu.Unlock()
		cancel()

		c.logger.Warn("connection failed", "error", err)
		c.dispatchLocal(protocol.ConnectionErrorEvent, protocol.ErrorPayload{Message: err.Error()})
		return fmt.Errorf("connecting to event server: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		// Disconnect won the race
		c.mu.Unlock()
		_ = ws.Close()
		return ErrNotConnected
	}
	c.state = Connected
	c.conn = ws
	c.wg.Go(func() {
		c.run(runCtx, ws, gen)
	})
	c.mu.Unlock()
	return nil
}

// Disconnect tears the connection down and forgets joined rooms. It is safe
// to call when already disconnected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.gen++
	ws := c.conn
	wasLive := c.state != Disconnected
	c.conn = nil
	c.state = Disconnected
	clear(c.rooms)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	closeAndWait(ws, &c.wg)
	if wasLive {
		c.logger.Info("disconnected")
		c.dispatchLocal(protocol.DisconnectEvent, protocol.ErrorPayload{})
	}
}

// run reads the connection until it drops, then redials if configured.
func (c *Channel) run(ctx context.Context, ws *websocket.Conn, gen uint64) {
	for {
		c.logger.Info("connected", "url", c.url)
		c.dispatchLocal(protocol.ConnectEvent, protocol.ErrorPayload{})

		err := c.readPump(ws)

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.conn = nil
		c.state = Disconnected
		if c.cfg.Reconnect {
			c.state = Connecting
		} else {
			// nothing will re-join them
			clear(c.rooms)
		}
		c.mu.Unlock()

		_ = ws.Close()
		c.logger.Warn("connection dropped", "error", err)
		c.dispatchLocal(protocol.DisconnectEvent, protocol.ErrorPayload{Message: errMessage(err)})

		if !c.cfg.Reconnect {
			return
		}
		if ws = c.redial(ctx, gen); ws == nil {
			return
		}
	}
}

func (c *Channel) readPump(ws *websocket.Conn) error {
	for {
		env, ok, err := receive(ws)
		if err != nil {
			return err
		}
		if !ok {
			c.logger.Warn("dropping malformed frame")
			continue
		}
		c.dispatch(env)
	}
}

// redial retries the connection with backoff until it succeeds or the
// channel is disconnected. On success every remembered room is re-joined.
func (c *Channel) redial(ctx context.Context, gen uint64) *websocket.Conn {
	delay := c.cfg.ReconnectMin
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		c.mu.Lock()
		token := c.token
		c.mu.Unlock()

		ws, err := dial(ctx, c.url, token)
		if err != nil {
			c.logger.Debug("reconnect failed", "attempt", attempt, "error", err)
			c.dispatchLocal(protocol.ConnectionErrorEvent, protocol.ErrorPayload{Message: err.Error()})
			delay = min(delay*2, c.cfg.ReconnectMax)
			continue
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			_ = ws.Close()
			return nil
		}
		c.conn = ws
		c.state = Connected
		rooms := slices.Sorted(maps.Keys(c.rooms))
		c.mu.Unlock()

		for _, roomID := range rooms {
			if err := send(ws, protocol.JoinRoom, protocol.RoomRef{RoomID: roomID}); err != nil {
				c.logger.Warn("rejoin failed", "room", roomID, "error", err)
			}
		}
		c.logger.Info("reconnected", "attempt", attempt, "rooms", len(rooms))
		return ws
	}
}

// On registers the handler for an event kind, replacing any previous one.
func (c *Channel) On(event protocol.EventName, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// Off removes the handler for an event kind.
func (c *Channel) Off(event protocol.EventName) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

func (c *Channel) dispatch(env protocol.Envelope) {
	c.mu.Lock()
	h := c.handlers[env.Event]
	c.mu.Unlock()

	if h != nil {
		h(env)
		return
	}
	if env.Event == protocol.ErrorEvent {
		c.logger.Warn("server error", "data", string(env.Data))
		return
	}
	c.logger.Debug("no handler for event", "event", env.Event)
}

// dispatchLocal dispatches an event raised by the channel itself.
func (c *Channel) dispatchLocal(event protocol.EventName, data protocol.ErrorPayload) {
	env, err := protocol.NewEnvelope(event, data)
	if err != nil {
		return
	}
	c.dispatch(*env)
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a connection is live.
func (c *Channel) Connected() bool {
	return c.State() == Connected
}

// JoinedRooms returns the rooms joined on this channel, sorted.
func (c *Channel) JoinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.rooms))
}

// JoinRoom subscribes to a room's events. The room is remembered for
// re-joining after a reconnect.
func (c *Channel) JoinRoom(roomID string) error {
	if err := c.emit(protocol.JoinRoom, protocol.RoomRef{RoomID: roomID}); err != nil {
		return err
	}
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
	return nil
}

// LeaveRoom unsubscribes from a room. The room is forgotten even if the
// command could not be sent.
func (c *Channel) LeaveRoom(roomID string) error {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
	return c.emit(protocol.LeaveRoom, protocol.RoomRef{RoomID: roomID})
}

// SendMessage posts a message to a room.
func (c *Channel) SendMessage(roomID, content string, typ models.MessageType) error {
	return c.emit(protocol.SendMessage, protocol.SendMessageData{
		RoomID:  roomID,
		Content: content,
		Type:    typ.OrDefault(),
	})
}

// EditMessage replaces the content of a message.
func (c *Channel) EditMessage(messageID, content string) error {
	return c.emit(protocol.EditMessage, protocol.EditMessageData{MessageID: messageID, Content: content})
}

// DeleteMessage removes a message.
func (c *Channel) DeleteMessage(messageID string) error {
	return c.emit(protocol.DeleteMessage, protocol.DeleteMessageData{MessageID: messageID})
}

// StartTyping tells the room the user is composing.
func (c *Channel) StartTyping(roomID string) error {
	return c.emit(protocol.TypingStart, protocol.RoomRef{RoomID: roomID})
}

// StopTyping tells the room the user stopped composing.
func (c *Channel) StopTyping(roomID string) error {
	return c.emit(protocol.TypingStop, protocol.RoomRef{RoomID: roomID})
}

func (c *Channel) emit(event protocol.EventName, data any) error {
	c.mu.Lock()
	ws := c.conn
	live := c.state == Connected
	c.mu.Unlock()

	if !live || ws == nil {
		c.logger.Warn("cannot send while disconnected", "event", event)
		return ErrNotConnected
	}
	return send(ws, event, data)
}

func send(ws *websocket.Conn, event protocol.EventName, data any) error {
	env, err := protocol.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	if err := websocket.JSON.Send(ws, env); err != nil {
		return fmt.Errorf("error sending %s: %w", event, err)
	}
	return nil
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
