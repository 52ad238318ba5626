// Package room drives one open chat room at a time: it loads history over
// REST, joins the room on the realtime channel, and folds live events into
// a single ordered timeline until the room is closed.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gregriff/parley/internal/models"
	"github.com/gregriff/parley/internal/protocol"
	"github.com/gregriff/parley/internal/realtime"
	"github.com/gregriff/parley/internal/session"
)

var (
	// ErrNoActiveRoom is returned by room actions while no room is active.
	ErrNoActiveRoom = errors.New("room: no active room")
	// ErrStale is returned by Open when the room was closed, or another
	// opened, before it finished.
	ErrStale = errors.New("room: superseded before open completed")
	// ErrEmptyContent is returned when sending or editing blank content.
	ErrEmptyContent = errors.New("room: empty message")
)

// Gateway is the REST surface the controller needs.
type Gateway interface {
	RoomMessages(ctx context.Context, roomID string) ([]models.Message, error)
	JoinRoom(ctx context.Context, roomID string) error
	LeaveRoom(ctx context.Context, roomID string) error
	SendMessage(ctx context.Context, roomID string, msg models.NewMessage) (models.Message, error)
	EditMessage(ctx context.Context, messageID, content string) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
}

// Channel is the realtime surface the controller needs.
type Channel interface {
	Connected() bool
	JoinRoom(roomID string) error
	LeaveRoom(roomID string) error
	SendMessage(roomID, content string, typ models.MessageType) error
	EditMessage(messageID, content string) error
	DeleteMessage(messageID string) error
	StartTyping(roomID string) error
	StopTyping(roomID string) error
	On(event protocol.EventName, h realtime.Handler)
	Off(event protocol.EventName)
}

// Identity yields the signed-in user, used to mark own messages.
type Identity interface {
	Current() (session.Session, bool)
}

// State is the lifecycle state of the controller.
type State int

const (
	Idle State = iota
	LoadingHistory
	Joining
	Active
	Leaving
)

func (s State) String() string {
	switch s {
	case LoadingHistory:
		return "loading_history"
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Leaving:
		return "leaving"
	default:
		return "idle"
	}
}

// UpdateKind names what changed in an Update.
type UpdateKind string

const (
	Opened         UpdateKind = "opened"
	Closed         UpdateKind = "closed"
	MessageAdded   UpdateKind = "message_added"
	MessageEdited  UpdateKind = "message_edited"
	MessageDeleted UpdateKind = "message_deleted"
	TypingChanged  UpdateKind = "typing_changed"
	UserJoined     UpdateKind = "user_joined"
	UserLeft       UpdateKind = "user_left"
)

// Update describes one change to the open room. Only the fields relevant
// to Kind are set.
type Update struct {
	Kind      UpdateKind
	RoomID    string
	Message   models.Message
	MessageID string
	User      TypingUser
}

// subscriptions are the channel events folded into the open room.
var subscriptions = []protocol.EventName{
	protocol.NewMessageEvent,
	protocol.MessageEditedEvent,
	protocol.MessageDeletedEvent,
	protocol.UserTypingEvent,
	protocol.UserStoppedTypingEvent,
	protocol.UserJoinedEvent,
	protocol.UserLeftEvent,
}

// Controller is the room session controller.
type Controller struct {
	gateway  Gateway
	channel  Channel
	identity Identity
	logger   *slog.Logger
	listener func(Update)
	now      func() time.Time

	mu        sync.Mutex
	state     State
	room      models.Room
	gen       uint64
	timeline  timeline
	typing    typingSet
	degraded  bool
	composing bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithListener registers fn to receive every Update. fn is called without
// the controller's lock held and may call its read accessors.
func WithListener(fn func(Update)) Option {
	return func(c *Controller) { c.listener = fn }
}

// NewController creates an idle controller.
func NewController(gateway Gateway, channel Channel, identity Identity, opts ...Option) *Controller {
	c := &Controller{
		gateway:  gateway,
		channel:  channel,
		identity: identity,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "room")
	return c
}

// Open makes room the active room. Any room already open is closed first.
// A failed REST history load or REST join leaves the controller idle and
// returns the error. A failed channel join does not: the room opens in
// degraded mode, with history but without live updates.
func (c *Controller) Open(ctx context.Context, room models.Room) error {
	if room.ID == "" {
		return errors.New("room: missing room id")
	}

	c.mu.Lock()
	busy := c.state != Idle
	c.mu.Unlock()
	if busy {
		if err := c.Close(ctx); err != nil {
			c.logger.Warn("closing previous room", "error", err)
		}
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.state = LoadingHistory
	c.room = room
	c.timeline.reset()
	c.typing.reset()
	c.degraded = false
	c.composing = false
	c.mu.Unlock()

	log := c.logger.With("room", room.ID)
	log.Debug("loading history")

	history, err := c.gateway.RoomMessages(ctx, room.ID)
	if !c.current(gen) {
		return ErrStale
	}
	if err != nil {
		c.abort(gen)
		return fmt.Errorf("loading history of room %s: %w", room.ID, err)
	}

	err = c.gateway.JoinRoom(ctx, room.ID)
	if !c.current(gen) {
		if err == nil {
			c.undoRestJoin(ctx, room.ID)
		}
		return ErrStale
	}
	if err != nil {
		c.abort(gen)
		return fmt.Errorf("joining room %s: %w", room.ID, err)
	}

	selfID := c.selfID()
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.undoRestJoin(ctx, room.ID)
		return ErrStale
	}
	for _, m := range history {
		c.timeline.upsert(c.normalize(m, selfID))
	}
	c.state = Joining
	c.subscribe(gen)
	c.mu.Unlock()

	joinErr := c.channel.JoinRoom(room.ID)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		// Close may have left the channel before this join went out
		if joinErr == nil {
			if err := c.channel.LeaveRoom(room.ID); err != nil {
				log.Debug("undoing channel join", "error", err)
			}
		}
		return ErrStale
	}
	if joinErr != nil {
		c.degraded = true
	}
	c.state = Active
	c.mu.Unlock()

	if joinErr != nil {
		log.Warn("live updates unavailable, showing history only", "error", joinErr)
	}
	log.Info("room open", "messages", len(history), "degraded", joinErr != nil)
	c.emit(Update{Kind: Opened, RoomID: room.ID})
	return nil
}

// Close leaves the open room and discards its state. Both the REST and the
// channel leave are attempted; their failures are joined into the returned
// error. Closing while idle is a no-op.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	roomID := c.room.ID
	composing := c.composing
	c.state = Leaving
	c.unsubscribe()
	c.mu.Unlock()

	log := c.logger.With("room", roomID)
	if composing {
		_ = c.channel.StopTyping(roomID)
	}

	var errs []error
	if err := c.gateway.LeaveRoom(ctx, roomID); err != nil {
		log.Warn("rest leave failed", "error", err)
		errs = append(errs, fmt.Errorf("leaving room %s: %w", roomID, err))
	}
	if err := c.channel.LeaveRoom(roomID); err != nil {
		log.Warn("channel leave failed", "error", err)
		errs = append(errs, fmt.Errorf("leaving room %s on channel: %w", roomID, err))
	}

	c.mu.Lock()
	if c.gen == gen {
		c.reset()
	}
	c.mu.Unlock()

	log.Info("room closed")
	c.emit(Update{Kind: Closed, RoomID: roomID})
	return errors.Join(errs...)
}

// undoRestJoin leaves a room whose REST join completed after the open was
// superseded, so the membership does not outlive the session.
func (c *Controller) undoRestJoin(ctx context.Context, roomID string) {
	if err := c.gateway.LeaveRoom(context.WithoutCancel(ctx), roomID); err != nil {
		c.logger.Debug("undoing rest join", "room", roomID, "error", err)
	}
}

// current reports whether gen is still the latest open.
func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// abort returns a failed open to idle.
func (c *Controller) abort(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.reset()
	}
}

// reset must be called with mu held.
func (c *Controller) reset() {
	c.state = Idle
	c.room = models.Room{}
	c.timeline.reset()
	c.typing.reset()
	c.degraded = false
	c.composing = false
}

func (c *Controller) selfID() string {
	if c.identity == nil {
		return ""
	}
	s, ok := c.identity.Current()
	if !ok {
		return ""
	}
	return s.UserID
}

// normalize fills the room fields of a REST record and decides ownership.
func (c *Controller) normalize(m models.Message, selfID string) models.Message {
	if m.RoomID == "" {
		m.RoomID = c.room.ID
	}
	if m.RoomName == "" {
		m.RoomName = c.room.Name
	}
	m.Type = m.Type.OrDefault()
	m.IsMine = models.IsMine(m.Author.ID, selfID)
	return m
}

// subscribe must be called with mu held.
func (c *Controller) subscribe(gen uint64) {
	handlers := map[protocol.EventName]func(protocol.Envelope) (Update, bool, error){
		protocol.NewMessageEvent:        c.onNewMessage,
		protocol.MessageEditedEvent:     c.onMessageEdited,
		protocol.MessageDeletedEvent:    c.onMessageDeleted,
		protocol.UserTypingEvent:        c.onUserTyping,
		protocol.UserStoppedTypingEvent: c.onUserStoppedTyping,
		protocol.UserJoinedEvent:        c.onPresence(UserJoined),
		protocol.UserLeftEvent:          c.onPresence(UserLeft),
	}
	for _, event := range subscriptions {
		fold := handlers[event]
		c.channel.On(event, func(env protocol.Envelope) {
			c.mu.Lock()
			if c.gen != gen {
				c.mu.Unlock()
				return
			}
			u, changed, err := fold(env)
			c.mu.Unlock()

			if err != nil {
				c.logger.Warn("dropping event", "event", env.Event, "error", err)
				return
			}
			if changed {
				c.emit(u)
			}
		})
	}
}

// unsubscribe must be called with mu held.
func (c *Controller) unsubscribe() {
	for _, event := range subscriptions {
		c.channel.Off(event)
	}
}

// forRoom reports whether an event naming roomID belongs to the open room.
// Events that do not name a room are assumed to.
func (c *Controller) forRoom(roomID string) bool {
	return roomID == "" || roomID == c.room.ID
}

// The on* folds run with mu held.

func (c *Controller) onNewMessage(env protocol.Envelope) (Update, bool, error) {
	ev, err := protocol.Decode[protocol.NewMessage](env)
	if err != nil || !c.forRoom(ev.RoomID) {
		return Update{}, false, err
	}
	if ev.RoomID == "" {
		ev.RoomID = c.room.ID
	}
	m := protocol.ToMessage(ev, c.room.Name, c.selfID())
	c.timeline.upsert(m)
	c.typing.remove(ev.UserID)
	return Update{Kind: MessageAdded, RoomID: c.room.ID, Message: m, MessageID: m.ID}, true, nil
}

func (c *Controller) onMessageEdited(env protocol.Envelope) (Update, bool, error) {
	ev, err := protocol.Decode[protocol.MessageEdited](env)
	if err != nil || !c.forRoom(ev.RoomID) {
		return Update{}, false, err
	}
	if !c.timeline.edit(ev.ID, ev.Content, ev.EditedAt) {
		return Update{}, false, nil
	}
	return Update{Kind: MessageEdited, RoomID: c.room.ID, MessageID: ev.ID}, true, nil
}

func (c *Controller) onMessageDeleted(env protocol.Envelope) (Update, bool, error) {
	ev, err := protocol.Decode[protocol.MessageDeleted](env)
	if err != nil || !c.forRoom(ev.RoomID) {
		return Update{}, false, err
	}
	if !c.timeline.remove(ev.MessageID) {
		return Update{}, false, nil
	}
	return Update{Kind: MessageDeleted, RoomID: c.room.ID, MessageID: ev.MessageID}, true, nil
}

func (c *Controller) onUserTyping(env protocol.Envelope) (Update, bool, error) {
	ev, err := protocol.Decode[protocol.UserTyping](env)
	if err != nil || !c.forRoom(ev.RoomID) {
		return Update{}, false, err
	}
	u := TypingUser{UserID: ev.UserID, UserName: ev.UserName}
	return Update{Kind: TypingChanged, RoomID: c.room.ID, User: u}, c.typing.add(u), nil
}

func (c *Controller) onUserStoppedTyping(env protocol.Envelope) (Update, bool, error) {
	ev, err := protocol.Decode[protocol.UserStoppedTyping](env)
	if err != nil || !c.forRoom(ev.RoomID) {
		return Update{}, false, err
	}
	u := TypingUser{UserID: ev.UserID}
	return Update{Kind: TypingChanged, RoomID: c.room.ID, User: u}, c.typing.remove(ev.UserID), nil
}

func (c *Controller) onPresence(kind UpdateKind) func(protocol.Envelope) (Update, bool, error) {
	return func(env protocol.Envelope) (Update, bool, error) {
		ev, err := protocol.Decode[protocol.UserPresence](env)
		if err != nil || !c.forRoom(ev.RoomID) {
			return Update{}, false, err
		}
		u := TypingUser{UserID: ev.UserID, UserName: ev.UserName}
		return Update{Kind: kind, RoomID: c.room.ID, User: u}, true, nil
	}
}

func (c *Controller) emit(u Update) {
	if c.listener != nil {
		c.listener(u)
	}
}
