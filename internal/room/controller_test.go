package room_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregriff/parley/internal/models"
	"github.com/gregriff/parley/internal/protocol"
	"github.com/gregriff/parley/internal/realtime"
	"github.com/gregriff/parley/internal/room"
	"github.com/gregriff/parley/internal/session"
)

var (
	base     = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	general  = models.Room{ID: "r1", Name: "general"}
	random   = models.Room{ID: "r2", Name: "random"}
	errBoom  = errors.New("boom")
	selfUser = session.Session{UserID: "u1", UserName: "ann", Token: "tok"}
)

func at(minute int) time.Time {
	return base.Add(time.Duration(minute) * time.Minute)
}

func restMessage(id, authorID string, minute int) models.Message {
	return models.Message{
		ID:        id,
		Content:   "content " + id,
		Type:      models.TypeText,
		CreatedAt: at(minute),
		Author:    models.Author{ID: authorID, Name: "name " + authorID},
	}
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

type identity struct{ s session.Session }

func (i identity) Current() (session.Session, bool) { return i.s, i.s.UserID != "" }

// fakeGateway serves canned history. A non-nil gate blocks RoomMessages
// until it is closed, and joinGate does the same for JoinRoom.
type fakeGateway struct {
	mu          sync.Mutex
	history     map[string][]models.Message
	gate        chan struct{}
	entered     chan struct{}
	joinGate    chan struct{}
	joinEntered chan struct{}
	joinErr  error
	leaveErr error
	sendErr  error
	calls    []string
}

func newGateway() *fakeGateway {
	return &fakeGateway{history: map[string][]models.Message{}}
}

func (g *fakeGateway) record(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) RoomMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	g.record("history " + roomID)
	if g.entered != nil {
		close(g.entered)
	}
	if g.gate != nil {
		<-g.gate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.history[roomID], nil
}

func (g *fakeGateway) JoinRoom(ctx context.Context, roomID string) error {
	if g.joinEntered != nil {
		close(g.joinEntered)
	}
	if g.joinGate != nil {
		<-g.joinGate
	}
	g.record("join " + roomID)
	return g.joinErr
}

func (g *fakeGateway) LeaveRoom(ctx context.Context, roomID string) error {
	g.record("leave " + roomID)
	return g.leaveErr
}

func (g *fakeGateway) SendMessage(ctx context.Context, roomID string, msg models.NewMessage) (models.Message, error) {
	g.record("send " + roomID)
	if g.sendErr != nil {
		return models.Message{}, g.sendErr
	}
	return models.Message{
		ID:        "rest-1",
		Content:   msg.Content,
		Type:      msg.Type,
		CreatedAt: at(100),
		Author:    models.Author{ID: selfUser.UserID, Name: selfUser.UserName},
	}, nil
}

func (g *fakeGateway) EditMessage(ctx context.Context, messageID, content string) (models.Message, error) {
	g.record("edit " + messageID)
	editedAt := at(200)
	return models.Message{ID: messageID, Content: content, IsEdited: true, EditedAt: &editedAt}, nil
}

func (g *fakeGateway) DeleteMessage(ctx context.Context, messageID string) error {
	g.record("delete " + messageID)
	return nil
}

// fakeChannel captures handlers and lets tests push events synchronously.
type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	joinErr   error
	leaveErr  error
	handlers  map[protocol.EventName]realtime.Handler
	calls     []string
}

func newChannel() *fakeChannel {
	return &fakeChannel{connected: true, handlers: map[protocol.EventName]realtime.Handler{}}
}

func (f *fakeChannel) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeChannel) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) JoinRoom(roomID string) error {
	f.record("join " + roomID)
	return f.joinErr
}

func (f *fakeChannel) LeaveRoom(roomID string) error {
	f.record("leave " + roomID)
	return f.leaveErr
}

func (f *fakeChannel) SendMessage(roomID, content string, typ models.MessageType) error {
	f.record("send " + roomID + " " + content)
	return nil
}

func (f *fakeChannel) EditMessage(messageID, content string) error {
	f.record("edit " + messageID)
	return nil
}

func (f *fakeChannel) DeleteMessage(messageID string) error {
	f.record("delete " + messageID)
	return nil
}

func (f *fakeChannel) StartTyping(roomID string) error {
	f.record("typing_start " + roomID)
	return nil
}

func (f *fakeChannel) StopTyping(roomID string) error {
	f.record("typing_stop " + roomID)
	return nil
}

func (f *fakeChannel) On(event protocol.EventName, h realtime.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = h
}

func (f *fakeChannel) Off(event protocol.EventName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, event)
}

func (f *fakeChannel) subscribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeChannel) push(t *testing.T, event protocol.EventName, data any) {
	t.Helper()
	env, err := protocol.NewEnvelope(event, data)
	require.NoError(t, err)

	f.mu.Lock()
	h := f.handlers[event]
	f.mu.Unlock()
	if h != nil {
		h(*env)
	}
}

func newController(gw *fakeGateway, ch *fakeChannel, opts ...room.Option) *room.Controller {
	return room.NewController(gw, ch, identity{selfUser}, opts...)
}

func TestOpenLoadsHistoryThenJoins(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	gw.history["r1"] = []models.Message{
		restMessage("2", "u2", 2),
		restMessage("1", "u1", 1),
		restMessage("3", "u2", 3),
	}

	var updates []room.Update
	c := newController(gw, ch, room.WithListener(func(u room.Update) { updates = append(updates, u) }))
	require.NoError(t, c.Open(context.Background(), general))

	assert.Equal(t, room.Active, c.State())
	assert.False(t, c.Degraded())
	assert.Equal(t, []string{"history r1", "join r1"}, gw.Calls())
	assert.Equal(t, []string{"join r1"}, ch.Calls())
	assert.Equal(t, 7, ch.subscribed())

	msgs := c.Messages()
	assert.Equal(t, []string{"1", "2", "3"}, ids(msgs))
	assert.True(t, msgs[0].IsMine)
	assert.False(t, msgs[1].IsMine)
	assert.Equal(t, "general", msgs[0].RoomName)
	assert.Equal(t, "r1", msgs[0].RoomID)

	current, ok := c.Room()
	assert.True(t, ok)
	assert.Equal(t, general, current)
	require.Len(t, updates, 1)
	assert.Equal(t, room.Opened, updates[0].Kind)
}

func TestLiveMessageAppends(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	gw.history["r1"] = []models.Message{restMessage("1", "u2", 1), restMessage("2", "u2", 2), restMessage("3", "u2", 3)}
	c := newController(gw, ch)
	require.NoError(t, c.Open(context.Background(), general))

	ch.push(t, protocol.NewMessageEvent, protocol.NewMessage{
		ID: "4", Content: "hi", UserID: "u1", UserName: "ann", RoomID: "r1", CreatedAt: at(4),
	})

	msgs := c.Messages()
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(msgs))
	last := msgs[3]
	assert.True(t, last.IsMine)
	assert.Equal(t, models.TypeText, last.Type)
	assert.Equal(t, "general", last.RoomName)
	assert.Equal(t, "ann", last.Author.Name)
}

func TestLiveMessageAlreadyInHistory(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	gw.history["r1"] = []models.Message{restMessage("4", "u2", 4), restMessage("5", "u2", 5)}
	c := newController(gw, ch)
	require.NoError(t, c.Open(context.Background(), general))

	ch.push(t, protocol.NewMessageEvent, protocol.NewMessage{
		ID: "5", Content: "from channel", UserID: "u2", RoomID: "r1", CreatedAt: at(5),
	})
	ch.push(t, protocol.NewMessageEvent, protocol.NewMessage{
		ID: "3", Content: "late", UserID: "u2", RoomID: "r1", CreatedAt: at(3),
	})

	msgs := c.Messages()
	assert.Equal(t, []string{"3", "4", "5"}, ids(msgs))
	assert.Equal(t, "from channel", msgs[2].Content)
}

func TestEditAndDeleteEvents(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	gw.history["r1"] = []models.Message{restMessage("1", "u2", 1), restMessage("2", "u2", 2)}
	c := newController(gw, ch)
	require.NoError(t, c.Open(context.Background(), general))

	ch.push(t, protocol.MessageEditedEvent, protocol.MessageEdited{ID: "missing", Content: "x", EditedAt: at(9), RoomID: "r1"})
	before := c.Messages()
	assert.False(t, before[0].IsEdited)

	ch.push(t, protocol.MessageEditedEvent, protocol.MessageEdited{ID: "1", Content: "fixed", EditedAt: at(9), RoomID: "r1"})
	msgs := c.Messages()
	assert.Equal(t, "fixed", msgs[0].Content)
	assert.True(t, msgs[0].IsEdited)
	require.NotNil(t, msgs[0].EditedAt)
	assert.Equal(t, at(9), msgs[0].EditedAt.UTC())

	ch.push(t, protocol.MessageDeletedEvent, protocol.MessageDeleted{MessageID: "2", RoomID: "r1"})
	ch.push(t, protocol.MessageDeletedEvent, protocol.MessageDeleted{MessageID: "2", RoomID: "r1"})
	ch.push(t, protocol.MessageDeletedEvent, protocol.MessageDeleted{MessageID: "missing", RoomID: "r1"})
	assert.Equal(t, []string{"1"}, ids(c.Messages()))
}

func TestTypingEvents(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	c := newController(gw, ch)
	require.NoError(t, c.Open(context.Background(), general))

	ch.push(t, protocol.UserTypingEvent, protocol.UserTyping{UserID: "u2", UserName: "bob", RoomID: "r1"})
	ch.push(t, protocol.UserTypingEvent, protocol.UserTyping{UserID: "u2", UserName: "bob", RoomID: "r1"})
	ch.push(t, protocol.UserTypingEvent, protocol.UserTyping{UserID: "u3", UserName: "cat"})
	assert.Equal(t, []room.TypingUser{{UserID: "u2", UserName: "bob"}, {UserID: "u3", UserName: "cat"}}, c.Typing())

	ch.push(t, protocol.UserStoppedTypingEvent, protocol.UserStoppedTyping{UserID: "u3", RoomID: "r1"})
	assert.Equal(t, []room.TypingUser{{UserID: "u2", UserName: "bob"}}, c.Typing())

	// a message from a typing user ends their typing indicator
	ch.push(t, protocol.NewMessageEvent, protocol.NewMessage{ID: "1", UserID: "u2", RoomID: "r1", CreatedAt: at(1)})
	assert.Empty(t, c.Typing())
}

func TestPresenceDoesNotTouchTimeline(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	gw.history["r1"] = []models.Message{restMessage("1", "u2", 1)}

	var kinds []room.UpdateKind
	c := newController(gw, ch, room.WithListener(func(u room.Update) { kinds = append(kinds, u.Kind) }))
	require.NoError(t, c.Open(context.Background(), general))

	ch.push(t, protocol.UserJoinedEvent, protocol.UserPresence{UserID: "u3", UserName: "cat", RoomID: "r1"})
	ch.push(t, protocol.UserLeftEvent, protocol.UserPresence{UserID: "u3", UserName: "cat", RoomID: "r1"})

	assert.Equal(t, []string{"1"}, ids(c.Messages()))
	assert.Equal(t, []room.UpdateKind{room.Opened, room.UserJoined, room.UserLeft}, kinds)
}

func TestEventsForOtherRoomsIgnored(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	c := newController(gw, ch)
	require.NoError(t, c.Open(context.Background(), general))

	ch.push(t, protocol.NewMessageEvent, protocol.NewMessage{ID: "1", RoomID: "r2", CreatedAt: at(1)})
	ch.push(t, protocol.UserTypingEvent, protocol.UserTyping{UserID: "u2", RoomID: "r2"})
	assert.Empty(t, c.Messages())
	assert.Empty(t, c.Typing())
}

func TestMalformedEventIgnored(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	c := newController(gw, ch)
	require.NoError(t, c.Open(context.Background(), general))

	ch.push(t, protocol.NewMessageEvent, "not an object")
	assert.Empty(t, c.Messages())
	assert.Equal(t, room.Active, c.State())
}

func TestRestJoinFailureAborts(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	gw.history["r1"] = []models.Message{restMessage("1", "u2", 1)}
	gw.joinErr = errBoom
	c := newController(gw, ch)

	err := c.Open(context.Background(), general)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, room.Idle, c.State())
	assert.Empty(t, c.Messages())
	assert.Empty(t, ch.Calls())
	assert.Zero(t, ch.subscribed())

	_, ok := c.Room()
	assert.False(t, ok)
}

func TestChannelJoinFailureDegrades(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	gw.history["r1"] = []models.Message{restMessage("1", "u2", 1)}
	ch.joinErr = realtime.ErrNotConnected
	c := newController(gw, ch)

	require.NoError(t, c.Open(context.Background(), general))
	assert.Equal(t, room.Active, c.State())
	assert.True(t, c.Degraded())
	assert.Equal(t, []string{"1"}, ids(c.Messages()))
}

func TestCloseDuringHistoryLoad(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	gw.history["r1"] = []models.Message{restMessage("1", "u2", 1)}
	gw.gate = make(chan struct{})
	gw.entered = make(chan struct{})
	c := newController(gw, ch)

	opened := make(chan error, 1)
	go func() {
		opened <- c.Open(context.Background(), general)
	}()

	<-gw.entered
	assert.Equal(t, room.LoadingHistory, c.State())
	require.NoError(t, c.Close(context.Background()))
	close(gw.gate)

	require.ErrorIs(t, <-opened, room.ErrStale)
	assert.Equal(t, room.Idle, c.State())
	assert.Empty(t, c.Messages())
	assert.Equal(t, []string{"leave r1"}, ch.Calls())
	assert.Zero(t, ch.subscribed())
	assert.NotContains(t, gw.Calls(), "join r1")
}

func TestCloseDuringRestJoinLeavesAgain(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	gw.joinGate = make(chan struct{})
	gw.joinEntered = make(chan struct{})
	c := newController(gw, ch)

	opened := make(chan error, 1)
	go func() {
		opened <- c.Open(context.Background(), general)
	}()

	<-gw.joinEntered
	require.NoError(t, c.Close(context.Background()))
	close(gw.joinGate)

	require.ErrorIs(t, <-opened, room.ErrStale)
	assert.Equal(t, room.Idle, c.State())
	assert.Equal(t, []string{"history r1", "leave r1", "join r1", "leave r1"}, gw.Calls())
	assert.NotContains(t, ch.Calls(), "join r1")
}

func TestCloseAttemptsBothLeaves(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	gw.history["r1"] = []models.Message{restMessage("1", "u2", 1)}
	c := newController(gw, ch)
	require.NoError(t, c.Open(context.Background(), general))
	ch.push(t, protocol.UserTypingEvent, protocol.UserTyping{UserID: "u2", RoomID: "r1"})

	gw.leaveErr = errBoom
	ch.leaveErr = realtime.ErrNotConnected
	err := c.Close(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, err, realtime.ErrNotConnected)

	assert.Contains(t, gw.Calls(), "leave r1")
	assert.Contains(t, ch.Calls(), "leave r1")
	assert.Equal(t, room.Idle, c.State())
	assert.Empty(t, c.Messages())
	assert.Empty(t, c.Typing())
	assert.Zero(t, ch.subscribed())

	// closing again is a no-op
	require.NoError(t, c.Close(context.Background()))
}

func TestSwitchingRooms(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	gw.history["r1"] = []models.Message{restMessage("1", "u2", 1)}
	gw.history["r2"] = []models.Message{restMessage("9", "u2", 9)}
	c := newController(gw, ch)

	require.NoError(t, c.Open(context.Background(), general))
	stale := protocol.NewMessage{ID: "2", RoomID: "r1", CreatedAt: at(2)}

	require.NoError(t, c.Open(context.Background(), random))
	assert.Equal(t, []string{"history r1", "join r1", "leave r1", "history r2", "join r2"}, gw.Calls())
	assert.Equal(t, []string{"join r1", "leave r1", "join r2"}, ch.Calls())
	assert.Equal(t, []string{"9"}, ids(c.Messages()))

	ch.push(t, protocol.NewMessageEvent, stale)
	assert.Equal(t, []string{"9"}, ids(c.Messages()))
}

func TestActionsRequireActiveRoom(t *testing.T) {
	c := newController(newGateway(), newChannel())
	ctx := context.Background()

	assert.ErrorIs(t, c.Send(ctx, "hi", models.TypeText), room.ErrNoActiveRoom)
	assert.ErrorIs(t, c.Edit(ctx, "1", "hi"), room.ErrNoActiveRoom)
	assert.ErrorIs(t, c.Delete(ctx, "1"), room.ErrNoActiveRoom)
	assert.ErrorIs(t, c.TypingStart(), room.ErrNoActiveRoom)
	assert.ErrorIs(t, c.TypingStop(), room.ErrNoActiveRoom)
	assert.ErrorIs(t, c.Input("h"), room.ErrNoActiveRoom)
	assert.ErrorIs(t, c.Send(ctx, "  ", models.TypeText), room.ErrEmptyContent)
}

func TestActionsOverChannel(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	c := newController(gw, ch)
	ctx := context.Background()
	require.NoError(t, c.Open(ctx, general))

	require.NoError(t, c.Input("h"))
	require.NoError(t, c.Input("he"))
	require.NoError(t, c.Send(ctx, "hello", ""))
	require.NoError(t, c.Edit(ctx, "m1", "hello!"))
	require.NoError(t, c.Delete(ctx, "m1"))
	require.NoError(t, c.Input(""))

	assert.Equal(t, []string{
		"join r1",
		"typing_start r1",
		"send r1 hello",
		"typing_stop r1",
		"edit m1",
		"delete m1",
	}, ch.Calls())
	assert.Equal(t, []string{"history r1", "join r1"}, gw.Calls())

	// channel sends wait for the server echo
	assert.Empty(t, c.Messages())
}

func TestInputTransitions(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	c := newController(gw, ch)
	require.NoError(t, c.Open(context.Background(), general))

	for _, text := range []string{"", "a", "ab", "abc", " ", "", "x", ""} {
		require.NoError(t, c.Input(text))
	}
	assert.Equal(t, []string{
		"join r1",
		"typing_start r1",
		"typing_stop r1",
		"typing_start r1",
		"typing_stop r1",
	}, ch.Calls())
}

func TestActionsFallBackToRest(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	gw.history["r1"] = []models.Message{restMessage("1", "u1", 1)}
	c := newController(gw, ch)
	ctx := context.Background()
	require.NoError(t, c.Open(ctx, general))

	ch.mu.Lock()
	ch.connected = false
	ch.mu.Unlock()

	require.NoError(t, c.Send(ctx, "offline", models.TypeText))
	msgs := c.Messages()
	require.Equal(t, []string{"1", "rest-1"}, ids(msgs))
	assert.True(t, msgs[1].IsMine)
	assert.Equal(t, "general", msgs[1].RoomName)

	require.NoError(t, c.Edit(ctx, "1", "edited offline"))
	msgs = c.Messages()
	assert.Equal(t, "edited offline", msgs[0].Content)
	assert.True(t, msgs[0].IsEdited)
	assert.Equal(t, at(200), *msgs[0].EditedAt)

	require.NoError(t, c.Delete(ctx, "rest-1"))
	assert.Equal(t, []string{"1"}, ids(c.Messages()))

	assert.Equal(t, []string{"history r1", "join r1", "send r1", "edit 1", "delete rest-1"}, gw.Calls())
}

func TestFailedSendKeepsNothing(t *testing.T) {
	gw, ch := newGateway(), newChannel()
	c := newController(gw, ch)
	ctx := context.Background()
	require.NoError(t, c.Open(ctx, general))

	ch.mu.Lock()
	ch.connected = false
	ch.mu.Unlock()
	gw.sendErr = errBoom

	err := c.Send(ctx, "lost?", models.TypeText)
	require.ErrorIs(t, err, errBoom)
	assert.Empty(t, c.Messages())
}
