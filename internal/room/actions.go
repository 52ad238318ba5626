package room

import (
	"context"
	"fmt"
	"strings"

	"github.com/gregriff/parley/internal/models"
)

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Room returns the room being opened or open, if any.
func (c *Controller) Room() (models.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.state != Idle
}

// Messages returns a copy of the timeline.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeline.snapshot()
}

// Typing returns a copy of the typing set.
func (c *Controller) Typing() []TypingUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing.snapshot()
}

// Degraded reports whether the open room has no live updates because the
// channel join failed.
func (c *Controller) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// active returns the id and generation of the active room.
func (c *Controller) active() (string, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active {
		return "", 0, ErrNoActiveRoom
	}
	return c.room.ID, c.gen, nil
}

// Send posts a message to the active room. Over the channel the message
// appears once the server echoes it; over the REST fallback it is added to
// the timeline directly. On error nothing was sent and the caller should
// keep the input.
func (c *Controller) Send(ctx context.Context, content string, typ models.MessageType) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	roomID, gen, err := c.active()
	if err != nil {
		return err
	}
	typ = typ.OrDefault()

	if c.channel.Connected() {
		if err := c.channel.SendMessage(roomID, content, typ); err != nil {
			return err
		}
		c.stopComposing(roomID)
		return nil
	}

	c.logger.Debug("channel down, sending over rest", "room", roomID)
	sent, err := c.gateway.SendMessage(ctx, roomID, models.NewMessage{Content: content, Type: typ})
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	selfID := c.selfID()
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	sent = c.normalize(sent, selfID)
	c.timeline.upsert(sent)
	c.composing = false
	c.mu.Unlock()

	c.emit(Update{Kind: MessageAdded, RoomID: roomID, Message: sent, MessageID: sent.ID})
	return nil
}

// Edit replaces the content of a message in the active room.
func (c *Controller) Edit(ctx context.Context, messageID, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	roomID, gen, err := c.active()
	if err != nil {
		return err
	}

	if c.channel.Connected() {
		return c.channel.EditMessage(messageID, content)
	}

	edited, err := c.gateway.EditMessage(ctx, messageID, content)
	if err != nil {
		return fmt.Errorf("editing message: %w", err)
	}
	editedAt := c.now()
	if edited.EditedAt != nil {
		editedAt = *edited.EditedAt
	}

	c.mu.Lock()
	changed := c.gen == gen && c.timeline.edit(messageID, content, editedAt)
	c.mu.Unlock()

	if changed {
		c.emit(Update{Kind: MessageEdited, RoomID: roomID, MessageID: messageID})
	}
	return nil
}

// Delete removes a message from the active room.
func (c *Controller) Delete(ctx context.Context, messageID string) error {
	roomID, gen, err := c.active()
	if err != nil {
		return err
	}

	if c.channel.Connected() {
		return c.channel.DeleteMessage(messageID)
	}

	if err := c.gateway.DeleteMessage(ctx, messageID); err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}

	c.mu.Lock()
	changed := c.gen == gen && c.timeline.remove(messageID)
	c.mu.Unlock()

	if changed {
		c.emit(Update{Kind: MessageDeleted, RoomID: roomID, MessageID: messageID})
	}
	return nil
}

// TypingStart tells the active room the user is composing.
func (c *Controller) TypingStart() error {
	roomID, _, err := c.active()
	if err != nil {
		return err
	}
	return c.channel.StartTyping(roomID)
}

// TypingStop tells the active room the user stopped composing.
func (c *Controller) TypingStop() error {
	roomID, _, err := c.active()
	if err != nil {
		return err
	}
	return c.channel.StopTyping(roomID)
}

// Input records the current composer text, sending typing start and stop
// only when it goes from empty to non-empty and back.
func (c *Controller) Input(text string) error {
	composing := strings.TrimSpace(text) != ""

	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return ErrNoActiveRoom
	}
	roomID := c.room.ID
	changed := c.composing != composing
	c.composing = composing
	c.mu.Unlock()

	if !changed {
		return nil
	}
	if composing {
		return c.channel.StartTyping(roomID)
	}
	return c.channel.StopTyping(roomID)
}

func (c *Controller) stopComposing(roomID string) {
	c.mu.Lock()
	was := c.composing
	c.composing = false
	c.mu.Unlock()

	if was {
		if err := c.channel.StopTyping(roomID); err != nil {
			c.logger.Debug("stop typing failed", "error", err)
		}
	}
}
