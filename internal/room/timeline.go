package room

import (
	"slices"
	"time"

	"github.com/gregriff/parley/internal/models"
)

// timeline is the ordered, deduplicated message list of the open room.
// It is sorted by CreatedAt ascending; ties keep insertion order.
type timeline struct {
	msgs []models.Message
}

func (t *timeline) index(id string) int {
	return slices.IndexFunc(t.msgs, func(m models.Message) bool { return m.ID == id })
}

// upsert replaces the message with the same id, or inserts it.
func (t *timeline) upsert(m models.Message) {
	if i := t.index(m.ID); i >= 0 {
		t.msgs[i] = m
	} else {
		t.msgs = append(t.msgs, m)
	}
	slices.SortStableFunc(t.msgs, func(a, b models.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// edit updates a message's content. It reports false when id is absent.
func (t *timeline) edit(id, content string, editedAt time.Time) bool {
	i := t.index(id)
	if i < 0 {
		return false
	}
	t.msgs[i].Content = content
	t.msgs[i].IsEdited = true
	t.msgs[i].EditedAt = &editedAt
	return true
}

// remove deletes a message. It reports false when id is absent.
func (t *timeline) remove(id string) bool {
	i := t.index(id)
	if i < 0 {
		return false
	}
	t.msgs = slices.Delete(t.msgs, i, i+1)
	return true
}

func (t *timeline) snapshot() []models.Message {
	return slices.Clone(t.msgs)
}

func (t *timeline) reset() {
	t.msgs = nil
}
