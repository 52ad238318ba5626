package querycache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestCache(ttl time.Duration) (*Cache, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(ttl)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCacheGetSet(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	var got []item
	hit, err := c.Get("rooms", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set("rooms", []item{{ID: "r1", Name: "general"}}))

	hit, err = c.Get("rooms", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []item{{ID: "r1", Name: "general"}}, got)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Sets)
}

func TestCacheExpiry(t *testing.T) {
	c, now := newTestCache(30 * time.Second)
	require.NoError(t, c.Set("users", []item{{ID: "u1"}}))

	*now = now.Add(29 * time.Second)
	var got []item
	hit, _ := c.Get("users", &got)
	assert.True(t, hit)

	*now = now.Add(time.Second)
	hit, _ = c.Get("users", &got)
	assert.False(t, hit)
}

func TestCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	require.NoError(t, c.Set("/chat/rooms", 1))
	require.NoError(t, c.Set("/chat/rooms/r1", 2))
	require.NoError(t, c.Set("/users", 3))

	c.Invalidate("/chat/rooms")

	var v int
	hit, _ := c.Get("/chat/rooms", &v)
	assert.False(t, hit)
	hit, _ = c.Get("/chat/rooms/r1", &v)
	assert.False(t, hit)
	hit, _ = c.Get("/users", &v)
	assert.True(t, hit)
	assert.Equal(t, uint64(2), c.Stats().Invalidations)

	c.Clear()
	hit, _ = c.Get("/users", &v)
	assert.False(t, hit)
}

func TestCacheDisabled(t *testing.T) {
	c := New(0)
	require.NoError(t, c.Set("k", 1))
	var v int
	hit, err := c.Get("k", &v)
	require.NoError(t, err)
	assert.False(t, hit)

	var nilCache *Cache
	hit, err = nilCache.Get("k", &v)
	require.NoError(t, err)
	assert.False(t, hit)
	nilCache.Invalidate("k")
}
