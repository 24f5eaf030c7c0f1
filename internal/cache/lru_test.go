package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func withClock[T any](c *LRUCache[T]) *time.Time {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return &now
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)

	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3)
	_, ok = c.Get("b")
	require.False(t, ok)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.Equal(t, 2, c.Size())
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	now := withClock(c)

	c.Set("s", "session")
	*now = now.Add(30 * time.Second)
	_, ok := c.Get("s")
	require.True(t, ok)

	*now = now.Add(31 * time.Second)
	_, ok = c.Get("s")
	require.False(t, ok)
	require.Equal(t, 0, c.Size())
}

func TestLRUSetRefreshesTTL(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	now := withClock(c)

	c.Set("k", 1)
	*now = now.Add(50 * time.Second)
	c.Set("k", 2)
	*now = now.Add(50 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestCleanExpiredAndDelete(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	now := withClock(c)

	c.Set("old", 1)
	*now = now.Add(2 * time.Minute)
	c.Set("new", 2)
	c.Set("gone", 3)
	c.Delete("gone")

	m := NewManager(nil)
	m.Register(c)
	require.Equal(t, 1, m.CleanNow())
	require.Equal(t, 1, c.Size())
	m.Stop()
	m.Stop()
}

func TestManagerStartStop(t *testing.T) {
	m := NewManager(nil)
	m.Register(NewLRUCache[int](1, time.Millisecond))
	m.StartCleanup(time.Millisecond)
	m.StartCleanup(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	m.Stop()
}

func TestMinimumSize(t *testing.T) {
	c := NewLRUCache[int](0, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	require.Equal(t, 1, c.Size())
}
