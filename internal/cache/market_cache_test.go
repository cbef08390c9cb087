package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestTTLCacheExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC)}
	c := NewTTLCache[string, float64](5*time.Minute, clock)

	c.Set("AAPL", 189.5)
	v, ok := c.Get("AAPL")
	assert.True(t, ok)
	assert.Equal(t, 189.5, v)

	clock.Advance(4*time.Minute + 59*time.Second)
	_, ok = c.Get("AAPL")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("AAPL")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheOverwriteRefreshes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewTTLCache[string, int](time.Minute, clock)

	c.Set("k", 1)
	clock.Advance(50 * time.Second)
	c.Set("k", 2)
	clock.Advance(50 * time.Second)

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	c.Clear()
	_, ok = c.Get("k")
	assert.False(t, ok)
}
