package cache

import (
	"sync"
	"time"
)

// Clock is injected so expiry can be tested with fake time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is an in-memory cache owned by the component that needs it.
// It replaces process-wide provider metadata caches.
type TTLCache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]
	ttl   time.Duration
	clock Clock
}

func NewTTLCache[K comparable, V any](ttl time.Duration, clock Clock) *TTLCache[K, V] {
	if clock == nil {
		clock = SystemClock
	}
	return &TTLCache[K, V]{
		items: make(map[K]entry[V]),
		ttl:   ttl,
		clock: clock,
	}
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.mu.Lock()
		// re-check: a concurrent Set may have refreshed the entry
		if cur, still := c.items[key]; still && !c.clock.Now().Before(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[V]{value: value, expiresAt: c.clock.Now().Add(c.ttl)}
}

// Len counts entries, expired ones included until they are touched.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]entry[V])
}
