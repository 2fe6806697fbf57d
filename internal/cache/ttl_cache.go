package cache

import (
	"sync"
	"time"

	"github.com/lcalzada-xor/cyberiq/internal/telemetry"
)

// Clock supplies the current time. Tests inject a fake one.
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

// TTLCache is a thread-safe key/value store with per-entry expiry.
// Expired entries are removed by the read that finds them; there is no
// background sweep and no size-based eviction.
type TTLCache[V any] struct {
	name    string
	clock   Clock
	entries map[string]entry[V]
	mu      sync.Mutex
}

// Option configures a TTLCache.
type Option func(*options)

type options struct {
	clock Clock
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// New creates an empty cache. name labels the hit/miss metrics.
func New[V any](name string, opts ...Option) *TTLCache[V] {
	o := options{clock: SystemClock}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLCache[V]{
		name:    name,
		clock:   o.clock,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the value for key. A missing or expired key reports false.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		telemetry.CacheLookups.WithLabelValues(c.name, "miss").Inc()
		var zero V
		return zero, false
	}

	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		telemetry.CacheLookups.WithLabelValues(c.name, "expired").Inc()
		var zero V
		return zero, false
	}

	telemetry.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	return e.value, true
}

// Peek is Get without touching lookup metrics or evicting. Used for reporting.
func (c *TTLCache[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.clock.Now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for ttl. A non-positive ttl stores nothing.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.clock.Now().Add(ttl),
	}
}

// Delete removes key if present.
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, expired ones included until
// they are read.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Keys returns the keys of all unexpired entries.
func (c *TTLCache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	keys := make([]string, 0, len(c.entries))
	for k, e := range c.entries {
		if now.Before(e.expiresAt) {
			keys = append(keys, k)
		}
	}
	return keys
}
