package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestTTLCache_GetAfterSet(t *testing.T) {
	c := New[string]("test")

	c.Set("kev:0", "catalog", time.Minute)
	v, ok := c.Get("kev:0")
	assert.True(t, ok)
	assert.Equal(t, "catalog", v)

	_, ok = c.Get("nvd:90")
	assert.False(t, ok, "never-set key must miss")
}

func TestTTLCache_Expiry(t *testing.T) {
	clock := newFakeClock()
	c := New[int]("test", WithClock(clock))

	c.Set("k", 42, 10*time.Second)

	clock.Advance(9 * time.Second)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	clock.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry must miss once ttl has elapsed")
	assert.Equal(t, 0, c.Len(), "expired entry is removed by the read that finds it")
}

func TestTTLCache_LazyExpiryKeepsEntryUntilRead(t *testing.T) {
	clock := newFakeClock()
	c := New[int]("test", WithClock(clock))

	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Hour)
	clock.Advance(2 * time.Second)

	assert.Equal(t, 2, c.Len())
	assert.ElementsMatch(t, []string{"b"}, c.Keys())
}

func TestTTLCache_NonPositiveTTL(t *testing.T) {
	c := New[int]("test")
	c.Set("k", 1, 0)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestTTLCache_DeleteAndClear(t *testing.T) {
	c := New[int]("test")
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_Concurrency(t *testing.T) {
	c := New[int]("test")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Set(key, id, time.Minute)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, c.Len())
}

func TestTTLCache_PeekDoesNotEvict(t *testing.T) {
	clock := newFakeClock()
	c := New[int]("test", WithClock(clock))
	c.Set("k", 7, time.Second)

	v, ok := c.Peek("k")
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	clock.Advance(time.Second)
	_, ok = c.Peek("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(), "peek leaves expired entries for the next Get")
}
