package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Cache = (*Cache)(nil)

// Cache implements the Cache port in process memory. Used when no Redis
// is configured and as the fallback when Redis is unreachable at
// startup. Entries expire lazily on read plus a periodic sweep.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewCache creates an in-memory cache. A background janitor sweeps
// expired entries every sweepInterval; zero disables the sweep.
func NewCache(sweepInterval time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.janitor(sweepInterval)
	}
	return c
}

func (c *Cache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// Get returns the value for key if present and unexpired.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return append([]byte(nil), e.value...), true
}

// Set stores value under key with the given TTL. Zero TTL means no
// expiry.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry{value: append([]byte(nil), value...), expiresAt: expiresAt}
	c.mu.Unlock()
}

// Invalidate removes every entry whose key starts with prefix.
func (c *Cache) Invalidate(_ context.Context, prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Close stops the janitor.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}
