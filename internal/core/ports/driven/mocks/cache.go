package mocks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// Ensure MockCache implements Cache
var _ driven.Cache = (*MockCache)(nil)

// MockCache is an in-memory Cache for testing. It honours TTLs against
// an injectable clock and counts operations so tests can assert on
// hit/miss behaviour.
type MockCache struct {
	mu      sync.Mutex
	entries map[string]mockEntry
	now     func() time.Time

	// Disabled makes every operation behave as an unavailable backing
	// store: gets miss, sets are dropped.
	Disabled bool

	Gets   int
	Hits   int
	Sets   int
	Purged int
}

type mockEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMockCache creates an empty MockCache using the wall clock.
func NewMockCache() *MockCache {
	return &MockCache{
		entries: make(map[string]mockEntry),
		now:     time.Now,
	}
}

// SetClock replaces the cache's clock, for TTL tests.
func (c *MockCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the value for key if present and unexpired.
func (c *MockCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Gets++
	if c.Disabled {
		return nil, false
	}
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	c.Hits++
	return append([]byte(nil), e.value...), true
}

// Set stores value under key.
func (c *MockCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Sets++
	if c.Disabled {
		return
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = mockEntry{value: append([]byte(nil), value...), expiresAt: expiresAt}
}

// Invalidate removes all entries with the given key prefix.
func (c *MockCache) Invalidate(_ context.Context, prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Disabled {
		return 0
	}
	var n int
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	c.Purged += n
	return n
}

// Len returns the number of stored entries.
func (c *MockCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
