package driven

import (
	"context"
	"time"
)

// Cache is the content-addressed key/value store backing the mapper,
// window engine and extractors. Keys are opaque strings composed by
// callers via the helpers in domain/cachekey.go.
//
// The port deliberately surfaces no errors: a backing-store failure or
// an operation exceeding the adapter's bounded timeout degrades to a
// miss (Get) or a no-op (Set, Invalidate). The rest of the system stays
// correct, merely slower, when the cache is absent.
//
// Implementations must be safe for concurrent use by arbitrarily many
// goroutines with no external locking.
type Cache interface {
	// Get returns the value for key, or ok=false on a miss. Expired
	// entries are misses.
	Get(ctx context.Context, key string) (value []byte, ok bool)

	// Set stores value under key with the given TTL. ttl <= 0 means the
	// adapter's default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)

	// Invalidate removes all entries whose key begins with prefix and
	// returns how many were removed (best effort).
	Invalidate(ctx context.Context, prefix string) int
}
