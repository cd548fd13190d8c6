// Package cache defines the port interface for short-lived key-value caching
// used to de-duplicate push triggers.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. Entries may be evicted
// before their TTL when the cache is full.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// SetIfAbsent stores value only when key is not present and reports
	// whether it did.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}
