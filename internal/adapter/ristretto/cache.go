// Package ristretto implements the cache port using dgraph-io/ristretto as an
// in-process cache for idempotency keys and trigger message ids.
package ristretto

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache wraps a ristretto cache. Writes wait for the ristretto buffers to
// drain so a Get issued after Set observes the value.
type Cache struct {
	c *ristretto.Cache[string, []byte]

	// mu serializes SetIfAbsent; plain Get/Set/Delete do not take it.
	mu sync.Mutex
}

// New creates a ristretto-backed cache. maxCostBytes is the maximum total
// size of cached values in bytes.
func New(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get retrieves a value from the cache.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value in the cache with the given TTL.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.set(key, value, ttl)
	return nil
}

// SetIfAbsent stores value only when key is not cached yet.
func (c *Cache) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found := c.c.Get(key); found {
		return false, nil
	}
	c.set(key, value, ttl)
	return true, nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}

func (c *Cache) set(key string, value []byte, ttl time.Duration) {
	// Empty values still need a positive cost to be admitted.
	cost := int64(len(value))
	if cost == 0 {
		cost = 1
	}
	c.c.SetWithTTL(key, value, cost, ttl)
	c.c.Wait()
}
