// Package natskv implements the cache port on a NATS JetStream KV bucket so
// dedupe keys are shared by every broker replica.
package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/ssepush/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

// Cache wraps a JetStream KeyValue bucket. Entry lifetime is the bucket's
// TTL; the per-call ttl argument is ignored.
type Cache struct {
	kv jetstream.KeyValue
}

// New creates a KV-backed cache.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Get retrieves a value from the bucket.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set stores a value in the bucket.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, encodeKey(key), value)
	return err
}

// SetIfAbsent creates key only when it does not exist. The check is atomic
// on the server, so exactly one replica wins a race.
func (c *Cache) SetIfAbsent(ctx context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	_, err := c.kv.Create(ctx, encodeKey(key), value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes a value from the bucket.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, encodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// encodeKey maps arbitrary keys onto the KV key alphabet.
func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}
