// Package tiered implements a two-level (L1 + L2) cache adapter.
package tiered

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Strob0t/ssepush/internal/port/cache"
	"github.com/Strob0t/ssepush/internal/resilience"
)

var _ cache.Cache = (*Cache)(nil)

// Cache combines an in-process L1 with a shared L2. Reads check L1 first and
// backfill it on an L2 hit; writes go to both. L2 calls run through a
// circuit breaker: while L2 is failing the cache degrades to L1 only and
// reports no error, so dedupe becomes per-replica instead of blocking pushes.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
	breaker  *resilience.Breaker
}

// New creates a tiered cache with the given L1 and L2 backends.
// l1Expire controls how long L2 backfill entries live in L1. breaker may be nil.
func New(l1, l2 cache.Cache, l1Expire time.Duration, breaker *resilience.Breaker) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire, breaker: breaker}
}

// Get checks L1, then L2. On L2 hit, backfills L1.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	err = c.remote(ctx, "get", func() error {
		val, found, err = c.l2.Get(ctx, key)
		return err
	})
	if err != nil || !found {
		return nil, false, nil
	}
	_ = c.l1.Set(ctx, key, val, c.l1Expire)
	return val, true, nil
}

// Set writes to both L1 and L2.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = c.remote(ctx, "set", func() error {
		return c.l2.Set(ctx, key, value, ttl)
	})
	return nil
}

// SetIfAbsent claims key in L2, which arbitrates between replicas, and
// mirrors a successful claim into L1. When L2 is unavailable L1 decides alone.
func (c *Cache) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if _, found, err := c.l1.Get(ctx, key); err != nil {
		return false, err
	} else if found {
		return false, nil
	}

	var stored bool
	err := c.remote(ctx, "set_if_absent", func() error {
		var err error
		stored, err = c.l2.SetIfAbsent(ctx, key, value, ttl)
		return err
	})
	if err != nil {
		return c.l1.SetIfAbsent(ctx, key, value, ttl)
	}

	if stored {
		if err := c.l1.Set(ctx, key, value, ttl); err != nil {
			return false, err
		}
	}
	return stored, nil
}

// Delete removes from both L1 and L2.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	_ = c.remote(ctx, "delete", func() error {
		return c.l2.Delete(ctx, key)
	})
	return nil
}

// remote runs an L2 call through the breaker and logs failures.
func (c *Cache) remote(ctx context.Context, op string, fn func() error) error {
	var err error
	if c.breaker == nil {
		err = fn()
	} else {
		err = c.breaker.Execute(fn)
	}
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		slog.WarnContext(ctx, "l2 cache call failed", "op", op, "error", err)
	}
	return err
}
