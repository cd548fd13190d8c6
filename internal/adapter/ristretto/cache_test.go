package ristretto

import (
	"context"
	"testing"
	"time"
)

func TestCacheTTLExpiry(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "short", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(ctx, "short"); !found {
		t.Fatal("expected hit before expiry")
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, found, _ := c.Get(ctx, "short"); !found {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected entry to expire")
}

func TestCacheSetIfAbsentEmptyValue(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	stored, err := c.SetIfAbsent(ctx, "msg-1", nil, time.Minute)
	if err != nil || !stored {
		t.Fatalf("expected first store, got stored=%v err=%v", stored, err)
	}
	stored, _ = c.SetIfAbsent(ctx, "msg-1", nil, time.Minute)
	if stored {
		t.Fatal("expected duplicate to be rejected")
	}
}
