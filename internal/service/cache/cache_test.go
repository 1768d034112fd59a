package cache

import (
	"context"
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)
	c := NewTTLCache()
	c.now = func() time.Time { return now }

	if err := c.SetBytes(ctx, "k", []byte("v"), 5*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	b, ok, err := c.GetBytes(ctx, "k")
	if err != nil || !ok || string(b) != "v" {
		t.Fatalf("expected hit, got %q %v %v", b, ok, err)
	}

	now = now.Add(6 * time.Second)
	if _, ok, _ := c.GetBytes(ctx, "k"); ok {
		t.Fatalf("expected expired entry")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be evicted on read")
	}
}

func TestTTLCacheCopiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewTTLCache()
	v := []byte("abc")
	_ = c.SetBytes(ctx, "k", v, 0)
	v[0] = 'x'
	b, _, _ := c.GetBytes(ctx, "k")
	if string(b) != "abc" {
		t.Fatalf("cache must not alias caller buffer: %q", b)
	}
}
