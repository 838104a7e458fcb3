package cache

import (
	"context"
	"testing"
	"time"

	pkgcache "RoundPull/pkg/cache"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.SetBytes(ctx, "k", []byte("v"), time.Second)
	if b, ok, _ := c.GetBytes(ctx, "k"); !ok || string(b) != "v" {
		t.Fatalf("get = %q %v", b, ok)
	}
	now = now.Add(2 * time.Second)
	if _, ok, _ := c.GetBytes(ctx, "k"); ok {
		t.Fatalf("expired entry served")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry kept")
	}

	_ = c.SetBytes(ctx, "a", []byte("1"), 0)
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("purge left entries")
	}
}

func TestServiceCacheBytes(t *testing.T) {
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	c := NewServiceCache(mc)
	ctx := context.Background()

	if _, ok, err := c.GetBytes(ctx, "missing"); ok || err != nil {
		t.Fatalf("miss = %v %v", ok, err)
	}
	body := []byte(`{"rows":[]}`)
	if err := c.SetBytes(ctx, "h", body, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	b, ok, err := c.GetBytes(ctx, "h")
	if err != nil || !ok || string(b) != string(body) {
		t.Fatalf("get = %q %v %v", b, ok, err)
	}
}
