package cache

import (
	"testing"
	"time"
)

func TestCache(t *testing.T) {
	c := New(time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected a miss on an empty cache")
	}

	c.Put("score:kaiba", 1200, 0)
	v, ok := c.Get("score:kaiba")
	if !ok || v.(int) != 1200 {
		t.Fatalf("expected cached value 1200, got %v (found = %v)", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}

	c.Delete("score:kaiba")
	if _, ok := c.Get("score:kaiba"); ok {
		t.Error("expected Delete to evict the entry")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := New(0)

	c.Put("short", true, time.Millisecond)
	c.Put("forever", true, -1)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Error("expected the short lived entry to expire")
	}
	if _, ok := c.Get("forever"); !ok {
		t.Error("expected the entry without a ttl to remain")
	}
}
