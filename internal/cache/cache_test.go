package cache

import (
	"context"
	"testing"
	"time"
)

func TestCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := New[string, int](0)
	defer c.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	c.now = func() time.Time { return now }

	c.Set(ctx, "gas", 30, 10*time.Second)
	c.Set(ctx, "forever", 1, 0)

	tests := []struct {
		name    string
		advance time.Duration
		key     string
		want    int
		wantOK  bool
	}{
		{"fresh", 0, "gas", 30, true},
		{"before_expiry", 9 * time.Second, "gas", 30, true},
		{"after_expiry", 11 * time.Second, "gas", 0, false},
		{"no_ttl", time.Hour, "forever", 1, true},
		{"missing", 0, "nope", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = base.Add(tt.advance)
			got, ok := c.Get(ctx, tt.key)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Get(%q) = (%d, %v), want (%d, %v)", tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCache_EvictExpired(t *testing.T) {
	ctx := context.Background()
	c := New[string, string](0)
	defer c.Close()

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set(ctx, "a", "x", time.Second)
	c.Set(ctx, "b", "y", time.Hour)

	c.now = func() time.Time { return base.Add(2 * time.Second) }
	c.evictExpired()

	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if _, ok := c.Get(ctx, "b"); !ok {
		t.Error("expected b to survive eviction")
	}
}

func TestCache_DeleteAndDoubleClose(t *testing.T) {
	ctx := context.Background()
	c := New[int, int](time.Millisecond)
	c.Set(ctx, 1, 1, 0)
	c.Delete(ctx, 1)
	if _, ok := c.Get(ctx, 1); ok {
		t.Error("expected key to be deleted")
	}
	c.Close()
	c.Close()
}
