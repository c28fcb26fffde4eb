package cache

import (
	"sync"
	"testing"
	"time"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a = %d, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d, want 2", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	clock := &manualClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCacheWithClock[string](10, time.Minute, clock.Now)
	c.Set("token", "u1")
	c.Set("other", "u2")

	clock.Advance(30 * time.Second)
	if _, ok := c.Get("token"); !ok {
		t.Fatal("entry expired early")
	}

	clock.Advance(time.Minute)
	if _, ok := c.Get("token"); ok {
		t.Fatal("entry outlived its ttl")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Fatalf("size = %d after cleanup", c.Size())
	}
}

func TestTakeRemoves(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	c.Set("k", "v")
	if v, ok := c.Take("k"); !ok || v != "v" {
		t.Fatalf("Take = %q, %v", v, ok)
	}
	if _, ok := c.Take("k"); ok {
		t.Fatal("second Take should miss")
	}
}

func TestManagerSweep(t *testing.T) {
	clock := &manualClock{t: time.Now()}
	a := NewLRUCacheWithClock[int](10, time.Second, clock.Now)
	b := NewLRUCacheWithClock[int](10, time.Hour, clock.Now)
	a.Set("x", 1)
	b.Set("y", 2)

	m := NewManager()
	m.Register(a, b)
	clock.Advance(time.Minute)

	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
