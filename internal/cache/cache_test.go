package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestLRUCache_GetSetEvict(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3) // evicts b, the least recently used

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", c.Size())
	}

	hits, misses := c.Stats()
	if hits != 2 || misses != 1 {
		t.Fatalf("Stats() = %d/%d, want 2/1", hits, misses)
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("short", "x")
	c.SetUntil("long", "y", now.Add(time.Hour))

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("short"); ok {
		t.Fatal("short should have expired")
	}
	if _, ok := c.Get("long"); !ok {
		t.Fatal("long should still be cached")
	}

	now = now.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", c.Size())
	}
}

func TestManager_Sweep(t *testing.T) {
	now := time.Now()
	c := NewLRUCache[bool](10, time.Second)
	c.now = func() time.Time { return now }
	c.Set("k", true)

	m := NewManager(nil)
	m.Register("test", c)
	now = now.Add(time.Minute)

	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	m.Stop()
	m.Stop()
}

type plainCleaner struct{}

func (plainCleaner) CleanExpired() int { return 0 }

func TestManager_Stats(t *testing.T) {
	a := NewLRUCache[int](10, time.Minute)
	a.Set("x", 1)
	a.Get("x")
	a.Get("y")

	m := NewManager(nil)
	m.Register("b_plain", plainCleaner{})
	m.Register("a_users", a)

	stats := m.Stats()
	if len(stats) != 1 {
		t.Fatalf("Stats() len = %d, want 1", len(stats))
	}
	want := Stat{Name: "a_users", Size: 1, Hits: 1, Misses: 1}
	if stats[0] != want {
		t.Fatalf("Stats()[0] = %+v, want %+v", stats[0], want)
	}
}

func TestExpiringCache_NoSizeBound(t *testing.T) {
	c := NewExpiringCache[int](time.Minute)
	for i := 0; i < 5000; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}
	if c.Size() != 5000 {
		t.Fatalf("Size() = %d, want 5000", c.Size())
	}
	if v, ok := c.Get("k0"); !ok || v != 0 {
		t.Fatalf("oldest entry evicted: %v %v", v, ok)
	}

	now := time.Now()
	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	if removed := c.CleanExpired(); removed != 5000 {
		t.Fatalf("CleanExpired() = %d, want 5000", removed)
	}
}
