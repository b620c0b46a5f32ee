package cache

import (
	"testing"
	"time"
)

// TestLRUCacheEviction tests size-based eviction
func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[string](3, time.Hour)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")
	c.Set("key4", "value4") // Should evict key1

	if _, found := c.Get("key1"); found {
		t.Error("key1 should have been evicted")
	}
	for _, k := range []string{"key2", "key3", "key4"} {
		if _, found := c.Get(k); !found {
			t.Errorf("%s should still exist", k)
		}
	}
}

func TestLRUCacheGetRefreshesRecency(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3) // evicts b, not a

	if _, found := c.Get("a"); !found {
		t.Error("recently read key a should survive")
	}
	if _, found := c.Get("b"); found {
		t.Error("b should have been evicted")
	}
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return newLRUCache[string](size, ttl, clk.now), clk
}

func TestLRUCacheTTLExpiration(t *testing.T) {
	c, clk := newTestCache(100, time.Minute)

	c.Set("key1", "value1")
	if _, found := c.Get("key1"); !found {
		t.Error("key1 should exist immediately")
	}

	clk.advance(61 * time.Second)
	if _, found := c.Get("key1"); found {
		t.Error("key1 should have expired")
	}
	if c.Size() != 0 {
		t.Errorf("expired entry should be dropped on lookup, size %d", c.Size())
	}
}

func TestLRUCacheTouch(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	c.Set("s", "v")

	clk.advance(50 * time.Second)
	if !c.Touch("s") {
		t.Fatal("Touch should find a live entry")
	}
	clk.advance(50 * time.Second)
	if _, found := c.Get("s"); !found {
		t.Error("touched entry should still be alive")
	}
	if c.Touch("missing") {
		t.Error("Touch of a missing key should report false")
	}

	clk.advance(2 * time.Minute)
	if c.Touch("s") {
		t.Error("Touch must not revive an expired entry")
	}
}

func TestLRUCacheSetRenewsTTL(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	c.Set("k", "old")
	clk.advance(45 * time.Second)
	c.Set("k", "new")
	clk.advance(45 * time.Second)

	if v, found := c.Get("k"); !found || v != "new" {
		t.Errorf("Get = %q, %v; want new, true", v, found)
	}
}

func TestLRUCacheCleanExpired(t *testing.T) {
	c, clk := newTestCache(100, time.Minute)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	clk.advance(30 * time.Second)
	c.Set("key3", "value3")
	clk.advance(45 * time.Second)

	if removed := c.CleanExpired(); removed != 2 {
		t.Errorf("Expected 2 items cleaned, got %d", removed)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d after cleanup, want 1", c.Size())
	}
}

func TestLRUCacheStats(t *testing.T) {
	c, clk := newTestCache(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Get("nope")
	c.Set("c", "3") // evicts b
	clk.advance(2 * time.Minute)
	c.Get("a") // expired

	want := Stats{Hits: 1, Misses: 2, Evictions: 1, Expired: 1}
	if got := c.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestManager(t *testing.T) {
	m := NewManager(nil)
	c := NewLRUCache[string](10, time.Nanosecond)
	m.Register("sessions", c)
	c.Set("k", "v")
	time.Sleep(time.Millisecond)

	if got := m.CleanNow()["sessions"]; got != 1 {
		t.Errorf("CleanNow() removed %d, want 1", got)
	}

	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a running cleanup")
	}
}

// BenchmarkLRUCache benchmarks cache performance
func BenchmarkLRUCache(b *testing.B) {
	c := NewLRUCache[string](1000, time.Hour)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if i%10 == 0 {
			c.Set("bench-key", "value")
		} else {
			c.Get("bench-key")
		}
	}
}
