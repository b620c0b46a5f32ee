package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats are the lifetime counters of an LRUCache.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64 // dropped for capacity
	Expired   int64 // dropped on lookup or sweep after their TTL
}

// LRUCache holds at most maxSize entries, each living ttl after its last
// write or Touch. The least recently used entry goes first when full.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	index   map[string]*list.Element
	order   *list.List // front is most recent
	stats   Stats
}

type entry[T any] struct {
	key      string
	value    T
	deadline time.Time
}

func (e *entry[T]) expired(now time.Time) bool { return now.After(e.deadline) }

// NewLRUCache creates a cache. maxSize is at least 1.
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	return newLRUCache[T](maxSize, ttl, time.Now)
}

func newLRUCache[T any](maxSize int, ttl time.Duration, now func() time.Time) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     now,
		index:   make(map[string]*list.Element, maxSize),
		order:   list.New(),
	}
}

// lookup returns the live element for key, dropping it if it expired.
// Callers hold mu.
func (c *LRUCache[T]) lookup(key string) (*list.Element, *entry[T]) {
	el, ok := c.index[key]
	if !ok {
		return nil, nil
	}
	e := el.Value.(*entry[T])
	if e.expired(c.now()) {
		c.drop(el)
		c.stats.Expired++
		return nil, nil
	}
	return el, e
}

func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, e := c.lookup(key)
	if el == nil {
		c.stats.Misses++
		var zero T
		return zero, false
	}
	c.stats.Hits++
	c.order.MoveToFront(el)
	return e.value, true
}

func (c *LRUCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := c.now().Add(c.ttl)
	if el, ok := c.index[key]; ok {
		e := el.Value.(*entry[T])
		e.value, e.deadline = value, deadline
		c.order.MoveToFront(el)
		return
	}

	c.index[key] = c.order.PushFront(&entry[T]{key: key, value: value, deadline: deadline})
	for c.order.Len() > c.maxSize {
		c.drop(c.order.Back())
		c.stats.Evictions++
	}
}

// Touch renews a live entry's TTL without rewriting it. It reports false when
// the key is missing or already expired.
func (c *LRUCache[T]) Touch(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, e := c.lookup(key)
	if el == nil {
		return false
	}
	e.deadline = c.now().Add(c.ttl)
	c.order.MoveToFront(el)
	return true
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.drop(el)
	}
}

// CleanExpired sweeps expired entries and returns how many were removed.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry[T]).expired(now) {
			c.drop(el)
			removed++
		}
		el = prev
	}
	c.stats.Expired += int64(removed)
	return removed
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Stats returns a snapshot of the counters.
func (c *LRUCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *LRUCache[T]) drop(el *list.Element) {
	delete(c.index, el.Value.(*entry[T]).key)
	c.order.Remove(el)
}
