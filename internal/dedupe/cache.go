// ABOUTME: Thread-safe TTL cache for suppressing redelivered platform activities.
// ABOUTME: Size-bounded with oldest-first eviction; expired entries are pruned on insert.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key     string
	seenAt  time.Time
	element *list.Element
}

// Cache remembers which activity keys have been processed. Entries expire
// after the TTL; when the cache is full the oldest entry is evicted.
// Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a cache with the given TTL and maximum entry count.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen atomically checks whether key was already recorded and records it
// if not. Returns true when the key is a duplicate. The single-step
// check-and-record avoids a window where two redeliveries of the same
// activity both pass.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.seen[key]; ok && now.Sub(e.seenAt) < c.ttl {
		return true
	}

	c.pruneExpired(now)

	if e, ok := c.seen[key]; ok {
		// Expired entry for the same key: refresh in place
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return false
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	e := &entry{key: key, seenAt: now}
	e.element = c.order.PushBack(e)
	c.seen[key] = e
	return false
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// pruneExpired drops expired entries from the front of the order list.
// Must be called with mu held.
func (c *Cache) pruneExpired(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		e := front.Value.(*entry)
		if now.Sub(e.seenAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, e.key)
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	e := front.Value.(*entry)
	c.order.Remove(front)
	delete(c.seen, e.key)
}
