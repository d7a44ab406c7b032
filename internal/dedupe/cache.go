// ABOUTME: TTL and size bounded seen-id cache for inbound frame idempotency
// ABOUTME: Insertion-ordered list gives O(1) eviction of the oldest id

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	at      time.Time
	element *list.Element
}

// Cache remembers message ids for a TTL, capped at maxSize entries.
// The protocol is best-effort and may redeliver frames; the cache is what
// makes processing them idempotent without keeping ids forever.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // ids in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts a background sweep of expired ids.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Seen atomically checks and marks an id. It returns true when the id was
// already recorded and has not expired; false means the id is new and is
// now marked. A single call site per id avoids check-then-mark races.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[id]; ok && time.Since(e.at) < c.ttl {
		// A re-sighting is recency: refresh the stamp and the eviction
		// order, otherwise the busiest id is the first one evicted.
		e.at = time.Now()
		c.order.MoveToBack(e.element)
		return true
	}
	c.mark(id)
	return false
}

// mark records an id, evicting the oldest entry at capacity. Must hold mu.
func (c *Cache) mark(id string) {
	now := time.Now()
	if e, ok := c.seen[id]; ok {
		e.at = now
		c.order.MoveToBack(e.element)
		return
	}
	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			old, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, old)
		}
	}
	c.seen[id] = &entry{at: now, element: c.order.PushBack(id)}
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for id, e := range c.seen {
				if now.Sub(e.at) > c.ttl {
					c.order.Remove(e.element)
					delete(c.seen, id)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

// Close stops the background sweep. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
