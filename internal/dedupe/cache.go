// ABOUTME: Thread-safe TTL cache of form idempotency keys
// ABOUTME: Stops a double-clicked or replayed chat form from submitting the same message twice

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key     string
	claimed time.Time
}

// Cache remembers claimed keys for a TTL, holding at most maxSize of them.
// The oldest claim is evicted first when full.
type Cache struct {
	mu      sync.Mutex
	claims  map[string]*list.Element
	order   *list.List // *entry, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts its background sweep.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		claims:  make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Key joins a session scope and a form key.
func Key(scope, formKey string) string {
	return scope + "\x00" + formKey
}

// Claim marks key as used. It returns true when the caller is the first to
// claim it within the TTL, false for a duplicate.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.claims[key]; ok {
		e := el.Value.(*entry)
		if now.Sub(e.claimed) < c.ttl {
			return false
		}
		// expired: reclaim in place
		e.claimed = now
		c.order.MoveToBack(el)
		return true
	}

	if len(c.claims) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.claims[key] = c.order.PushBack(&entry{key: key, claimed: now})
	return true
}

// Release forgets key so it can be claimed again, used when the guarded
// action was refused and the user may retry with the same form.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.claims[key]; ok {
		c.order.Remove(el)
		delete(c.claims, key)
	}
}

// Len returns the number of live claims.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.claims, front.Value.(*entry).key)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep drops expired claims. Claims are in claim order, so it stops at
// the first live one.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for el := c.order.Front(); el != nil; {
		e := el.Value.(*entry)
		if now.Sub(e.claimed) < c.ttl {
			return
		}
		next := el.Next()
		c.order.Remove(el)
		delete(c.claims, e.key)
		el = next
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
