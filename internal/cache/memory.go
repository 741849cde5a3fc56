package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const (
	defaultMemoryEntries = 1000
	memorySweepInterval  = time.Minute
)

// MemoryClient is a process-local LRU cache. A hit moves the entry to the
// front; the least recently used entry goes first when the cache is full.
type MemoryClient struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int
	stop     chan struct{}
	stopOnce sync.Once
}

type memoryEntry struct {
	key      string
	value    []byte
	deadline time.Time
}

// NewMemoryClient returns a cache holding at most capacity results and a
// goroutine that sweeps expired ones until Close.
func NewMemoryClient(capacity int) *MemoryClient {
	if capacity <= 0 {
		capacity = defaultMemoryEntries
	}
	c := &MemoryClient{
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
		stop:     make(chan struct{}),
	}
	go c.sweep(memorySweepInterval)
	return c
}

func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	e := el.Value.(*memoryEntry)
	if expired(e.deadline) {
		c.remove(el)
		return nil, ErrCacheMiss
	}
	c.order.MoveToFront(el)
	return e.value, nil
}

func (c *MemoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &memoryEntry{key: key, value: append([]byte(nil), value...), deadline: expiry(ttl)}
	if el, ok := c.entries[key]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return nil
	}

	for c.order.Len() >= c.capacity {
		c.remove(c.order.Back())
	}
	c.entries[key] = c.order.PushFront(entry)
	return nil
}

func (c *MemoryClient) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	return nil
}

// Len reports stored entries, expired ones not yet swept included.
func (c *MemoryClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close stops the sweeper. Stored entries stay readable.
func (c *MemoryClient) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// remove must be called with mu held.
func (c *MemoryClient) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*memoryEntry).key)
}

func (c *MemoryClient) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.purgeExpired()
		}
	}
}

func (c *MemoryClient) purgeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if expired(el.Value.(*memoryEntry).deadline) {
			c.remove(el)
		}
		el = next
	}
}
