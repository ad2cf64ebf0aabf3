// Package cache implements a bounded, TTL-based memoization layer for
// text-to-embedding lookups. It sits strictly in front of the embedding
// collaborator: a miss here means the caller pays for a remote call.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// DefaultMaxSize bounds the cache when no capacity is configured.
const DefaultMaxSize = 1000

// DefaultTTL is applied when no TTL is configured.
const DefaultTTL = time.Hour

// Stats holds cumulative hit/miss counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

type entry struct {
	key        string
	vector     []float32
	insertedAt time.Time
}

// EmbeddingCache memoizes text-to-vector lookups with FIFO capacity
// eviction and lazy TTL expiry. Expired entries are removed on read and
// counted as misses.
type EmbeddingCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	entries map[string]*list.Element
	order   *list.List // front = oldest inserted

	hits   int64
	misses int64

	now func() time.Time
}

// New creates a cache with the given capacity and TTL. Non-positive values
// fall back to the defaults.
func New(maxSize int, ttl time.Duration) *EmbeddingCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &EmbeddingCache{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns the cached vector for a key. An absent or TTL-expired entry
// is a miss; expired entries are actively removed.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return append([]float32(nil), e.vector...), true
}

// Set stores a vector under a key. At capacity the single oldest-inserted
// entry is evicted first; insertion order, not recency of use, decides the
// victim. Setting an existing key refreshes its vector and insertion time.
func (c *EmbeddingCache) Set(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
	for len(c.entries) >= c.maxSize {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
	e := &entry{
		key:        key,
		vector:     append([]float32(nil), vector...),
		insertedAt: c.now(),
	}
	c.entries[key] = c.order.PushBack(e)
}

// Stats returns cumulative hit/miss counters and the current size.
func (c *EmbeddingCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
}

// Len returns the number of live entries.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
