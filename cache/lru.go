// Package cache holds the in-process result cache placed in front of the
// document index.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Cache maps string keys to values of type V.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration)
	Delete(key string)
	Len() int
	Stats() Stats
	Purge()
}

// Stats counts lookups since creation or the last Purge.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// HitRatio returns hits / (hits + misses), or 0 before the first lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type slot[V any] struct {
	key      string
	value    V
	deadline time.Time
}

// LRU is bounded by size and by age. Entries past their deadline are dropped
// lazily on lookup; the least recently read entry goes first when full.
type LRU[V any] struct {
	mu         sync.Mutex
	capacity   int
	defaultTTL time.Duration
	index      map[string]*list.Element
	recency    *list.List // front is most recently used
	now        func() time.Time

	hits, misses, evictions atomic.Uint64
}

var _ Cache[int] = (*LRU[int])(nil)

// NewLRU creates a cache holding at most capacity entries, each living
// ttl unless Set overrides it.
func NewLRU[V any](capacity int, ttl time.Duration) *LRU[V] {
	if capacity <= 0 {
		capacity = 512
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &LRU[V]{
		capacity:   capacity,
		defaultTTL: ttl,
		index:      make(map[string]*list.Element, capacity),
		recency:    list.New(),
		now:        time.Now,
	}
}

func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		s := el.Value.(*slot[V])
		if c.now().Before(s.deadline) {
			c.recency.MoveToFront(el)
			c.hits.Add(1)
			return s.value, true
		}
		c.drop(el)
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Set stores value under key. A non-positive ttl uses the default.
func (c *LRU[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := c.now().Add(ttl)
	if el, ok := c.index[key]; ok {
		s := el.Value.(*slot[V])
		s.value, s.deadline = value, deadline
		c.recency.MoveToFront(el)
		return
	}
	for len(c.index) >= c.capacity {
		oldest := c.recency.Back()
		if oldest == nil {
			break
		}
		c.drop(oldest)
		c.evictions.Add(1)
	}
	c.index[key] = c.recency.PushFront(&slot[V]{key: key, value: value, deadline: deadline})
}

func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.drop(el)
	}
}

func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *LRU[V]) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Evictions: c.evictions.Load()}
}

// Purge empties the cache and resets its counters.
func (c *LRU[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.index)
	c.recency.Init()
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

func (c *LRU[V]) drop(el *list.Element) {
	s := c.recency.Remove(el).(*slot[V])
	delete(c.index, s.key)
}
