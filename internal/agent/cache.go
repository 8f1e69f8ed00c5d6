package agent

import (
	"container/list"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// cacheEntry is a cached agent verdict for one (model, reasoning_effort,
// plan_fingerprint, game_id) tuple.
type cacheEntry struct {
	Score       float64
	Themes      []string
	Explanation string
}

// lruCache is an in-memory LRU keyed by opaque strings, backed by an
// xsync.MapOf for lock-free lookups; only eviction bookkeeping takes the
// mutex. Capacity 0 disables caching entirely (every Get misses, every
// Set is a no-op), matching AGENT_CACHE_CAPACITY's default.
type lruCache struct {
	capacity int

	data *xsync.MapOf[string, cacheEntry]

	mu    sync.Mutex
	order *list.List
	elems map[string]*list.Element
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		data:     xsync.NewMapOf[string, cacheEntry](),
		order:    list.New(),
		elems:    make(map[string]*list.Element),
	}
}

func (c *lruCache) Get(key string) (cacheEntry, bool) {
	if c.capacity <= 0 {
		return cacheEntry{}, false
	}
	v, ok := c.data.Load(key)
	if !ok {
		return cacheEntry{}, false
	}
	c.mu.Lock()
	if el, ok := c.elems[key]; ok {
		c.order.MoveToFront(el)
	}
	c.mu.Unlock()
	return v, true
}

func (c *lruCache) Set(key string, entry cacheEntry) {
	if c.capacity <= 0 {
		return
	}
	c.data.Store(key, entry)

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.elems[key]; ok {
		c.order.MoveToFront(el)
		return
	}
	c.elems[key] = c.order.PushFront(key)
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		c.order.Remove(oldest)
		oldestKey := oldest.Value.(string)
		delete(c.elems, oldestKey)
		c.data.Delete(oldestKey)
	}
}
