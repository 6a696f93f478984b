package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/diskmap/internal/resource"
)

// CostFunc reports the retained size of a cached value in bytes.
type CostFunc[V any] func(V) int64

// LRU is a size-bounded least-recently-used cache.
// Eviction order is deterministic: the least recently touched entry goes first.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[K]*list.Element
	evictList *list.List
	cost      CostFunc[V]
	rc        *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
	cost  int64
}

// NewLRU creates a new LRU cache with the given capacity in cost units.
// A nil cost function charges one unit per entry.
// If rc is provided, charged bytes are also reserved against its memory budget.
func NewLRU[K comparable, V any](capacity int64, cost CostFunc[V], rc *resource.Controller) *LRU[K, V] {
	if cost == nil {
		cost = func(V) int64 { return 1 }
	}
	return &LRU[K, V]{
		capacity:  capacity,
		items:     make(map[K]*list.Element),
		evictList: list.New(),
		cost:      cost,
		rc:        rc,
	}
}

// Get returns a cached value.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Set caches a value, replacing any previous value for key.
func (c *LRU[K, V]) Set(key K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	itemCost := c.cost(v)

	if ent, ok := c.items[key]; ok {
		e := ent.Value.(*entry[K, V])
		if itemCost > c.capacity {
			c.removeElement(ent)
			return
		}
		if c.rc != nil && itemCost > e.cost {
			// Keep the budget honest: drop the stale value rather than serve it.
			if !c.rc.TryAcquireMemory(itemCost - e.cost) {
				c.removeElement(ent)
				return
			}
		} else if c.rc != nil && itemCost < e.cost {
			c.rc.ReleaseMemory(e.cost - itemCost)
		}
		c.size += itemCost - e.cost
		e.value = v
		e.cost = itemCost
		c.evictList.MoveToFront(ent)
		c.evict()
		return
	}

	if itemCost > c.capacity {
		return
	}

	// Make room locally first so released bytes return to the controller.
	for c.size+itemCost > c.capacity {
		ent := c.evictList.Back()
		if ent == nil {
			break
		}
		c.removeElement(ent)
	}

	if c.rc != nil && !c.rc.TryAcquireMemory(itemCost) {
		return
	}

	element := c.evictList.PushFront(&entry[K, V]{key: key, value: v, cost: itemCost})
	c.items[key] = element
	c.size += itemCost
}

// Remove drops key from the cache.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.removeElement(ent)
	}
}

// Update applies fn to the cached value for key, if present.
// fn must return a fresh value rather than mutate the cached one in place.
func (c *LRU[K, V]) Update(key K, fn func(V) V) bool {
	c.mu.Lock()
	ent, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	next := fn(ent.Value.(*entry[K, V]).value)
	c.mu.Unlock()

	c.Set(key, next)
	return true
}

// Invalidate removes entries matching the predicate.
func (c *LRU[K, V]) Invalidate(predicate func(key K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for key, element := range c.items {
		if predicate(key) {
			toRemove = append(toRemove, element)
		}
	}

	for _, e := range toRemove {
		c.removeElement(e)
	}
}

// Purge removes every entry.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back())
	}
}

func (c *LRU[K, V]) evict() {
	for c.size > c.capacity && c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back())
	}
}

func (c *LRU[K, V]) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	kv := e.Value.(*entry[K, V])
	delete(c.items, kv.key)
	c.size -= kv.cost
	if c.rc != nil {
		c.rc.ReleaseMemory(kv.cost)
	}
}

// Stats returns hit and miss counters.
func (c *LRU[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the current charged cost of the cache.
func (c *LRU[K, V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
