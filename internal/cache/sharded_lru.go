package cache

import (
	"hash/maphash"
	"sync"

	"github.com/hupe1980/diskmap/internal/resource"
)

const numShards = 64

// Sharded is an LRU split across 64 shards to reduce lock contention.
// A nil *Sharded is a valid, always-missing cache.
type Sharded[K comparable, V any] struct {
	shards [numShards]*LRU[K, V]
	seed   maphash.Seed
}

// NewSharded creates a new sharded LRU cache.
// The capacity is divided evenly across all shards. A capacity of zero
// returns nil, which disables caching.
func NewSharded[K comparable, V any](capacity int64, cost CostFunc[V], rc *resource.Controller) *Sharded[K, V] {
	if capacity <= 0 {
		return nil
	}

	shardCapacity := max(capacity/numShards, 1)

	s := &Sharded[K, V]{seed: maphash.MakeSeed()}
	for i := range numShards {
		s.shards[i] = NewLRU[K, V](shardCapacity, cost, rc)
	}

	return s
}

func (s *Sharded[K, V]) shard(key K) *LRU[K, V] {
	return s.shards[maphash.Comparable(s.seed, key)%numShards]
}

// Get returns a cached value.
func (s *Sharded[K, V]) Get(key K) (V, bool) {
	if s == nil {
		var zero V
		return zero, false
	}
	return s.shard(key).Get(key)
}

// Set caches a value.
func (s *Sharded[K, V]) Set(key K, v V) {
	if s == nil {
		return
	}
	s.shard(key).Set(key, v)
}

// Update applies fn to a cached value, if present.
func (s *Sharded[K, V]) Update(key K, fn func(V) V) bool {
	if s == nil {
		return false
	}
	return s.shard(key).Update(key, fn)
}

// Remove drops key from the cache.
func (s *Sharded[K, V]) Remove(key K) {
	if s == nil {
		return
	}
	s.shard(key).Remove(key)
}

// Invalidate removes entries matching the predicate.
// This visits every shard, which is expensive but rare.
func (s *Sharded[K, V]) Invalidate(predicate func(key K) bool) {
	if s == nil {
		return
	}

	var wg sync.WaitGroup
	wg.Add(numShards)

	for _, shard := range s.shards {
		go func(shard *LRU[K, V]) {
			defer wg.Done()
			shard.Invalidate(predicate)
		}(shard)
	}

	wg.Wait()
}

// Purge empties every shard.
func (s *Sharded[K, V]) Purge() {
	if s == nil {
		return
	}
	for _, shard := range s.shards {
		shard.Purge()
	}
}

// Stats returns aggregated hit/miss statistics.
func (s *Sharded[K, V]) Stats() (hits, misses int64) {
	if s == nil {
		return 0, 0
	}
	for _, shard := range s.shards {
		h, m := shard.Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Size returns the total charged cost across all shards.
func (s *Sharded[K, V]) Size() int64 {
	if s == nil {
		return 0
	}
	var total int64
	for _, shard := range s.shards {
		total += shard.Size()
	}
	return total
}

// Len returns the number of cached entries.
func (s *Sharded[K, V]) Len() int {
	if s == nil {
		return 0
	}
	var total int
	for _, shard := range s.shards {
		total += shard.Len()
	}
	return total
}
