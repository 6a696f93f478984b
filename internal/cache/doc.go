// Package cache provides size-bounded LRU caches.
//
// LRU is a single-lock cache with a pluggable cost function. Sharded spreads
// keys over 64 LRU shards chosen by maphash, so concurrent readers of
// different keys rarely contend.
//
// Both integrate with resource.Controller: every charged byte is reserved
// against the controller's memory budget and released on eviction. When the
// budget is exhausted new entries are simply not cached.
package cache
