// Package nodecache puts the engine's three read caches in front of the store.
//
// Index code never talks to the store directly; it goes through Cached, which
// consults a cache before every read and keeps the caches in step with every
// write, patch and free it performs.
package nodecache
