// Package resource governs the engine's shared resources.
//
// A Controller manages three budgets:
//
//   - Memory: bytes held by the node, key and record caches (non-blocking, fail-fast)
//   - Flush concurrency: how many mapped slices a commit flushes in parallel
//   - IO: token-bucket throttling for backup and restore streams
//
// Memory tracking uses a weighted semaphore for the hard limit and an atomic
// counter for usage:
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 64 << 20})
//	if !rc.TryAcquireMemory(n) {
//	    // skip caching
//	}
//	defer rc.ReleaseMemory(n)
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource
