// Package matrix implements the hash dispatch in front of hash-strategy maps.
//
// A key's 64-bit xxhash is split into decimal digits; digit i selects the
// slot of the level-i dispatch node. Flat dispatch (load factor below five)
// is a single eagerly allocated node of 10^loadFactor slots. Matrix dispatch
// has loadFactor levels of ten slots each, and every node below the root is
// created on first use.
//
// Final-level slots are skip-list root cells: each bucket is a small skip
// list addressed by the slot position.
package matrix
