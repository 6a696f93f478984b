// Package store implements the byte-addressable file underneath every index.
//
// The file is accessed through fixed-size memory-mapped slices indexed by
// position / SliceSize. Slices are mapped lazily, the file grows on demand
// and every slice carries its own mutex held only for the duration of a byte
// copy, so readers and writers touching different slices never contend.
//
// Space is handed out by Allocate: a reclaimed block is reused when one of
// sufficient size exists (smallest first), otherwise an atomic allocation
// pointer is advanced. Reclaimed space is tracked in memory only and is not
// persisted; after a reopen it is leaked, never reused incorrectly.
//
// Allocation sizes are rounded to 8 bytes and slices are page multiples, so
// an aligned 8-byte word never straddles two slices. Uint64, PutUint64,
// AddUint64 and CompareAndSwapUint64 rely on that to be atomic under a
// single slice lock.
//
// The first BootstrapSize bytes hold the magic, format version and the
// persisted allocation pointer, followed by space reserved for index roots.
package store
