// Package layout defines the binary encoding of everything stored in the
// file: index headers, skip-list nodes, hash dispatch nodes and value
// records. All integers are little-endian and every 8-byte field sits on an
// 8-byte aligned offset.
package layout
