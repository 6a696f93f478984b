// Package diskmap provides persistent, disk-backed maps stored in a single
// memory-mapped file.
//
// A Builder owns one store file and hands out typed maps. Every map is an
// index over the same file: either a skip list, which keeps keys in byte
// order and answers range queries, or a hash matrix, which spreads keys over
// many small skip lists for cheaper point access.
//
// # Quick Start
//
//	b, err := diskmap.Open("./users.dmap")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	users, _ := diskmap.MapByName[string, User](b, "users", 10, keys.String())
//	_ = users.Put("ada", User{Name: "Ada", Age: 36})
//	u, ok, _ := users.Get("ada")
//
//	_ = b.Commit() // make everything written so far durable
//
// # Choosing a Structure
//
// The load factor passed at creation picks the structure and is recorded in
// the map's header:
//
//	diskmap.Ordered  skip list; Above and Below are supported
//	0..4             flat hash: 10^lf buckets in a single dispatch node
//	5..19            matrix hash: a tree of ten-way dispatch nodes
//
// Reopening a map with another load factor or key codec fails with
// ErrStrategyMismatch.
//
// # Values
//
// Values are encoded by a codec.Codec recorded per record, so a map can be
// read after its value codec changed. codec.Doc values use the Document
// codec and support StructuralView and Attribute without decoding into Go
// types:
//
//	ref, _, _ := users.RecordReferenceOf("ada")
//	age, ok, err := users.Attribute(diskmap.FieldDescriptor{Name: "age", Type: diskmap.FieldInt}, ref)
//
// # Durability
//
// Writes go to the mapped file immediately; Commit flushes dirty slices and
// persists the allocation pointer. Backup streams a committed snapshot to a
// blobstore.BlobStore and Restore brings it back as a new store file.
//
// # Concurrency
//
// Builders and maps addressed by name or id are safe for concurrent use.
// Maps over the same index share its locks. Header-addressed maps are
// unlocked by default; pass WithLocking(true) to share the index locks.
package diskmap
