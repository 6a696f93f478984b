package nodecache

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/diskmap/internal/cache"
	"github.com/hupe1980/diskmap/internal/layout"
	"github.com/hupe1980/diskmap/internal/resource"
	"github.com/hupe1980/diskmap/internal/store"
)

// Config sizes the three caches. A zero size disables that cache.
type Config struct {
	NodeBytes   int64
	KeyEntries  int64
	RecordBytes int64
	Resource    *resource.Controller
}

// DefaultConfig returns the cache sizes used when none are configured.
func DefaultConfig() Config {
	return Config{
		NodeBytes:   32 << 20,
		KeyEntries:  1 << 18,
		RecordBytes: 32 << 20,
	}
}

type keyRef struct {
	root uint64
	key  string
}

// Cached decorates a Store with a position→node cache, a (root, key)→node
// cache and a position→record cache. Cached entries are immutable; every
// mutation replaces or drops them after the store write. Absence is never
// cached.
type Cached struct {
	st      *store.Store
	nodes   *cache.Sharded[uint64, *layout.Node]
	keys    *cache.Sharded[keyRef, uint64]
	records *cache.Sharded[uint64, []byte]
}

// New wraps st.
func New(st *store.Store, cfg Config) *Cached {
	return &Cached{
		st: st,
		nodes: cache.NewSharded[uint64, *layout.Node](cfg.NodeBytes, func(n *layout.Node) int64 {
			return int64(n.Size()) + 64
		}, cfg.Resource),
		keys: cache.NewSharded[keyRef, uint64](cfg.KeyEntries, nil, nil),
		records: cache.NewSharded[uint64, []byte](cfg.RecordBytes, func(b []byte) int64 {
			return int64(len(b))
		}, cfg.Resource),
	}
}

// Store returns the underlying store.
func (c *Cached) Store() *store.Store {
	return c.st
}

// Node returns the node at pos. It returns nil, nil when pos lies beyond the
// allocation pointer or does not hold a skip-list node. The returned node must not be modified.
func (c *Cached) Node(pos uint64) (*layout.Node, error) {
	if n, ok := c.nodes.Get(pos); ok {
		return n, nil
	}

	var prefix [layout.DataNodePrefix]byte
	if ok, err := c.st.ReadInto(pos, prefix[:layout.HeadNodeSize]); err != nil || !ok {
		return nil, err
	}

	n := &layout.Node{Position: pos}
	if layout.Kind(prefix[16]) == layout.KindData {
		ok, err := c.st.ReadInto(pos+layout.HeadNodeSize, prefix[layout.HeadNodeSize:])
		if err != nil || !ok {
			return nil, err
		}
	}

	keyLen, err := n.DecodePrefix(prefix[:])
	if err != nil {
		var kerr *layout.KindError
		if errors.As(err, &kerr) {
			return nil, nil
		}
		return nil, fmt.Errorf("node at %d: %w", pos, err)
	}
	if keyLen > 0 {
		key, err := c.st.Read(pos+layout.DataNodePrefix, keyLen)
		if err != nil || key == nil {
			return nil, err
		}
		n.Key = key
	}

	c.nodes.Set(pos, n)
	return n, nil
}

// AllocateNode writes n to freshly allocated space and sets n.Position.
func (c *Cached) AllocateNode(n *layout.Node) error {
	b, err := n.MarshalBinary()
	if err != nil {
		return err
	}
	pos, err := c.st.Allocate(len(b))
	if err != nil {
		return err
	}
	if err := c.st.Write(pos, b); err != nil {
		c.st.Deallocate(pos, len(b))
		return err
	}
	n.Position = pos
	c.nodes.Set(pos, n)
	return nil
}

// PatchNext rewrites the next link of the node at pos.
func (c *Cached) PatchNext(pos, next uint64) error {
	if err := c.st.PutUint64(pos+layout.NextOffset, next); err != nil {
		return err
	}
	c.nodes.Update(pos, func(n *layout.Node) *layout.Node {
		cp := *n
		cp.Next = next
		return &cp
	})
	return nil
}

// PatchRecord rewrites the record reference of the data node at pos.
func (c *Cached) PatchRecord(pos, recordPos uint64, recordSize uint32) error {
	var b [12]byte
	binary.LittleEndian.PutUint32(b[0:], recordSize)
	binary.LittleEndian.PutUint64(b[4:], recordPos)
	if err := c.st.Write(pos+layout.RecordSizeOffset, b[:]); err != nil {
		return err
	}
	c.nodes.Update(pos, func(n *layout.Node) *layout.Node {
		cp := *n
		cp.RecordPosition = recordPos
		cp.RecordSize = recordSize
		return &cp
	})
	return nil
}

// FreeNode releases the space of n and forgets it.
func (c *Cached) FreeNode(n *layout.Node) {
	c.nodes.Remove(n.Position)
	c.st.Deallocate(n.Position, n.Size())
}

// LookupKey returns the cached level-0 node position of key under root.
func (c *Cached) LookupKey(root uint64, key []byte) (uint64, bool) {
	return c.keys.Get(keyRef{root: root, key: string(key)})
}

// RememberKey caches the level-0 node position of key under root.
func (c *Cached) RememberKey(root uint64, key []byte, pos uint64) {
	c.keys.Set(keyRef{root: root, key: string(key)}, pos)
}

// ForgetKey drops the cached position of key under root.
func (c *Cached) ForgetKey(root uint64, key []byte) {
	c.keys.Remove(keyRef{root: root, key: string(key)})
}

// WriteRecord stores an encoded record and returns its position.
func (c *Cached) WriteRecord(rec []byte) (uint64, error) {
	pos, err := c.st.Allocate(len(rec))
	if err != nil {
		return 0, err
	}
	if err := c.st.Write(pos, rec); err != nil {
		c.st.Deallocate(pos, len(rec))
		return 0, err
	}
	c.records.Set(pos, rec)
	return pos, nil
}

// Record returns the encoded record at pos, header included. It returns
// nil, nil when pos holds nothing readable.
func (c *Cached) Record(pos uint64) ([]byte, error) {
	if rec, ok := c.records.Get(pos); ok {
		return rec, nil
	}

	var hdr [layout.RecordHeaderSize]byte
	if ok, err := c.st.ReadInto(pos, hdr[:]); err != nil || !ok {
		return nil, err
	}
	h, err := layout.DecodeRecordHeader(hdr[:])
	if err != nil {
		return nil, err
	}

	rec, err := c.st.Read(pos, layout.RecordHeaderSize+int(h.PayloadLen))
	if err != nil || rec == nil {
		return nil, err
	}
	c.records.Set(pos, rec)
	return rec, nil
}

// FreeRecord releases a record of size bytes at pos.
func (c *Cached) FreeRecord(pos uint64, size int) {
	c.records.Remove(pos)
	c.st.Deallocate(pos, size)
}

// Allocate reserves raw space.
func (c *Cached) Allocate(size int) (uint64, error) {
	return c.st.Allocate(size)
}

// Deallocate releases raw space.
func (c *Cached) Deallocate(pos uint64, size int) {
	c.st.Deallocate(pos, size)
}

// Write copies raw bytes to pos.
func (c *Cached) Write(pos uint64, data []byte) error {
	return c.st.Write(pos, data)
}

// Read copies raw bytes from pos.
func (c *Cached) Read(pos uint64, size int) ([]byte, error) {
	return c.st.Read(pos, size)
}

// Uint64 reads a word.
func (c *Cached) Uint64(pos uint64) (uint64, error) {
	return c.st.Uint64(pos)
}

// PutUint64 writes a word.
func (c *Cached) PutUint64(pos, v uint64) error {
	return c.st.PutUint64(pos, v)
}

// AddUint64 adds to a word.
func (c *Cached) AddUint64(pos, delta uint64) (uint64, error) {
	return c.st.AddUint64(pos, delta)
}

// CompareAndSwapUint64 swaps a word if it holds old.
func (c *Cached) CompareAndSwapUint64(pos, old, new uint64) (bool, error) {
	return c.st.CompareAndSwapUint64(pos, old, new)
}

// Purge drops every cached entry.
func (c *Cached) Purge() {
	c.nodes.Purge()
	c.keys.Purge()
	c.records.Purge()
}

// Stats reports hits and misses per cache.
type Stats struct {
	NodeHits, NodeMisses     int64
	KeyHits, KeyMisses       int64
	RecordHits, RecordMisses int64
	Bytes                    int64
	KeyEntries               int
}

// Stats returns cache counters.
func (c *Cached) Stats() Stats {
	var s Stats
	s.NodeHits, s.NodeMisses = c.nodes.Stats()
	s.KeyHits, s.KeyMisses = c.keys.Stats()
	s.RecordHits, s.RecordMisses = c.records.Stats()
	s.Bytes = c.nodes.Size() + c.records.Size()
	s.KeyEntries = c.keys.Len()
	return s
}
