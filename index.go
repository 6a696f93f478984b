package diskmap

import (
	"sync"

	"github.com/hupe1980/diskmap/internal/layout"
	"github.com/hupe1980/diskmap/internal/matrix"
	"github.com/hupe1980/diskmap/internal/nodecache"
	"github.com/hupe1980/diskmap/internal/skiplist"
)

const lockStripes = 64

// index is the strategy bound to one header. It is shared by every map
// handle over that header, and so are its locks.
//
// Ordered indexes hold mu exclusively for mutations. Hash indexes hold mu
// shared for every operation and lock the stripe of the key's bucket, so
// mutations of disjoint buckets run in parallel. Locker().Lock() therefore
// excludes all locked operations of either kind.
type index struct {
	h        Header
	nodes    *nodecache.Cached
	list     *skiplist.List
	dispatch *matrix.Dispatch

	mu      sync.RWMutex
	stripes [lockStripes]sync.RWMutex
}

func newIndex(nodes *nodecache.Cached, h Header) (*index, error) {
	ix := &index{h: h, nodes: nodes}
	if h.Strategy == StrategySkipList {
		ix.list = skiplist.New(nodes, h.Position+layout.HeaderFirstNodeOffset, int(h.MaxLevel))
		return ix, nil
	}

	d, err := matrix.Open(nodes, h.FirstNode, h.Strategy, h.LoadFactor)
	if err != nil {
		return nil, translateError(err)
	}
	ix.dispatch = d
	return ix, nil
}

func (ix *index) ordered() bool {
	return ix.list != nil
}

func (ix *index) countPosition() uint64 {
	return ix.h.Position + layout.HeaderCountOffset
}

func (ix *index) stripe(cell uint64) *sync.RWMutex {
	return &ix.stripes[(cell>>3)%lockStripes]
}

// bucket resolves the skip list holding key. It returns nil when create is
// unset and the bucket was never written.
func (ix *index) bucket(key []byte, create bool) (*skiplist.List, *sync.RWMutex, error) {
	if ix.ordered() {
		return ix.list, nil, nil
	}
	cell, ok, err := ix.dispatch.Bucket(key, create)
	if err != nil || !ok {
		return nil, nil, err
	}
	return ix.bucketAt(cell), ix.stripe(cell), nil
}

func (ix *index) bucketAt(cell uint64) *skiplist.List {
	return skiplist.New(ix.nodes, cell, int(ix.h.MaxLevel))
}

// read runs fn against key's list under the read locks. fn is not called
// when the key's bucket does not exist.
func (ix *index) read(key []byte, locked bool, fn func(l *skiplist.List) error) error {
	if locked {
		ix.mu.RLock()
		defer ix.mu.RUnlock()
	}

	l, stripe, err := ix.bucket(key, false)
	if err != nil || l == nil {
		return err
	}
	if locked && stripe != nil {
		stripe.RLock()
		defer stripe.RUnlock()
	}
	return fn(l)
}

// write runs fn against key's list under the write locks. With create set
// missing dispatch nodes are installed first; otherwise fn is not called
// for a bucket that does not exist.
func (ix *index) write(key []byte, create, locked bool, fn func(l *skiplist.List) error) error {
	if locked {
		if ix.ordered() {
			ix.mu.Lock()
			defer ix.mu.Unlock()
		} else {
			ix.mu.RLock()
			defer ix.mu.RUnlock()
		}
	}

	l, stripe, err := ix.bucket(key, create)
	if err != nil || l == nil {
		return err
	}
	if locked && stripe != nil {
		stripe.Lock()
		defer stripe.Unlock()
	}
	return fn(l)
}

// cursor walks every data node of the index: in key order for ordered
// indexes, bucket by bucket for hash indexes. Each step takes the read locks
// for its own duration only, so concurrent mutations may be skipped or seen
// twice.
type cursor struct {
	ix     *index
	locked bool

	started bool
	buckets *matrix.BucketCursor
	cur     *skiplist.Cursor
	stripe  *sync.RWMutex
}

func (ix *index) cursor(locked bool) *cursor {
	return &cursor{ix: ix, locked: locked}
}

// next returns the next data node and, with withRecord set, its stored
// record read under the same locks. It returns a nil node at the end.
func (c *cursor) next(withRecord bool) (*layout.Node, []byte, error) {
	if c.locked {
		c.ix.mu.RLock()
		defer c.ix.mu.RUnlock()
	}

	if !c.started {
		c.started = true
		if c.ix.ordered() {
			cur, err := c.ix.list.Cursor()
			if err != nil {
				return nil, nil, err
			}
			c.cur = cur
		} else {
			c.buckets = c.ix.dispatch.Buckets()
		}
	}

	for {
		if c.cur != nil {
			n, rec, err := c.step(withRecord)
			if err != nil || n != nil {
				return n, rec, err
			}
			c.cur = nil
		}
		if c.buckets == nil {
			return nil, nil, nil
		}

		cell, ok, err := c.buckets.Next()
		if err != nil || !ok {
			return nil, nil, err
		}
		c.stripe = c.ix.stripe(cell)
		if c.locked {
			c.stripe.RLock()
		}
		c.cur, err = c.ix.bucketAt(cell).Cursor()
		if c.locked {
			c.stripe.RUnlock()
		}
		if err != nil {
			return nil, nil, err
		}
	}
}

func (c *cursor) step(withRecord bool) (*layout.Node, []byte, error) {
	if c.locked && c.stripe != nil {
		c.stripe.RLock()
		defer c.stripe.RUnlock()
	}

	n, err := c.cur.Next()
	if err != nil || n == nil || !withRecord {
		return n, nil, err
	}
	rec, err := c.ix.nodes.Record(n.RecordPosition)
	return n, rec, err
}
