package skiplist

import (
	"bytes"

	"github.com/hupe1980/diskmap/internal/layout"
)

// Cursor walks level 0 in key order. It re-reads every node by position, so
// it sees concurrent mutations without any snapshot guarantee. When the next
// node was removed and its space reused, the cursor seeks past the last key
// it returned.
type Cursor struct {
	l    *List
	next uint64
	last []byte
}

// maxReseeks bounds consecutive seeks after stale links before the cursor
// gives up and ends.
const maxReseeks = 3

// Cursor returns a cursor positioned before the smallest key.
func (l *List) Cursor() (*Cursor, error) {
	c := &Cursor{l: l}
	if err := c.rewind(); err != nil {
		return nil, err
	}
	return c, nil
}

// Seek returns a cursor positioned before the smallest key >= key.
func (l *List) Seek(key []byte) (*Cursor, error) {
	c := &Cursor{l: l}
	if err := c.seek(key); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cursor) rewind() error {
	head, err := c.l.bottom()
	if err != nil {
		return err
	}
	c.next = 0
	if head != nil {
		c.next = head.Next
	}
	return nil
}

func (c *Cursor) seek(key []byte) error {
	preds, err := c.l.predecessors(key)
	if err != nil {
		return err
	}
	c.next = 0
	if n := len(preds); n > 0 {
		c.next = preds[n-1].Next
	}
	return nil
}

// Next returns the next data node, or nil at the end.
func (c *Cursor) Next() (*layout.Node, error) {
	for reseeks := 0; c.next != 0; {
		n, err := c.l.st.Node(c.next)
		if err != nil {
			return nil, err
		}
		if n == nil || (n.Kind == layout.KindData && n.Level != 0) {
			if reseeks++; reseeks > maxReseeks {
				c.next = 0
				return nil, nil
			}
			if c.last == nil {
				err = c.rewind()
			} else {
				err = c.seek(c.last)
			}
			if err != nil {
				return nil, err
			}
			continue
		}
		if n.IsHead() {
			c.next = 0
			return nil, nil
		}
		c.next = n.Next
		if c.last != nil && bytes.Compare(n.Key, c.last) <= 0 {
			continue
		}
		c.last = n.Key
		return n, nil
	}
	return nil, nil
}

// Done reports whether the cursor is exhausted.
func (c *Cursor) Done() bool {
	return c.next == 0
}

// Count walks level 0 and returns the number of keys. It is O(n) and meant
// for verification; maps report the header counter instead.
func (l *List) Count() (uint64, error) {
	c, err := l.Cursor()
	if err != nil {
		return 0, err
	}
	var (
		n    uint64
		prev []byte
	)
	for {
		node, err := c.Next()
		if err != nil {
			return 0, err
		}
		if node == nil {
			return n, nil
		}
		if prev != nil && bytes.Compare(prev, node.Key) >= 0 {
			return 0, &OrderError{Prev: prev, Next: node.Key}
		}
		prev = node.Key
		n++
	}
}
