package matrix

import "github.com/hupe1980/diskmap/internal/layout"

type frame struct {
	node  uint64
	level int
	idx   int
}

// BucketCursor visits the root cells of all non-empty buckets depth first.
// Subtrees are read as the cursor reaches them.
type BucketCursor struct {
	d     *Dispatch
	stack []frame
}

// Buckets returns a cursor over the non-empty buckets.
func (d *Dispatch) Buckets() *BucketCursor {
	return &BucketCursor{
		d:     d,
		stack: []frame{{node: d.root}},
	}
}

// Next returns the next bucket root cell. ok is false once every bucket has
// been visited.
func (c *BucketCursor) Next() (cell uint64, ok bool, err error) {
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		if top.idx >= c.d.fanout {
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}

		slot := layout.SlotPosition(top.node, top.idx)
		top.idx++

		v, err := c.d.st.Uint64(slot)
		if err != nil {
			return 0, false, err
		}
		if v == 0 {
			continue
		}

		if top.level == c.d.levels-1 {
			return slot, true, nil
		}
		c.stack = append(c.stack, frame{node: v, level: top.level + 1})
	}
	return 0, false, nil
}
