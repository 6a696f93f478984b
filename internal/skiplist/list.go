package skiplist

import (
	"bytes"
	"fmt"
	"math/bits"
	"math/rand/v2"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/diskmap/internal/layout"
)

// DefaultMaxLevel bounds tower height for ordered maps.
const DefaultMaxLevel = 32

// Storage is the node store a List operates on.
type Storage interface {
	Node(pos uint64) (*layout.Node, error)
	AllocateNode(n *layout.Node) error
	PatchNext(pos, next uint64) error
	PatchRecord(pos, recordPos uint64, recordSize uint32) error
	FreeNode(n *layout.Node)

	Uint64(pos uint64) (uint64, error)
	PutUint64(pos, v uint64) error

	LookupKey(root uint64, key []byte) (uint64, bool)
	RememberKey(root uint64, key []byte, pos uint64)
	ForgetKey(root uint64, key []byte)
}

// Ref locates a value record.
type Ref struct {
	Position uint64
	Size     uint32
}

// List is a persisted skip list. It owns no state besides its root cell:
// the 8-byte word holding the position of the top head node, or 0 when the
// list has never been written. Any number of List values may address the
// same root.
//
// List does no locking. Mutations must be serialized by the caller, and
// readers must not run concurrently with a mutation of the same list.
type List struct {
	st       Storage
	root     uint64
	maxLevel int
}

// New returns the list rooted at the root cell.
func New(st Storage, root uint64, maxLevel int) *List {
	if maxLevel <= 0 || maxLevel > DefaultMaxLevel {
		maxLevel = DefaultMaxLevel
	}
	return &List{st: st, root: root, maxLevel: maxLevel}
}

// MaxLevelFor derives the tower cap for a hash strategy with loadFactor. A
// dispatch level of fanout 10 divides the expected bucket population by
// ten, which is a little over three levels of a p=1/2 skip list.
func MaxLevelFor(strategy layout.Strategy, loadFactor uint8) int {
	switch strategy {
	case layout.StrategyFlatHash:
		return max(DefaultMaxLevel-3*int(loadFactor), 8)
	case layout.StrategyMatrixHash:
		return 12
	default:
		return DefaultMaxLevel
	}
}

// Root returns the position of the root cell.
func (l *List) Root() uint64 {
	return l.root
}

func (l *List) top() (*layout.Node, error) {
	pos, err := l.st.Uint64(l.root)
	if err != nil || pos == 0 {
		return nil, err
	}
	return l.node(pos)
}

func (l *List) node(pos uint64) (*layout.Node, error) {
	n, err := l.st.Node(pos)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("skiplist: dangling link to %d", pos)
	}
	return n, nil
}

// Find returns the level-0 node holding key, or nil.
func (l *List) Find(key []byte) (*layout.Node, error) {
	if pos, ok := l.st.LookupKey(l.root, key); ok {
		n, err := l.st.Node(pos)
		if err == nil && n != nil && n.Kind == layout.KindData && n.Level == 0 && bytes.Equal(n.Key, key) {
			return n, nil
		}
		l.st.ForgetKey(l.root, key)
	}

	cur, err := l.top()
	if err != nil || cur == nil {
		return nil, err
	}

	for {
		for cur.Next != 0 {
			next, err := l.node(cur.Next)
			if err != nil {
				return nil, err
			}
			c := bytes.Compare(next.Key, key)
			if c < 0 {
				cur = next
				continue
			}
			if c == 0 {
				for next.Down != 0 {
					if next, err = l.node(next.Down); err != nil {
						return nil, err
					}
				}
				l.st.RememberKey(l.root, key, next.Position)
				return next, nil
			}
			break
		}
		if cur.Down == 0 {
			return nil, nil
		}
		if cur, err = l.node(cur.Down); err != nil {
			return nil, err
		}
	}
}

// predecessors returns, for every level from the top down, the last node
// whose key is strictly less than key. preds[0] is the top level.
func (l *List) predecessors(key []byte) ([]*layout.Node, error) {
	cur, err := l.top()
	if err != nil || cur == nil {
		return nil, err
	}

	preds := make([]*layout.Node, 0, int(cur.Level)+1)
	for {
		for cur.Next != 0 {
			next, err := l.node(cur.Next)
			if err != nil {
				return nil, err
			}
			if bytes.Compare(next.Key, key) >= 0 {
				break
			}
			cur = next
		}
		preds = append(preds, cur)
		if cur.Down == 0 {
			return preds, nil
		}
		if cur, err = l.node(cur.Down); err != nil {
			return nil, err
		}
	}
}

func (l *List) randomLevel(current int) int {
	h := 1 + bits.TrailingZeros64(rand.Uint64())
	return min(h, current+1, l.maxLevel)
}

// Upsert points key at ref. If key already exists its level-0 node is
// patched in place and the previous reference is returned with existed set.
func (l *List) Upsert(key []byte, ref Ref) (old Ref, existed bool, err error) {
	if len(key) > layout.MaxKeySize {
		return Ref{}, false, ErrKeyTooLarge
	}

	preds, err := l.predecessors(key)
	if err != nil {
		return Ref{}, false, err
	}

	if n := len(preds); n > 0 && preds[n-1].Next != 0 {
		cand, err := l.node(preds[n-1].Next)
		if err != nil {
			return Ref{}, false, err
		}
		if bytes.Equal(cand.Key, key) {
			old = Ref{Position: cand.RecordPosition, Size: cand.RecordSize}
			if err := l.st.PatchRecord(cand.Position, ref.Position, ref.Size); err != nil {
				return Ref{}, false, err
			}
			l.st.RememberKey(l.root, key, cand.Position)
			return old, true, nil
		}
	}

	height := l.randomLevel(len(preds))

	// Grow the head column first; an empty head level is harmless to readers.
	if height > len(preds) {
		if preds, err = l.grow(preds, height); err != nil {
			return Ref{}, false, err
		}
	}

	// Link bottom-up so the level-0 node is reachable before any tower node
	// that points down to it.
	var down uint64
	for level := range height {
		pred := preds[len(preds)-1-level]
		n := &layout.Node{
			Kind:  layout.KindData,
			Level: uint8(level),
			Next:  pred.Next,
			Down:  down,
			Key:   key,
		}
		if level == 0 {
			n.RecordPosition = ref.Position
			n.RecordSize = ref.Size
		}
		if err := l.st.AllocateNode(n); err != nil {
			return Ref{}, false, err
		}
		if err := l.st.PatchNext(pred.Position, n.Position); err != nil {
			return Ref{}, false, err
		}
		if level == 0 {
			l.st.RememberKey(l.root, key, n.Position)
		}
		down = n.Position
	}

	return Ref{}, false, nil
}

// grow adds empty head levels until there are height of them and repoints
// the root cell at the new top. It returns preds extended at the top.
func (l *List) grow(preds []*layout.Node, height int) ([]*layout.Node, error) {
	var down uint64
	if len(preds) > 0 {
		top, err := l.top()
		if err != nil {
			return nil, err
		}
		down = top.Position
	}

	added := make([]*layout.Node, 0, height-len(preds))
	for level := len(preds); level < height; level++ {
		h := &layout.Node{Kind: layout.KindHead, Level: uint8(level), Down: down}
		if err := l.st.AllocateNode(h); err != nil {
			return nil, err
		}
		added = append(added, h)
		down = h.Position
	}

	if err := l.st.PutUint64(l.root, down); err != nil {
		return nil, err
	}

	out := make([]*layout.Node, 0, height)
	for i := len(added) - 1; i >= 0; i-- {
		out = append(out, added[i])
	}
	return append(out, preds...), nil
}

// Delete unlinks key at every level, frees its tower and returns the record
// reference it held. Deleting a missing key is a no-op.
func (l *List) Delete(key []byte) (Ref, bool, error) {
	preds, err := l.predecessors(key)
	if err != nil || len(preds) == 0 {
		return Ref{}, false, err
	}

	var (
		ref   Ref
		found bool
		tower []*layout.Node
	)
	for _, pred := range preds {
		if pred.Next == 0 {
			continue
		}
		target, err := l.node(pred.Next)
		if err != nil {
			return Ref{}, false, err
		}
		if !bytes.Equal(target.Key, key) {
			continue
		}
		if err := l.st.PatchNext(pred.Position, target.Next); err != nil {
			return Ref{}, false, err
		}
		tower = append(tower, target)
		if target.Level == 0 {
			ref = Ref{Position: target.RecordPosition, Size: target.RecordSize}
			found = true
		}
	}

	l.st.ForgetKey(l.root, key)
	for _, n := range tower {
		l.st.FreeNode(n)
	}
	return ref, found, nil
}

// bottom returns the level-0 head, or nil for an empty list.
func (l *List) bottom() (*layout.Node, error) {
	cur, err := l.top()
	if err != nil || cur == nil {
		return nil, err
	}
	for cur.Down != 0 {
		if cur, err = l.node(cur.Down); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// Above returns the record positions of all keys greater than key, or
// greater than or equal when inclusive is set.
func (l *List) Above(key []byte, inclusive bool) (*roaring64.Bitmap, error) {
	out := roaring64.New()

	c, err := l.Seek(key)
	if err != nil {
		return nil, err
	}
	for {
		n, err := c.Next()
		if err != nil {
			return nil, err
		}
		if n == nil {
			return out, nil
		}
		if !inclusive && bytes.Equal(n.Key, key) {
			continue
		}
		out.Add(n.RecordPosition)
	}
}

// Below returns the record positions of all keys less than key, or less
// than or equal when inclusive is set.
func (l *List) Below(key []byte, inclusive bool) (*roaring64.Bitmap, error) {
	out := roaring64.New()

	c, err := l.Cursor()
	if err != nil {
		return nil, err
	}
	for {
		n, err := c.Next()
		if err != nil {
			return nil, err
		}
		if n == nil {
			return out, nil
		}
		cmp := bytes.Compare(n.Key, key)
		if cmp > 0 || (cmp == 0 && !inclusive) {
			return out, nil
		}
		out.Add(n.RecordPosition)
	}
}
