package store

import (
	"sync"

	"github.com/google/btree"
)

// block is a reclaimed byte range.
type block struct {
	size     uint64
	position uint64
}

func lessBlock(a, b block) bool {
	if a.size != b.size {
		return a.size < b.size
	}
	return a.position < b.position
}

// freeList keeps reclaimed ranges ordered by (size, position) so the
// smallest block that fits is found with one ordered seek.
type freeList struct {
	mu    sync.Mutex
	tree  *btree.BTreeG[block]
	bytes uint64
}

func newFreeList() *freeList {
	return &freeList{tree: btree.NewG(16, lessBlock)}
}

func (f *freeList) put(position, size uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tree.ReplaceOrInsert(block{size: size, position: position})
	f.bytes += size
}

// take removes the smallest block of at least size bytes and returns its
// position. The unused tail goes back into the list.
func (f *freeList) take(size uint64) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		found block
		ok    bool
	)
	f.tree.AscendGreaterOrEqual(block{size: size}, func(b block) bool {
		found, ok = b, true
		return false
	})
	if !ok {
		return 0, false
	}

	f.tree.Delete(found)
	f.bytes -= found.size

	if rest := found.size - size; rest >= Alignment {
		f.tree.ReplaceOrInsert(block{size: rest, position: found.position + size})
		f.bytes += rest
	}
	return found.position, true
}

func (f *freeList) stats() (blocks int, bytes uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tree.Len(), f.bytes
}

func (f *freeList) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tree.Clear(false)
	f.bytes = 0
}
