package matrix

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/diskmap/internal/layout"
)

const (
	// Fanout is the width of every lazily grown dispatch node.
	Fanout = 10
	// FlatThreshold is the load factor from which the matrix strategy is used.
	FlatThreshold = 5
	// MaxLoadFactor is the deepest matrix whose digits fit in a 64-bit hash.
	MaxLoadFactor = 19
)

// ErrInvalidLoadFactor is returned for load factors above MaxLoadFactor.
var ErrInvalidLoadFactor = errors.New("matrix: invalid load factor")

// Storage is the raw word store a Dispatch operates on.
type Storage interface {
	Allocate(size int) (uint64, error)
	Deallocate(pos uint64, size int)
	Write(pos uint64, data []byte) error
	Read(pos uint64, size int) ([]byte, error)
	Uint64(pos uint64) (uint64, error)
	CompareAndSwapUint64(pos, old, new uint64) (bool, error)
}

// Dispatch routes keys through a tree of dispatch nodes to bucket root
// cells. The final slot a key resolves to is the root cell of that bucket's
// skip list.
type Dispatch struct {
	st     Storage
	root   uint64
	levels int
	fanout int
	pow    [MaxLoadFactor]uint64
}

// StrategyFor returns the hash strategy for loadFactor.
func StrategyFor(loadFactor uint8) (layout.Strategy, error) {
	if loadFactor > MaxLoadFactor {
		return layout.StrategyNone, fmt.Errorf("%w: %d (max %d)", ErrInvalidLoadFactor, loadFactor, MaxLoadFactor)
	}
	if loadFactor < FlatThreshold {
		return layout.StrategyFlatHash, nil
	}
	return layout.StrategyMatrixHash, nil
}

func shape(strategy layout.Strategy, loadFactor uint8) (levels, fanout int) {
	if strategy == layout.StrategyFlatHash {
		fanout = 1
		for range loadFactor {
			fanout *= 10
		}
		return 1, fanout
	}
	return int(loadFactor), Fanout
}

// Create allocates the root dispatch node for a new index and returns its
// position. Flat roots are allocated with every bucket slot present.
func Create(st Storage, strategy layout.Strategy, loadFactor uint8) (uint64, error) {
	_, fanout := shape(strategy, loadFactor)
	return allocateNode(st, fanout)
}

// Open returns the dispatch rooted at root.
func Open(st Storage, root uint64, strategy layout.Strategy, loadFactor uint8) (*Dispatch, error) {
	if strategy != layout.StrategyFlatHash && strategy != layout.StrategyMatrixHash {
		return nil, fmt.Errorf("matrix: strategy %s is not a hash strategy", strategy)
	}
	if loadFactor > MaxLoadFactor {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLoadFactor, loadFactor)
	}

	levels, fanout := shape(strategy, loadFactor)
	d := &Dispatch{st: st, root: root, levels: levels, fanout: fanout}

	p := uint64(1)
	for i := range d.pow {
		d.pow[i] = p
		p *= Fanout
	}
	return d, nil
}

func allocateNode(st Storage, fanout int) (uint64, error) {
	b := make([]byte, layout.MatrixNodeSize(fanout))
	layout.EncodeMatrixHeader(b, fanout)

	pos, err := st.Allocate(len(b))
	if err != nil {
		return 0, err
	}
	// Reclaimed space is not zeroed; the whole node must be written.
	if err := st.Write(pos, b); err != nil {
		st.Deallocate(pos, len(b))
		return 0, err
	}
	return pos, nil
}

// Hash is the persisted key hash. It must never change for a given key.
func Hash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

func (d *Dispatch) digit(h uint64, level int) int {
	if d.levels == 1 {
		return int(h % uint64(d.fanout))
	}
	return int(h / d.pow[level] % Fanout)
}

// Bucket returns the root cell of key's bucket. With create unset it
// reports false when an intermediate node does not exist yet; with create
// set missing nodes are allocated and installed with a single CAS, the
// loser of a race freeing its node.
func (d *Dispatch) Bucket(key []byte, create bool) (uint64, bool, error) {
	h := Hash(key)
	node := d.root
	for level := 0; level < d.levels-1; level++ {
		slot := layout.SlotPosition(node, d.digit(h, level))

		child, err := d.st.Uint64(slot)
		if err != nil {
			return 0, false, err
		}
		if child == 0 {
			if !create {
				return 0, false, nil
			}
			if child, err = d.install(slot); err != nil {
				return 0, false, err
			}
		}
		node = child
	}

	return layout.SlotPosition(node, d.digit(h, d.levels-1)), true, nil
}

func (d *Dispatch) install(slot uint64) (uint64, error) {
	pos, err := allocateNode(d.st, d.fanout)
	if err != nil {
		return 0, err
	}

	swapped, err := d.st.CompareAndSwapUint64(slot, 0, pos)
	if err != nil {
		d.st.Deallocate(pos, layout.MatrixNodeSize(d.fanout))
		return 0, err
	}
	if swapped {
		return pos, nil
	}

	d.st.Deallocate(pos, layout.MatrixNodeSize(d.fanout))
	return d.st.Uint64(slot)
}

// Levels returns the dispatch depth.
func (d *Dispatch) Levels() int {
	return d.levels
}

// Fanout returns the slot count per dispatch node.
func (d *Dispatch) Fanout() int {
	return d.fanout
}
