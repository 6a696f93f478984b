package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Bootstrap positions of the three index roots.
const (
	ByNameRoot   = 16
	ByIDRoot     = ByNameRoot + HeaderSize
	InternalRoot = ByIDRoot + HeaderSize
)

// HeaderSize is the encoded size of a Header.
const HeaderSize = 40

// Header field offsets, relative to the header position.
const (
	HeaderPositionOffset  = 0
	HeaderFirstNodeOffset = 8
	HeaderCountOffset     = 16
)

// Strategy selects the structure an index is built on.
type Strategy uint8

const (
	// StrategyNone marks an unused header slot.
	StrategyNone Strategy = iota
	// StrategySkipList is a single ordered skip list.
	StrategySkipList
	// StrategyFlatHash is one eagerly allocated dispatch node in front of the buckets.
	StrategyFlatHash
	// StrategyMatrixHash is a lazily grown base-10 dispatch trie.
	StrategyMatrixHash
)

func (s Strategy) String() string {
	switch s {
	case StrategySkipList:
		return "skiplist"
	case StrategyFlatHash:
		return "flat-hash"
	case StrategyMatrixHash:
		return "matrix-hash"
	default:
		return "none"
	}
}

// Ordered reports whether the strategy supports range queries.
func (s Strategy) Ordered() bool {
	return s == StrategySkipList
}

// Header is the fixed-size descriptor of one index.
type Header struct {
	// Position is where this header itself lives.
	Position uint64
	// FirstNode is the skip-list root cell or the root dispatch node.
	FirstNode uint64
	// RecordCount is maintained with atomic adds and is advisory.
	RecordCount uint64
	Strategy    Strategy
	LoadFactor  uint8
	MaxLevel    uint8
	KeyKind     uint8
}

// ErrShortBuffer is returned when decoding from a truncated buffer.
var ErrShortBuffer = errors.New("layout: short buffer")

// IsZero reports whether h describes no index.
func (h Header) IsZero() bool {
	return h.Strategy == StrategyNone && h.FirstNode == 0
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	h.Encode(b)
	return b, nil
}

// Encode writes h into b, which must be at least HeaderSize bytes.
func (h Header) Encode(b []byte) {
	_ = b[HeaderSize-1]
	binary.LittleEndian.PutUint64(b[HeaderPositionOffset:], h.Position)
	binary.LittleEndian.PutUint64(b[HeaderFirstNodeOffset:], h.FirstNode)
	binary.LittleEndian.PutUint64(b[HeaderCountOffset:], h.RecordCount)
	b[24] = byte(h.Strategy)
	b[25] = h.LoadFactor
	b[26] = h.MaxLevel
	b[27] = h.KeyKind
	clear(b[28:HeaderSize])
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("%w: header needs %d bytes, got %d", ErrShortBuffer, HeaderSize, len(b))
	}
	h.Position = binary.LittleEndian.Uint64(b[HeaderPositionOffset:])
	h.FirstNode = binary.LittleEndian.Uint64(b[HeaderFirstNodeOffset:])
	h.RecordCount = binary.LittleEndian.Uint64(b[HeaderCountOffset:])
	h.Strategy = Strategy(b[24])
	h.LoadFactor = b[25]
	h.MaxLevel = b[26]
	h.KeyKind = b[27]
	return nil
}
