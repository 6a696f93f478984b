package layout

import (
	"encoding/binary"
	"fmt"
)

// Kind tags the first byte after the link fields of every node.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindHead
	KindData
	KindMatrix
)

// Skip-list node layout. The two links come first so that every 8-byte
// field sits on an aligned offset:
//
//	[0:8)   next
//	[8:16)  down
//	[16]    kind
//	[17]    level
//	[18:20) key length          (data nodes only)
//	[20:24) record size
//	[24:32) record position
//	[32:)   key
const (
	NextOffset           = 0
	DownOffset           = 8
	RecordSizeOffset     = 20
	RecordPositionOffset = 24

	HeadNodeSize   = 24
	DataNodePrefix = 32

	// MaxKeySize is the largest encodable key.
	MaxKeySize = 1<<16 - 1
)

// Node is a decoded skip-list node. Head nodes have Kind KindHead and no key.
// A decoded Node is a snapshot: re-read it by position after any mutation.
type Node struct {
	Position       uint64
	Kind           Kind
	Level          uint8
	Next           uint64
	Down           uint64
	RecordPosition uint64
	RecordSize     uint32
	Key            []byte
}

// IsHead reports whether n is a level sentinel.
func (n *Node) IsHead() bool {
	return n.Kind == KindHead
}

// Size returns the encoded size of n.
func (n *Node) Size() int {
	if n.Kind == KindHead {
		return HeadNodeSize
	}
	return DataNodePrefix + len(n.Key)
}

// DataNodeSize returns the encoded size of a data node with a key of keyLen bytes.
func DataNodeSize(keyLen int) int {
	return DataNodePrefix + keyLen
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (n *Node) MarshalBinary() ([]byte, error) {
	if len(n.Key) > MaxKeySize {
		return nil, fmt.Errorf("layout: key of %d bytes exceeds %d", len(n.Key), MaxKeySize)
	}
	b := make([]byte, n.Size())
	binary.LittleEndian.PutUint64(b[NextOffset:], n.Next)
	binary.LittleEndian.PutUint64(b[DownOffset:], n.Down)
	b[16] = byte(n.Kind)
	b[17] = n.Level
	if n.Kind != KindHead {
		binary.LittleEndian.PutUint16(b[18:], uint16(len(n.Key)))
		binary.LittleEndian.PutUint32(b[RecordSizeOffset:], n.RecordSize)
		binary.LittleEndian.PutUint64(b[RecordPositionOffset:], n.RecordPosition)
		copy(b[DataNodePrefix:], n.Key)
	}
	return b, nil
}

// DecodePrefix decodes the fixed part of a node from b, which must hold at
// least HeadNodeSize bytes (DataNodePrefix for data nodes). It returns the
// key length still to be read for data nodes.
func (n *Node) DecodePrefix(b []byte) (keyLen int, err error) {
	if len(b) < HeadNodeSize {
		return 0, fmt.Errorf("%w: node needs %d bytes, got %d", ErrShortBuffer, HeadNodeSize, len(b))
	}
	n.Next = binary.LittleEndian.Uint64(b[NextOffset:])
	n.Down = binary.LittleEndian.Uint64(b[DownOffset:])
	n.Kind = Kind(b[16])
	n.Level = b[17]

	switch n.Kind {
	case KindHead:
		n.RecordPosition, n.RecordSize, n.Key = 0, 0, nil
		return 0, nil
	case KindData:
		if len(b) < DataNodePrefix {
			return 0, fmt.Errorf("%w: data node needs %d bytes, got %d", ErrShortBuffer, DataNodePrefix, len(b))
		}
		n.RecordSize = binary.LittleEndian.Uint32(b[RecordSizeOffset:])
		n.RecordPosition = binary.LittleEndian.Uint64(b[RecordPositionOffset:])
		return int(binary.LittleEndian.Uint16(b[18:])), nil
	default:
		return 0, &KindError{Want: KindData, Got: n.Kind}
	}
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (n *Node) UnmarshalBinary(b []byte) error {
	keyLen, err := n.DecodePrefix(b)
	if err != nil {
		return err
	}
	if n.Kind == KindHead {
		return nil
	}
	if len(b) < DataNodePrefix+keyLen {
		return fmt.Errorf("%w: key needs %d bytes, got %d", ErrShortBuffer, keyLen, len(b)-DataNodePrefix)
	}
	n.Key = append([]byte(nil), b[DataNodePrefix:DataNodePrefix+keyLen]...)
	return nil
}

// KindError is returned when a position holds a node of an unexpected kind.
// Zeroed or garbage memory surfaces as KindInvalid.
type KindError struct {
	Want Kind
	Got  Kind
}

func (e *KindError) Error() string {
	return fmt.Sprintf("layout: expected node kind %d, found %d", e.Want, e.Got)
}
