package layout

import (
	"encoding/binary"
	"fmt"
)

// MatrixHeaderSize precedes the slot array of a dispatch node.
const MatrixHeaderSize = 8

// MatrixNode is a hash dispatch node: a fixed array of child positions.
// Slot i lives at SlotPosition(i); 0 means unset.
type MatrixNode struct {
	Position uint64
	Slots    []uint64
}

// MatrixNodeSize returns the encoded size of a dispatch node with fanout slots.
func MatrixNodeSize(fanout int) int {
	return MatrixHeaderSize + fanout*8
}

// SlotPosition returns the absolute position of slot i of the node at pos.
func SlotPosition(pos uint64, i int) uint64 {
	return pos + MatrixHeaderSize + uint64(i)*8
}

// EncodeMatrixHeader writes the 8-byte node header for fanout into b.
func EncodeMatrixHeader(b []byte, fanout int) {
	b[0] = byte(KindMatrix)
	clear(b[1:4])
	binary.LittleEndian.PutUint32(b[4:], uint32(fanout))
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *MatrixNode) MarshalBinary() ([]byte, error) {
	b := make([]byte, MatrixNodeSize(len(m.Slots)))
	EncodeMatrixHeader(b, len(m.Slots))
	for i, s := range m.Slots {
		binary.LittleEndian.PutUint64(b[MatrixHeaderSize+i*8:], s)
	}
	return b, nil
}

// DecodeMatrixHeader returns the fanout stored in an 8-byte node header.
func DecodeMatrixHeader(b []byte) (int, error) {
	if len(b) < MatrixHeaderSize {
		return 0, fmt.Errorf("%w: matrix header needs %d bytes", ErrShortBuffer, MatrixHeaderSize)
	}
	if Kind(b[0]) != KindMatrix {
		return 0, &KindError{Want: KindMatrix, Got: Kind(b[0])}
	}
	return int(binary.LittleEndian.Uint32(b[4:])), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *MatrixNode) UnmarshalBinary(b []byte) error {
	fanout, err := DecodeMatrixHeader(b)
	if err != nil {
		return err
	}
	if len(b) < MatrixNodeSize(fanout) {
		return fmt.Errorf("%w: matrix node with fanout %d", ErrShortBuffer, fanout)
	}
	m.Slots = make([]uint64, fanout)
	for i := range m.Slots {
		m.Slots[i] = binary.LittleEndian.Uint64(b[MatrixHeaderSize+i*8:])
	}
	return nil
}
