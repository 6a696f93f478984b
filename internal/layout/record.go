package layout

import (
	"encoding/binary"
	"fmt"
)

// RecordHeaderSize precedes every stored value payload.
const RecordHeaderSize = 8

// Compression identifies how a record payload is compressed.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
)

// RecordHeader describes a value record:
//
//	[0:2) codec id  [2] compression  [3] flags  [4:8) payload length
type RecordHeader struct {
	CodecID     uint16
	Compression Compression
	Flags       uint8
	PayloadLen  uint32
}

// Encode writes the header into the first RecordHeaderSize bytes of b.
func (h RecordHeader) Encode(b []byte) {
	binary.LittleEndian.PutUint16(b[0:], h.CodecID)
	b[2] = byte(h.Compression)
	b[3] = h.Flags
	binary.LittleEndian.PutUint32(b[4:], h.PayloadLen)
}

// DecodeRecordHeader parses the header at the start of b.
func DecodeRecordHeader(b []byte) (RecordHeader, error) {
	if len(b) < RecordHeaderSize {
		return RecordHeader{}, fmt.Errorf("%w: record header", ErrShortBuffer)
	}
	return RecordHeader{
		CodecID:     binary.LittleEndian.Uint16(b[0:]),
		Compression: Compression(b[2]),
		Flags:       b[3],
		PayloadLen:  binary.LittleEndian.Uint32(b[4:]),
	}, nil
}

// EncodeRecord prepends h to payload. h.PayloadLen is set from payload.
func EncodeRecord(h RecordHeader, payload []byte) []byte {
	h.PayloadLen = uint32(len(payload))
	b := make([]byte, RecordHeaderSize+len(payload))
	h.Encode(b)
	copy(b[RecordHeaderSize:], payload)
	return b
}

// DecodeRecord splits a stored record into its header and payload.
func DecodeRecord(b []byte) (RecordHeader, []byte, error) {
	h, err := DecodeRecordHeader(b)
	if err != nil {
		return h, nil, err
	}
	end := RecordHeaderSize + int(h.PayloadLen)
	if len(b) < end {
		return h, nil, fmt.Errorf("%w: record payload needs %d bytes, got %d", ErrShortBuffer, h.PayloadLen, len(b)-RecordHeaderSize)
	}
	return h, b[RecordHeaderSize:end], nil
}
