package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_Encoding(t *testing.T) {
	h := Header{
		Position:    96,
		FirstNode:   4096,
		RecordCount: 12,
		Strategy:    StrategyMatrixHash,
		LoadFactor:  7,
		MaxLevel:    12,
		KeyKind:     3,
	}

	b, err := h.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, b, HeaderSize)

	var got Header
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, h, got)
	assert.False(t, got.IsZero())
	assert.True(t, Header{}.IsZero())

	assert.ErrorIs(t, got.UnmarshalBinary(b[:10]), ErrShortBuffer)
}

func TestStrategy(t *testing.T) {
	assert.True(t, StrategySkipList.Ordered())
	assert.False(t, StrategyFlatHash.Ordered())
	assert.Equal(t, "matrix-hash", StrategyMatrixHash.String())
	assert.Equal(t, "none", Strategy(99).String())
}

func TestNode_Encoding(t *testing.T) {
	t.Run("head", func(t *testing.T) {
		n := &Node{Kind: KindHead, Level: 3, Next: 512, Down: 256}
		b, err := n.MarshalBinary()
		require.NoError(t, err)
		assert.Len(t, b, HeadNodeSize)

		var got Node
		require.NoError(t, got.UnmarshalBinary(b))
		assert.True(t, got.IsHead())
		assert.Equal(t, uint64(512), got.Next)
		assert.Equal(t, uint64(256), got.Down)
		assert.Equal(t, uint8(3), got.Level)
	})

	t.Run("data", func(t *testing.T) {
		n := &Node{Kind: KindData, Next: 1024, RecordPosition: 2048, RecordSize: 99, Key: []byte("alpha")}
		b, err := n.MarshalBinary()
		require.NoError(t, err)
		assert.Len(t, b, DataNodeSize(5))

		var got Node
		keyLen, err := got.DecodePrefix(b[:DataNodePrefix])
		require.NoError(t, err)
		assert.Equal(t, 5, keyLen)

		require.NoError(t, got.UnmarshalBinary(b))
		assert.Equal(t, []byte("alpha"), got.Key)
		assert.Equal(t, uint64(2048), got.RecordPosition)
		assert.Equal(t, uint32(99), got.RecordSize)
		assert.False(t, got.IsHead())
	})

	t.Run("zeroed memory", func(t *testing.T) {
		var got Node
		var kerr *KindError
		assert.ErrorAs(t, got.UnmarshalBinary(make([]byte, DataNodePrefix)), &kerr)
		assert.Equal(t, KindInvalid, kerr.Got)
	})

	t.Run("key too large", func(t *testing.T) {
		n := &Node{Kind: KindData, Key: make([]byte, MaxKeySize+1)}
		_, err := n.MarshalBinary()
		assert.Error(t, err)
	})
}

func TestMatrixNode_Encoding(t *testing.T) {
	m := &MatrixNode{Slots: []uint64{0, 8, 0, 24}}
	b, err := m.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, b, MatrixNodeSize(4))

	var got MatrixNode
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, m.Slots, got.Slots)

	assert.Equal(t, uint64(1000+8+16), SlotPosition(1000, 2))

	_, err = DecodeMatrixHeader(make([]byte, 8))
	var kerr *KindError
	assert.ErrorAs(t, err, &kerr)
}

func TestRecord_Encoding(t *testing.T) {
	b := EncodeRecord(RecordHeader{CodecID: 4, Compression: CompressionZstd}, []byte("payload"))
	assert.Len(t, b, RecordHeaderSize+7)

	h, payload, err := DecodeRecord(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(4), h.CodecID)
	assert.Equal(t, CompressionZstd, h.Compression)
	assert.Equal(t, uint32(7), h.PayloadLen)
	assert.Equal(t, "payload", string(payload))

	_, _, err = DecodeRecord(b[:10])
	assert.ErrorIs(t, err, ErrShortBuffer)
}
