package codec

import (
	"fmt"
	"time"

	"github.com/tinylib/msgp/msgp"
)

// Marshaler is implemented by types with generated MessagePack encoders.
type Marshaler = msgp.Marshaler

// Unmarshaler is implemented by types with generated MessagePack decoders.
type Unmarshaler = msgp.Unmarshaler

// MsgPack is a compact binary codec for scalars, strings, byte slices,
// times, documents and types with generated msgp methods.
type MsgPack struct{}

// Marshal encodes v as MessagePack.
func (MsgPack) Marshal(v any) ([]byte, error) {
	switch x := v.(type) {
	case Marshaler:
		return x.MarshalMsg(nil)
	case Doc:
		return appendDoc(nil, x)
	case *Doc:
		return appendDoc(nil, *x)
	}
	return msgp.AppendIntf(nil, v)
}

// Unmarshal decodes MessagePack data into the value v points to.
func (MsgPack) Unmarshal(data []byte, v any) error {
	var err error
	switch p := v.(type) {
	case Unmarshaler:
		_, err = p.UnmarshalMsg(data)
	case *string:
		*p, _, err = msgp.ReadStringBytes(data)
	case *[]byte:
		*p, _, err = msgp.ReadBytesBytes(data, nil)
	case *bool:
		*p, _, err = msgp.ReadBoolBytes(data)
	case *int:
		*p, _, err = msgp.ReadIntBytes(data)
	case *int8:
		*p, _, err = msgp.ReadInt8Bytes(data)
	case *int16:
		*p, _, err = msgp.ReadInt16Bytes(data)
	case *int32:
		*p, _, err = msgp.ReadInt32Bytes(data)
	case *int64:
		*p, _, err = msgp.ReadInt64Bytes(data)
	case *uint:
		*p, _, err = msgp.ReadUintBytes(data)
	case *uint8:
		*p, _, err = msgp.ReadUint8Bytes(data)
	case *uint16:
		*p, _, err = msgp.ReadUint16Bytes(data)
	case *uint32:
		*p, _, err = msgp.ReadUint32Bytes(data)
	case *uint64:
		*p, _, err = msgp.ReadUint64Bytes(data)
	case *float32:
		*p, _, err = msgp.ReadFloat32Bytes(data)
	case *float64:
		*p, _, err = msgp.ReadFloat64Bytes(data)
	case *time.Time:
		*p, _, err = msgp.ReadTimeBytes(data)
	case *Doc:
		*p, err = decodeDoc(data)
	case *any:
		var raw any
		raw, _, err = msgp.ReadIntfBytes(data)
		if err == nil {
			*p, err = normalize(raw)
		}
	default:
		return fmt.Errorf("codec: msgpack cannot decode into %T", v)
	}
	return err
}

// Name returns the unique name of the codec ("msgpack").
func (MsgPack) Name() string { return "msgpack" }
