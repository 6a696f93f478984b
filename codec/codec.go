// Package codec centralizes value encoding.
//
// Every stored record carries the id of the codec that wrote it, so codec
// selection is a compatibility boundary: changing the codec of an existing
// map leaves older records decodable only while the old codec stays
// registered under its name.
package codec

import (
	"fmt"
	"time"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	case "msgpack":
		return MsgPack{}, true
	case "document":
		return Document{}, true
	default:
		return nil, false
	}
}

// Builtins returns the names of all built-in codecs.
func Builtins() []string {
	return []string{"json", "go-json", "msgpack", "document"}
}

// For picks the codec for values of type V: Document for documents,
// MsgPack for scalars, strings, byte slices and times, Default otherwise.
func For[V any]() Codec {
	var zero V
	switch any(zero).(type) {
	case Doc:
		return Document{}
	case string, []byte, bool, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return MsgPack{}
	}
	if _, ok := any(&zero).(Unmarshaler); ok {
		return MsgPack{}
	}
	return Default
}

// MustMarshal is a helper for internal tests/benchmarks.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
