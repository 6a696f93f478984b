// Package keys provides order-preserving key encodings.
//
// Every encoding maps keys to byte strings whose bytewise order matches the
// natural order of the keys, so skip lists can compare encoded keys with
// bytes.Compare and range queries follow the key type's own ordering.
package keys

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind identifies a key encoding. It is persisted in index headers so that
// reopening an index with a different encoding is detected.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindString
	KindBytes
	KindInt64
	KindInt
	KindUint64
	KindFloat64
	KindTime
	KindCustom Kind = 255
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindInt64:
		return "int64"
	case KindInt:
		return "int"
	case KindUint64:
		return "uint64"
	case KindFloat64:
		return "float64"
	case KindTime:
		return "time"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// ErrInvalidKey is returned when decoding bytes that no key could have produced.
var ErrInvalidKey = errors.New("keys: invalid encoded key")

// Codec encodes keys of type K.
type Codec[K any] interface {
	// Append appends the encoding of k to dst.
	Append(dst []byte, k K) []byte
	// Decode reverses Append.
	Decode(b []byte) (K, error)
	// Kind identifies the encoding.
	Kind() Kind
}

// Encode returns the encoding of k.
func Encode[K any](c Codec[K], k K) []byte {
	return c.Append(nil, k)
}

type stringCodec struct{}

// String encodes strings as their UTF-8 bytes.
func String() Codec[string] { return stringCodec{} }

func (stringCodec) Append(dst []byte, k string) []byte { return append(dst, k...) }
func (stringCodec) Decode(b []byte) (string, error)    { return string(b), nil }
func (stringCodec) Kind() Kind                         { return KindString }

type bytesCodec struct{}

// Bytes encodes byte slices verbatim.
func Bytes() Codec[[]byte] { return bytesCodec{} }

func (bytesCodec) Append(dst []byte, k []byte) []byte { return append(dst, k...) }
func (bytesCodec) Decode(b []byte) ([]byte, error)    { return append([]byte{}, b...), nil }
func (bytesCodec) Kind() Kind                         { return KindBytes }

const signBit = 1 << 63

func appendSigned(dst []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(v)^signBit)
}

func decodeSigned(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: want 8 bytes, got %d", ErrInvalidKey, len(b))
	}
	return int64(binary.BigEndian.Uint64(b) ^ signBit), nil
}

type int64Codec struct{}

// Int64 encodes signed integers big-endian with the sign bit flipped.
func Int64() Codec[int64] { return int64Codec{} }

func (int64Codec) Append(dst []byte, k int64) []byte { return appendSigned(dst, k) }
func (int64Codec) Decode(b []byte) (int64, error)    { return decodeSigned(b) }
func (int64Codec) Kind() Kind                        { return KindInt64 }

type intCodec struct{}

// Int encodes int like Int64.
func Int() Codec[int] { return intCodec{} }

func (intCodec) Append(dst []byte, k int) []byte { return appendSigned(dst, int64(k)) }
func (intCodec) Decode(b []byte) (int, error) {
	v, err := decodeSigned(b)
	return int(v), err
}
func (intCodec) Kind() Kind { return KindInt }

type uint64Codec struct{}

// Uint64 encodes unsigned integers big-endian.
func Uint64() Codec[uint64] { return uint64Codec{} }

func (uint64Codec) Append(dst []byte, k uint64) []byte { return binary.BigEndian.AppendUint64(dst, k) }
func (uint64Codec) Decode(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: want 8 bytes, got %d", ErrInvalidKey, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
func (uint64Codec) Kind() Kind { return KindUint64 }

type float64Codec struct{}

// Float64 encodes IEEE 754 doubles so that negative values sort before
// positive ones: positives get the sign bit set, negatives are inverted.
// NaN sorts above +Inf.
func Float64() Codec[float64] { return float64Codec{} }

func (float64Codec) Append(dst []byte, k float64) []byte {
	bits := math.Float64bits(k)
	if bits&signBit != 0 {
		bits = ^bits
	} else {
		bits |= signBit
	}
	return binary.BigEndian.AppendUint64(dst, bits)
}

func (float64Codec) Decode(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: want 8 bytes, got %d", ErrInvalidKey, len(b))
	}
	bits := binary.BigEndian.Uint64(b)
	if bits&signBit != 0 {
		bits &^= signBit
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}

func (float64Codec) Kind() Kind { return KindFloat64 }

type timeCodec struct{}

// Time encodes instants as Unix nanoseconds. Decoded times are UTC; the
// location and monotonic reading are not preserved.
func Time() Codec[time.Time] { return timeCodec{} }

func (timeCodec) Append(dst []byte, k time.Time) []byte { return appendSigned(dst, k.UnixNano()) }
func (timeCodec) Decode(b []byte) (time.Time, error) {
	v, err := decodeSigned(b)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, v).UTC(), nil
}
func (timeCodec) Kind() Kind { return KindTime }
