package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/tinylib/msgp/msgp"
)

// DocumentVersion is the format version written ahead of every document.
const DocumentVersion = 1

// ErrDocumentVersion is returned when decoding a document of an unknown version.
var ErrDocumentVersion = errors.New("codec: unsupported document version")

// Doc is a self-describing composite value. Field values are nil, bool,
// int64, float64, string, []byte, time.Time, Doc or []any; other integer and
// float widths are widened when encoded.
type Doc map[string]any

// DocMarshaler is implemented by types that convert themselves to a Doc.
type DocMarshaler interface {
	MarshalDoc() (Doc, error)
}

// DocUnmarshaler is implemented by types that populate themselves from a Doc.
type DocUnmarshaler interface {
	UnmarshalDoc(Doc) error
}

// Lookup returns the value at a dotted path such as "address.city".
func (d Doc) Lookup(path string) (any, bool) {
	cur := d
	for {
		name, rest, nested := strings.Cut(path, ".")
		v, ok := cur[name]
		if !ok {
			return nil, false
		}
		if !nested {
			return v, true
		}
		if cur, ok = v.(Doc); !ok {
			return nil, false
		}
		path = rest
	}
}

// Document encodes Doc values as a version byte followed by a MessagePack
// map whose fields are written in sorted order, so equal documents always
// encode to equal bytes.
type Document struct{}

// Marshal encodes a Doc, a map[string]any or a DocMarshaler.
func (Document) Marshal(v any) ([]byte, error) {
	var d Doc
	switch x := v.(type) {
	case Doc:
		d = x
	case *Doc:
		d = *x
	case map[string]any:
		d = Doc(x)
	case DocMarshaler:
		var err error
		if d, err = x.MarshalDoc(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("codec: document cannot encode %T", v)
	}
	return appendDoc([]byte{DocumentVersion}, d)
}

// Unmarshal decodes into a *Doc, a *map[string]any, an *any or a DocUnmarshaler.
func (Document) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("codec: empty document")
	}
	if data[0] != DocumentVersion {
		return fmt.Errorf("%w: %d", ErrDocumentVersion, data[0])
	}
	d, err := decodeDoc(data[1:])
	if err != nil {
		return err
	}

	switch p := v.(type) {
	case *Doc:
		*p = d
	case *map[string]any:
		*p = d
	case *any:
		*p = d
	case DocUnmarshaler:
		return p.UnmarshalDoc(d)
	default:
		return fmt.Errorf("codec: document cannot decode into %T", v)
	}
	return nil
}

// Name returns the unique name of the codec ("document").
func (Document) Name() string { return "document" }

func appendDoc(b []byte, d Doc) ([]byte, error) {
	names := make([]string, 0, len(d))
	for k := range d {
		names = append(names, k)
	}
	slices.Sort(names)

	b = msgp.AppendMapHeader(b, uint32(len(names)))
	for _, k := range names {
		b = msgp.AppendString(b, k)
		var err error
		if b, err = appendValue(b, d[k]); err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
	}
	return b, nil
}

func appendValue(b []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return msgp.AppendNil(b), nil
	case bool:
		return msgp.AppendBool(b, x), nil
	case int:
		return msgp.AppendInt64(b, int64(x)), nil
	case int8:
		return msgp.AppendInt64(b, int64(x)), nil
	case int16:
		return msgp.AppendInt64(b, int64(x)), nil
	case int32:
		return msgp.AppendInt64(b, int64(x)), nil
	case int64:
		return msgp.AppendInt64(b, x), nil
	case uint:
		return appendUnsigned(b, uint64(x))
	case uint8:
		return msgp.AppendInt64(b, int64(x)), nil
	case uint16:
		return msgp.AppendInt64(b, int64(x)), nil
	case uint32:
		return msgp.AppendInt64(b, int64(x)), nil
	case uint64:
		return appendUnsigned(b, x)
	case float32:
		return msgp.AppendFloat64(b, float64(x)), nil
	case float64:
		return msgp.AppendFloat64(b, x), nil
	case string:
		return msgp.AppendString(b, x), nil
	case []byte:
		return msgp.AppendBytes(b, x), nil
	case time.Time:
		return msgp.AppendTime(b, x), nil
	case Doc:
		return appendDoc(b, x)
	case map[string]any:
		return appendDoc(b, Doc(x))
	case []any:
		b = msgp.AppendArrayHeader(b, uint32(len(x)))
		for i, e := range x {
			var err error
			if b, err = appendValue(b, e); err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
		}
		return b, nil
	case []string:
		b = msgp.AppendArrayHeader(b, uint32(len(x)))
		for _, e := range x {
			b = msgp.AppendString(b, e)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("codec: unsupported document value %T", v)
	}
}

func appendUnsigned(b []byte, v uint64) ([]byte, error) {
	if v > math.MaxInt64 {
		return nil, fmt.Errorf("codec: unsigned value %d overflows int64", v)
	}
	return msgp.AppendInt64(b, int64(v)), nil
}

func decodeDoc(data []byte) (Doc, error) {
	raw, _, err := msgp.ReadIntfBytes(data)
	if err != nil {
		return nil, err
	}
	v, err := normalize(raw)
	if err != nil {
		return nil, err
	}
	d, ok := v.(Doc)
	if !ok {
		return nil, fmt.Errorf("codec: document body is %T, not a map", raw)
	}
	return d, nil
}

// DocFrom converts a generic decoded value, such as the map produced by
// decoding JSON with json.Decoder.UseNumber, into a Doc.
func DocFrom(m map[string]any) (Doc, error) {
	v, err := normalize(m)
	if err != nil {
		return nil, err
	}
	return v.(Doc), nil
}

// normalize narrows decoded values to the Doc value set.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, int64, float64, string, []byte:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("codec: unsigned value %d overflows int64", x)
		}
		return int64(x), nil
	case float32:
		return float64(x), nil
	case time.Time:
		return x.UTC(), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		return x.Float64()
	case Doc:
		return normalizeMap(x)
	case map[string]any:
		return normalizeMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("codec: unsupported document value %T", v)
	}
}

func normalizeMap(m map[string]any) (Doc, error) {
	d := make(Doc, len(m))
	for k, e := range m {
		n, err := normalize(e)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		d[k] = n
	}
	return d, nil
}
