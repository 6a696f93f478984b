package diskmap

import (
	"math"
	"time"

	"github.com/hupe1980/diskmap/codec"
)

// FieldType is the declared type of a document field.
type FieldType uint8

const (
	// FieldAny accepts every stored value.
	FieldAny FieldType = iota
	FieldBool
	// FieldInt accepts integers and integral floats, returned as int64.
	FieldInt
	// FieldFloat accepts floats and integers, returned as float64.
	FieldFloat
	FieldString
	FieldBytes
	FieldTime
	FieldDocument
	FieldList
)

func (t FieldType) String() string {
	switch t {
	case FieldBool:
		return "bool"
	case FieldInt:
		return "int"
	case FieldFloat:
		return "float"
	case FieldString:
		return "string"
	case FieldBytes:
		return "bytes"
	case FieldTime:
		return "time"
	case FieldDocument:
		return "document"
	case FieldList:
		return "list"
	default:
		return "any"
	}
}

// FieldDescriptor names a document field and its declared type.
type FieldDescriptor struct {
	// Name is a field name or a dotted path into nested documents.
	Name string
	Type FieldType
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case []byte:
		return "bytes"
	case time.Time:
		return "time"
	case codec.Doc:
		return "document"
	case []any:
		return "list"
	default:
		return "unknown"
	}
}

// coerce checks a normalized document value against t. Null matches every type.
func (t FieldType) coerce(field string, v any) (any, error) {
	if v == nil || t == FieldAny {
		return v, nil
	}

	switch t {
	case FieldBool:
		if _, ok := v.(bool); ok {
			return v, nil
		}
	case FieldInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			if x == math.Trunc(x) && x >= math.MinInt64 && x < math.MaxInt64 {
				return int64(x), nil
			}
		}
	case FieldFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		}
	case FieldString:
		if _, ok := v.(string); ok {
			return v, nil
		}
	case FieldBytes:
		if _, ok := v.([]byte); ok {
			return v, nil
		}
	case FieldTime:
		if _, ok := v.(time.Time); ok {
			return v, nil
		}
	case FieldDocument:
		if _, ok := v.(codec.Doc); ok {
			return v, nil
		}
	case FieldList:
		if _, ok := v.([]any); ok {
			return v, nil
		}
	}
	return nil, &ErrAttributeType{Field: field, Expected: t, Actual: typeName(v)}
}
