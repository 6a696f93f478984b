package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Records written with it are portable and can be read back as documents
// through a structural view. Time, complex numbers, funcs and channels are
// not supported as values.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec used for value types with no better match.
var Default Codec = GoJSON{}
