// Package values implements an opaque JSON-like variant type for module
// boundaries where a message carries heterogeneous, open-shaped fields
// (Alarm.Details, COA auxiliary parameters, Mission payload). Internally,
// typed structs are used; Value exists only for the boundary.
package values

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Value is an immutable, JSON-shaped structured value: null, bool, number,
// string, array or object. It is backed by its canonical JSON encoding so
// equality and serialization are trivial, and read with gjson path
// accessors instead of type-asserting a map[string]any.
type Value struct {
	raw json.RawMessage
}

// Null is the zero Value.
var Null = Value{raw: json.RawMessage("null")}

// FromAny marshals v (a plain Go value, typically map[string]any) into a
// Value. Unmarshalable values (channels, funcs) collapse to Null; callers
// at the boundary should never construct those.
func FromAny(v any) Value {
	if v == nil {
		return Null
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Null
	}
	return Value{raw: b}
}

// FromJSON wraps already-encoded JSON bytes as a Value without
// re-marshaling.
func FromJSON(raw []byte) Value {
	if len(raw) == 0 {
		return Null
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Value{raw: cp}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.raw == nil {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	v.raw = cp
	return nil
}

// String renders the canonical JSON text.
func (v Value) String() string {
	if v.raw == nil {
		return "null"
	}
	return string(v.raw)
}

// Get reads a dotted gjson path out of the value, e.g. "station.id".
func (v Value) Get(path string) gjson.Result {
	return gjson.GetBytes(v.raw, path)
}

// IsNull reports whether the value is JSON null or unset.
func (v Value) IsNull() bool {
	return v.raw == nil || string(v.raw) == "null"
}

// Map renders the value back into a plain map[string]any for legacy call
// sites (e.g. handing details to a log field); returns nil if the value is
// not a JSON object.
func (v Value) Map() map[string]any {
	if v.IsNull() {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(v.raw, &m); err != nil {
		return nil
	}
	return m
}
