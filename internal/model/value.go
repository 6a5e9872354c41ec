package model

import (
	"encoding/json"
	"strconv"
)

// Kind enumerates the dynamic types a context value can hold.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// Value is a dynamically typed context value. Identities accumulate values
// written by many connectors, so a single static type cannot work; Value
// keeps the stored shape while staying safe to pass around by value.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []any
	m    map[string]any
}

// Null returns the null value, the zero Value.
func Null() Value { return Value{} }

// String wraps a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool wraps a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List wraps a list of plain JSON-shaped values.
func List(items []any) Value {
	if items == nil {
		items = []any{}
	}
	return Value{kind: KindList, list: items}
}

// Map wraps a map of plain JSON-shaped values.
func Map(entries map[string]any) Value {
	if entries == nil {
		entries = map[string]any{}
	}
	return Value{kind: KindMap, m: entries}
}

// FromAny converts a JSON-decoded value into a Value. Unsupported types
// convert to null.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case float64:
		return Number(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case bool:
		return Bool(t)
	case []any:
		return List(t)
	case map[string]any:
		return Map(t)
	default:
		return Null()
	}
}

// JSONValue converts any JSON-marshalable Go value, typed structs included,
// into a Value by round-tripping through JSON. Marshal failures convert to
// null.
func JSONValue(v any) Value {
	raw, err := json.Marshal(v)
	if err != nil {
		return Null()
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Null()
	}
	return FromAny(decoded)
}

// DecodeStored turns a stored value string back into a Value. Valid JSON
// decodes to its JSON type; anything else is kept as the raw string, which
// is how plain strings are stored.
func DecodeStored(raw string) Value {
	if raw == "" {
		return Null()
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return String(raw)
	}
	return FromAny(decoded)
}

// Kind returns the value's dynamic type.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Text returns the string payload and whether the value is a string.
func (v Value) Text() (string, bool) { return v.str, v.kind == KindString }

// Float returns the numeric payload and whether the value is a number.
func (v Value) Float() (float64, bool) { return v.num, v.kind == KindNumber }

// Bool returns the boolean payload and whether the value is a boolean.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// List returns the list payload and whether the value is a list.
func (v Value) List() ([]any, bool) { return v.list, v.kind == KindList }

// Map returns the map payload and whether the value is a map.
func (v Value) Map() (map[string]any, bool) { return v.m, v.kind == KindMap }

// Any returns the payload as a plain JSON-shaped Go value.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		return v.list
	case KindMap:
		return v.m
	default:
		return nil
	}
}

// Encode renders the value as its storage string. Strings are stored raw,
// not JSON-quoted; everything else is JSON. Null encodes to the empty
// string.
func (v Value) Encode() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList, KindMap:
		raw, err := json.Marshal(v.Any())
		if err != nil {
			return ""
		}
		return string(raw)
	default:
		return ""
	}
}

// MarshalJSON renders the value as its natural JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes any JSON value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*v = FromAny(decoded)
	return nil
}
