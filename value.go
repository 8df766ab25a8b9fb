package docrender

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"

	"github.com/alnah/go-docrender/internal/yamlutil"
)

// ErrInvalidData is returned when a data payload is not a mapping of values.
var ErrInvalidData = errors.New("invalid render data")

// Value is a dynamic data payload passed to the merge step.
// The set of implementations is closed: String, Number, Bool, Null, List, Map.
type Value interface {
	// Native returns the plain Go form used by the template engine.
	Native() any
	isValue()
}

type (
	String string
	Number float64
	Bool   bool
	Null   struct{}
	List   []Value
)

// Map is a mapping with insertion-ordered keys.
type Map struct {
	keys   []string
	values map[string]Value
}

func (String) isValue() {}
func (Number) isValue() {}
func (Bool) isValue()   {}
func (Null) isValue()   {}
func (List) isValue()   {}
func (*Map) isValue()   {}

func (s String) Native() any { return string(s) }

// Native returns an int64 for integral values so templates print "3" not "3e+00".
// Templates comparing a Number against a literal of the other kind must go
// through the float helper: {{if gt (float .price) 2.5}}.
func (n Number) Native() any {
	f := float64(n)
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

func (b Bool) Native() any { return bool(b) }
func (Null) Native() any   { return nil }

func (l List) Native() any {
	return toNative(l, nil)
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]Value)}
}

// Set stores v under key, keeping the first insertion position of key.
func (m *Map) Set(key string, v Value) {
	if m.values == nil {
		m.values = make(map[string]Value)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	if v == nil {
		v = Null{}
	}
	m.values[key] = v
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Keys returns keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Native returns a map[string]any. Nil maps become empty maps.
func (m *Map) Native() any {
	return toNative(m, nil)
}

// keyOrder records the key order of native maps built from a Map, keyed by
// map identity. Template range over a map is key-sorted; the items helper
// uses this to walk entries in insertion order instead.
type keyOrder map[uintptr][]string

func (o keyOrder) keys(m map[string]any) ([]string, bool) {
	if o == nil {
		return nil, false
	}
	keys, ok := o[reflect.ValueOf(m).Pointer()]
	return keys, ok
}

// toNative converts v and, when order is non-nil, records the key order of
// every mapping it produces.
func toNative(v Value, order keyOrder) any {
	switch x := v.(type) {
	case List:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = toNative(item, order)
		}
		return out
	case *Map:
		out := make(map[string]any, x.Len())
		if x == nil {
			return out
		}
		for _, k := range x.keys {
			out[k] = toNative(x.values[k], order)
		}
		if order != nil {
			order[reflect.ValueOf(out).Pointer()] = x.Keys()
		}
		return out
	case nil:
		return nil
	default:
		return v.Native()
	}
}

// ParseData decodes a JSON or YAML document whose top level is a mapping.
// Empty input yields an empty Map.
func ParseData(data []byte) (*Map, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewMap(), nil
	}
	if isJSONObject(data) {
		return parseJSONData(data)
	}

	raw, err := yamlutil.UnmarshalOrdered(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if raw == nil {
		return NewMap(), nil
	}

	v, err := FromNative(raw)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*Map)
	if !ok {
		return nil, fmt.Errorf("%w: top level must be a mapping, got %T", ErrInvalidData, raw)
	}
	return m, nil
}

// isJSONObject reports whether data is a well-formed JSON object. Anything
// else, including YAML flow mappings, goes through the YAML decoder.
func isJSONObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}

// parseJSONData walks the token stream so object keys keep their order and
// every JSON number, exponent forms included, becomes a Number.
func parseJSONData(data []byte) (*Map, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeJSONValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrInvalidData)
	}
	m, ok := v.(*Map)
	if !ok {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrInvalidData)
	}
	return m, nil
}

func decodeJSONValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	switch x := tok.(type) {
	case json.Delim:
		switch x {
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("%w: object key %v is not a string", ErrInvalidData, keyTok)
				}
				v, err := decodeJSONValue(dec)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
				m.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
			}
			return m, nil
		case '[':
			out := List{}
			for dec.More() {
				v, err := decodeJSONValue(dec)
				if err != nil {
					return nil, fmt.Errorf("[%d]: %w", len(out), err)
				}
				out = append(out, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
			}
			return out, nil
		default:
			return nil, fmt.Errorf("%w: unexpected delimiter %q", ErrInvalidData, rune(x))
		}
	case json.Number:
		f, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: number %s: %v", ErrInvalidData, x, err)
		}
		return Number(f), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case nil:
		return Null{}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected token %v", ErrInvalidData, tok)
	}
}

// FromNative converts decoder output into a Value.
// Ordered maps (yamlutil.MapSlice) keep their key order; plain Go maps
// are accepted too but their order is unspecified.
func FromNative(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Number(x), nil
	case int64:
		return Number(x), nil
	case uint64:
		return Number(x), nil
	case float64:
		return Number(x), nil
	case []any:
		out := make(List, 0, len(x))
		for i, item := range x {
			v, err := FromNative(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, v)
		}
		return out, nil
	case yamlutil.MapSlice:
		m := NewMap()
		for _, item := range x {
			key, err := mapKey(item.Key)
			if err != nil {
				return nil, err
			}
			v, err := FromNative(item.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			m.Set(key, v)
		}
		return m, nil
	case map[string]any:
		m := NewMap()
		for k, item := range x {
			v, err := FromNative(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			m.Set(k, v)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unsupported value of type %T", ErrInvalidData, raw)
	}
}

// mapKey renders scalar YAML keys as strings so "1: x" stays addressable.
func mapKey(k any) (string, error) {
	switch x := k.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: unsupported key of type %T", ErrInvalidData, k)
	}
}
