// Package jsontree provides an explicit tagged representation of JSON values
// used for workflow parameters and execution context state.
package jsontree

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies which JSON type a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

var kindName = map[Kind]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindNumber: "number",
	KindString: "string",
	KindArray:  "array",
	KindObject: "object",
}

func (k Kind) String() string {
	return kindName[k]
}

// Value is an immutable-by-convention tagged JSON value. The zero value is
// JSON null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	a    []Value
	o    map[string]Value
}

func Null() Value {
	return Value{kind: KindNull}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func Number(n float64) Value {
	return Value{kind: KindNumber, n: n}
}

func String(s string) Value {
	return Value{kind: KindString, s: s}
}

func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}

	return Value{kind: KindArray, a: items}
}

func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}

	return Value{kind: KindObject, o: fields}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// BoolValue returns the boolean payload. Only meaningful for KindBool.
func (v Value) BoolValue() bool {
	return v.b
}

// NumberValue returns the numeric payload. Only meaningful for KindNumber.
func (v Value) NumberValue() float64 {
	return v.n
}

// StringValue returns the string payload. Only meaningful for KindString.
func (v Value) StringValue() string {
	return v.s
}

// Items returns the element slice of an array value.
func (v Value) Items() []Value {
	return v.a
}

// Fields returns the member map of an object value.
func (v Value) Fields() map[string]Value {
	return v.o
}

// Field looks up a member of an object value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Null(), false
	}

	item, ok := v.o[name]

	return item, ok
}

// FromAny converts a decoded JSON tree (the maps, slices and scalars produced
// by encoding/json) into a tagged Value.
func FromAny(raw any) (Value, error) {
	switch typed := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(typed), nil
	case float64:
		return Number(typed), nil
	case int:
		return Number(float64(typed)), nil
	case int64:
		return Number(float64(typed)), nil
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", typed.String(), err)
		}

		return Number(parsed), nil
	case string:
		return String(typed), nil
	case []any:
		items := make([]Value, 0, len(typed))

		for i, item := range typed {
			converted, err := FromAny(item)
			if err != nil {
				return Null(), fmt.Errorf("array index %d: %w", i, err)
			}

			items = append(items, converted)
		}

		return Array(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(typed))

		for name, item := range typed {
			converted, err := FromAny(item)
			if err != nil {
				return Null(), fmt.Errorf("field %q: %w", name, err)
			}

			fields[name] = converted
		}

		return Object(fields), nil
	default:
		return Null(), fmt.Errorf("unsupported value type %T", raw)
	}
}

// MustFromAny is FromAny for values known to be valid JSON trees, such as
// literals in tests and tool results built from map[string]any.
func MustFromAny(raw any) Value {
	value, err := FromAny(raw)
	if err != nil {
		panic(err)
	}

	return value
}

// ToAny converts the value back to the generic representation used by
// encoding/json.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		items := make([]any, 0, len(v.a))
		for _, item := range v.a {
			items = append(items, item.ToAny())
		}

		return items
	case KindObject:
		fields := make(map[string]any, len(v.o))
		for name, item := range v.o {
			fields[name] = item.ToAny()
		}

		return fields
	default:
		return nil
	}
}

// Clone returns a detached deep copy. Mutating the copy (or trees it was
// built from) never affects the original.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, 0, len(v.a))
		for _, item := range v.a {
			items = append(items, item.Clone())
		}

		return Value{kind: KindArray, a: items}
	case KindObject:
		fields := make(map[string]Value, len(v.o))
		for name, item := range v.o {
			fields[name] = item.Clone()
		}

		return Value{kind: KindObject, o: fields}
	default:
		return v
	}
}

// Equal reports deep structural equality.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindArray:
		if len(v.a) != len(other.a) {
			return false
		}

		for i := range v.a {
			if !v.a[i].Equal(other.a[i]) {
				return false
			}
		}

		return true
	case KindObject:
		if len(v.o) != len(other.o) {
			return false
		}

		for name, item := range v.o {
			otherItem, ok := other.o[name]
			if !ok || !item.Equal(otherItem) {
				return false
			}
		}

		return true
	default:
		return false
	}
}

// Stringify renders the value for embedding inside a larger string. Scalars
// use their plain text form, null renders empty, arrays and objects render
// as compact JSON.
func (v Value) Stringify() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindString:
		return v.s
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}

		return string(data)
	}
}

// MarshalJSON encodes the value as plain JSON. Object keys are sorted so
// identical trees always produce identical bytes.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		buf := []byte{'['}

		for i, item := range v.a {
			if i > 0 {
				buf = append(buf, ',')
			}

			encoded, err := json.Marshal(item)
			if err != nil {
				return nil, err
			}

			buf = append(buf, encoded...)
		}

		return append(buf, ']'), nil
	case KindObject:
		names := make([]string, 0, len(v.o))
		for name := range v.o {
			names = append(names, name)
		}

		sort.Strings(names)

		buf := []byte{'{'}

		for i, name := range names {
			if i > 0 {
				buf = append(buf, ',')
			}

			encodedName, err := json.Marshal(name)
			if err != nil {
				return nil, err
			}

			encodedItem, err := json.Marshal(v.o[name])
			if err != nil {
				return nil, err
			}

			buf = append(buf, encodedName...)
			buf = append(buf, ':')
			buf = append(buf, encodedItem...)
		}

		return append(buf, '}'), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON decodes arbitrary JSON into a tagged value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	converted, err := FromAny(raw)
	if err != nil {
		return err
	}

	*v = converted

	return nil
}
