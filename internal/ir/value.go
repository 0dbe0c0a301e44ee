package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Kind discriminates the Value variants.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindBool
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a sealed interface over the field values a fact may carry.
// Only Null, String, Int, Bool and List implement it.
// There is deliberately no float variant: comparisons must be exact.
type Value interface {
	Kind() Kind
	irValue()
}

// Null is the absent value. Facts may carry it explicitly.
type Null struct{}

func (Null) Kind() Kind { return KindNull }
func (Null) irValue()   {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// String is a string value.
type String string

func (String) Kind() Kind { return KindString }
func (String) irValue()   {}

// Int is a 64-bit integer value.
type Int int64

func (Int) Kind() Kind { return KindInt }
func (Int) irValue()   {}

// Bool is a boolean value.
type Bool bool

func (Bool) Kind() Kind { return KindBool }
func (Bool) irValue()   {}

// List is an ordered list of values.
type List []Value

func (List) Kind() Kind { return KindList }
func (List) irValue()   {}

// NFC returns s in Unicode normalization form C. Equal, Compare and the
// string operators work on this form, as does the canonical encoding, so
// canonically equivalent spellings are one value.
func (s String) NFC() string {
	if norm.NFC.IsNormalString(string(s)) {
		return string(s)
	}
	return norm.NFC.String(string(s))
}

// Equal reports whether two values are the same variant with the same content.
// A nil Value equals Null.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Null:
		return true
	case String:
		bv := b.(String)
		return av == bv || av.NFC() == bv.NFC()
	case Int:
		return av == b.(Int)
	case Bool:
		return av == b.(Bool)
	case List:
		bv := b.(List)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders two values of the same ordered kind (String, Int or Bool).
// The second result is false when the values are not comparable.
func Compare(a, b Value) (int, bool) {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		return strings.Compare(av.NFC(), bv.NFC()), true
	case Int:
		bv, ok := b.(Int)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case Bool:
		bv, ok := b.(Bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !bool(av):
			return -1, true
		}
		return 1, true
	default:
		return 0, false
	}
}

// FromAny converts a decoded Go value (YAML, JSON or CUE) into a Value.
// Integral floats are accepted because JSON decoders produce them; fractional
// floats are rejected.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || math.IsNaN(val) {
			return nil, fmt.Errorf("fractional numbers are not supported: %v", val)
		}
		return Int(int64(val)), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("fractional numbers are not supported: %s", val)
		}
		return Int(n), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = ev
		}
		return list, nil
	case []string:
		list := make(List, len(val))
		for i, s := range val {
			list[i] = String(s)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// ToAny converts a Value to a plain Go value for JSON and YAML output.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}

// ParseValue interprets a command-line token: integers and booleans are
// recognized, anything else is a string.
func ParseValue(s string) Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(n)
	}
	switch s {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	return String(s)
}

// Format renders a value for human-readable output.
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Bool:
		return strconv.FormatBool(bool(val))
	case List:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = Format(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Fields maps field names to values.
// Use SortedKeys for deterministic iteration.
type Fields map[string]Value

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (f Fields) SortedKeys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// Clone returns a shallow copy. Values are immutable, so this is a full copy
// for every variant except List, whose backing array is shared read-only.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// MarshalJSON emits fields with sorted keys.
func (f Fields) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(f)
}

// UnmarshalJSON decodes an object of scalar or list values.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := FieldsFromMap(raw)
	if err != nil {
		return err
	}
	*f = out
	return nil
}

// FieldsFromMap converts a decoded map into Fields.
func FieldsFromMap(m map[string]any) (Fields, error) {
	out := make(Fields, len(m))
	for k, raw := range m {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// compareKeysRFC8785 compares strings by UTF-16 code units, as RFC 8785
// requires. Go's native string comparison orders by UTF-8 bytes, which
// differs for characters outside the BMP.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
