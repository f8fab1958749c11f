// Package value implements the evaluation context model: a closed, immutable,
// JSON-like value used for caller-supplied contexts and static feature values.
//
// A Value is one of Null, Bool, Number, String, Array or Map. The zero Value is
// Null. Values are built fresh from caller input (see FromAny) and are never
// mutated afterwards, so they are safe to share between goroutines.
package value

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

var (
	// ErrNotFound is returned by GetPath when a segment is absent or the
	// current node is not a Map.
	ErrNotFound = errors.New("value: path not found")

	// ErrUnsupportedType is returned by FromAny for Go values that have no
	// JSON-like representation.
	ErrUnsupportedType = errors.New("value: unsupported type")
)

// Value is an immutable JSON-like value.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array holding a copy of items.
func Array(items ...Value) Value {
	arr := make([]Value, len(items))
	copy(arr, items)
	return Value{kind: KindArray, arr: arr}
}

// Map returns a map holding a copy of fields.
func Map(fields map[string]Value) Value {
	m := make(map[string]Value, len(fields))
	for k, v := range fields {
		m[k] = v
	}
	return Value{kind: KindMap, m: m}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Len returns the number of elements of an Array or fields of a Map, and 0
// for every other kind.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindMap:
		return len(v.m)
	default:
		return 0
	}
}

// Items returns a copy of the elements of an Array, or nil.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	out := make([]Value, len(v.arr))
	copy(out, v.arr)
	return out
}

// Index returns element i of an Array.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Value{}, false
	}
	return v.arr[i], true
}

// Keys returns the sorted field names of a Map, or nil.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Field returns the named field of a Map.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	f, ok := v.m[name]
	return f, ok
}

// GetPath walks Map fields following path. Arrays are leaves: indexing into
// them by name is not supported. An empty path returns v itself.
func (v Value) GetPath(path []string) (Value, error) {
	cur := v
	for _, seg := range path {
		if cur.kind != KindMap {
			return Value{}, fmt.Errorf("%w: %q", ErrNotFound, strings.Join(path, "."))
		}
		next, ok := cur.m[seg]
		if !ok {
			return Value{}, fmt.Errorf("%w: %q", ErrNotFound, strings.Join(path, "."))
		}
		cur = next
	}
	return cur, nil
}

// SplitPath splits a dotted field path such as "user.country".
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Interface converts v into plain Go values: nil, bool, float64, string,
// []any and map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// String renders v as compact JSON. Used for logs and error messages.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "<" + v.kind.String() + ">"
	}
	return string(b)
}

// Equal reports structural equality. Numbers compare by value, Maps ignore
// insertion order.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two Numbers. The second result is false when either side is
// not a Number; no other coercion is performed.
func Compare(a, b Value) (int, bool) {
	if a.kind != KindNumber || b.kind != KindNumber {
		return 0, false
	}
	switch {
	case a.n < b.n:
		return -1, true
	case a.n > b.n:
		return 1, true
	default:
		return 0, true
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
