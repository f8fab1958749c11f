package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// FromAny builds a Value from caller-supplied Go data. It accepts the shapes
// produced by encoding/json and gopkg.in/yaml.v3 decoding as well as common
// programmatic types. Non-finite numbers and types without a JSON-like
// representation fail with ErrUnsupportedType.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Null(), nil
		}
		return *t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return number(t)
	case float32:
		return number(float64(t))
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: json number %q", ErrUnsupportedType, t.String())
		}
		return number(f)
	case []any:
		arr := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			arr[i] = v
		}
		return Value{kind: KindArray, arr: arr}, nil
	case []string:
		arr := make([]Value, len(t))
		for i, item := range t {
			arr[i] = String(item)
		}
		return Value{kind: KindArray, arr: arr}, nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Value{kind: KindMap, m: m}, nil
	case map[string]string:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = String(item)
		}
		return Value{kind: KindMap, m: m}, nil
	}
	return fromReflect(reflect.ValueOf(x))
}

// MustFromAny is FromAny for literals known to be valid. It panics on error.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

func number(f float64) (Value, error) {
	if !finite(f) {
		return Value{}, fmt.Errorf("%w: non-finite number %v", ErrUnsupportedType, f)
	}
	return Number(f), nil
}

// fromReflect covers typed slices and string-keyed maps ([]int,
// map[string]float64, ...) that the type switch does not list.
func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		arr := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Value{}, err
			}
			arr[i] = v
		}
		return Value{kind: KindArray, arr: arr}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("%w: map key %s", ErrUnsupportedType, rv.Type().Key())
		}
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			v, err := FromAny(iter.Value().Interface())
			if err != nil {
				return Value{}, err
			}
			m[iter.Key().String()] = v
		}
		return Value{kind: KindMap, m: m}, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return FromAny(rv.Elem().Interface())
	case reflect.Invalid:
		return Null(), nil
	}
	return Value{}, fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())
}

// MarshalJSON encodes v in its boundary form. Map keys are emitted sorted.
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
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.m)
	}
	return nil, fmt.Errorf("%w: kind %s", ErrUnsupportedType, v.kind)
}

// UnmarshalJSON decodes any JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
