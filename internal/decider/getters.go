package decider

import (
	"fmt"
	"math"

	"github.com/TimurManjosov/decider/internal/value"
)

// Typed getters read the decided value of a dynamic-config feature. A
// decision without a value yields the zero value and a nil error; a value of
// another type yields ErrValueType.

// GetBool returns the decided value of name as a bool.
func (d *Decider) GetBool(name string, ctx map[string]any) (bool, error) {
	v, ok, err := d.decidedValue(name, ctx)
	if err != nil || !ok {
		return false, err
	}
	b, ok := v.AsBool()
	if !ok {
		return false, typeMismatch(name, "bool", v)
	}
	return b, nil
}

// GetFloat returns the decided value of name as a float64.
func (d *Decider) GetFloat(name string, ctx map[string]any) (float64, error) {
	v, ok, err := d.decidedValue(name, ctx)
	if err != nil || !ok {
		return 0, err
	}
	n, ok := v.AsNumber()
	if !ok {
		return 0, typeMismatch(name, "number", v)
	}
	return n, nil
}

// GetInt returns the decided value of name as an int64. The number must be
// integral.
func (d *Decider) GetInt(name string, ctx map[string]any) (int64, error) {
	n, err := d.GetFloat(name, ctx)
	if err != nil {
		return 0, err
	}
	if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: feature %q value %v is not an integer", ErrValueType, name, n)
	}
	return int64(n), nil
}

// GetString returns the decided value of name as a string.
func (d *Decider) GetString(name string, ctx map[string]any) (string, error) {
	v, ok, err := d.decidedValue(name, ctx)
	if err != nil || !ok {
		return "", err
	}
	s, ok := v.AsString()
	if !ok {
		return "", typeMismatch(name, "string", v)
	}
	return s, nil
}

// GetMap returns the decided value of name as a map of plain Go values.
func (d *Decider) GetMap(name string, ctx map[string]any) (map[string]any, error) {
	v, ok, err := d.decidedValue(name, ctx)
	if err != nil || !ok {
		return nil, err
	}
	if v.Kind() != value.KindMap {
		return nil, typeMismatch(name, "map", v)
	}
	m, _ := v.Interface().(map[string]any)
	return m, nil
}

func (d *Decider) decidedValue(name string, ctx map[string]any) (value.Value, bool, error) {
	dec, err := d.Choose(name, ctx)
	if err != nil {
		return value.Value{}, false, err
	}
	if dec.Value == nil || dec.Value.IsNull() {
		return value.Value{}, false, nil
	}
	return *dec.Value, true, nil
}

func typeMismatch(name, want string, got value.Value) error {
	return fmt.Errorf("%w: feature %q wants %s, got %s", ErrValueType, name, want, got.Kind())
}
