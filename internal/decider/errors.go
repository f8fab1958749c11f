package decider

import (
	"errors"
	"fmt"

	"github.com/TimurManjosov/decider/internal/snapshot"
	"github.com/TimurManjosov/decider/internal/store"
	"github.com/TimurManjosov/decider/internal/value"
)

var (
	// ErrFeatureNotFound is returned by Choose for unknown feature names.
	// Callers usually treat it as "feature off".
	ErrFeatureNotFound = snapshot.ErrFeatureNotFound

	// ErrValueType is returned by the typed getters when the decided value
	// has a different type.
	ErrValueType = errors.New("decided value has a different type")
)

// ConfigValidationError reports configuration found inconsistent while
// evaluating a feature. It affects only that call.
type ConfigValidationError struct {
	Feature string
	Stage   store.DecisionMaker
	Err     error
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("feature %q stage %s: invalid configuration: %v", e.Feature, e.Stage, e.Err)
}

func (e *ConfigValidationError) Unwrap() error { return e.Err }

// InitError is returned by New when the decider cannot start.
type InitError struct {
	Err error
}

func (e *InitError) Error() string { return "decider init: " + e.Err.Error() }

func (e *InitError) Unwrap() error { return e.Err }

// ErrorType classifies err for metrics and API responses.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	var cve *ConfigValidationError
	var ie *InitError
	switch {
	case errors.Is(err, ErrFeatureNotFound):
		return "feature_not_found"
	case errors.As(err, &cve):
		return "config_validation"
	case errors.Is(err, value.ErrUnsupportedType):
		return "invalid_context"
	case errors.Is(err, ErrValueType):
		return "value_type"
	case errors.As(err, &ie):
		return "init"
	}
	if kind, ok := store.KindOf(err); ok {
		return kind.String()
	}
	return "internal"
}
