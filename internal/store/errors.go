package store

import (
	"errors"
	"fmt"
)

// ErrorKind classifies configuration failures.
type ErrorKind int

const (
	// MalformedEntry means one definition in the document is invalid.
	MalformedEntry ErrorKind = iota + 1
	// IOError means the source could not be read.
	IOError
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedEntry:
		return "malformed_entry"
	case IOError:
		return "io_error"
	default:
		return "unknown"
	}
}

// ConfigError is returned by Source.Load and Prepare. A failed load never
// replaces the active configuration.
type ConfigError struct {
	Kind    ErrorKind
	Source  string
	Feature string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := "config " + e.Kind.String()
	if e.Source != "" {
		msg += " in " + e.Source
	}
	if e.Feature != "" {
		msg += fmt.Sprintf(" (feature %q)", e.Feature)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind of err if it wraps a *ConfigError.
func KindOf(err error) (ErrorKind, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

func malformed(feature string, err error) *ConfigError {
	return &ConfigError{Kind: MalformedEntry, Feature: feature, Err: err}
}

func malformedf(feature, format string, args ...any) *ConfigError {
	return malformed(feature, fmt.Errorf(format, args...))
}

func ioError(source string, err error) *ConfigError {
	return &ConfigError{Kind: IOError, Source: source, Err: err}
}
