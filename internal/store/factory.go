package store

import (
	"context"
	"fmt"
	"strings"

	mydb "github.com/TimurManjosov/decider/internal/db"
)

// NewSource creates a source from a location string.
// Supported forms: "memory", "postgres://..." / "postgresql://...",
// "file://path" and plain file paths.
func NewSource(ctx context.Context, location string) (Source, error) {
	location = strings.TrimSpace(location)
	switch {
	case location == "":
		return nil, fmt.Errorf("config source is required")
	case location == "memory":
		return NewMemorySource(nil), nil
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		pool, err := mydb.NewPool(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		return NewPostgresSource(pool), nil
	case strings.HasPrefix(location, "file://"):
		return NewFileSource(strings.TrimPrefix(location, "file://")), nil
	case strings.Contains(location, "://"):
		return nil, fmt.Errorf("unsupported config source: %s", location)
	default:
		return NewFileSource(location), nil
	}
}
