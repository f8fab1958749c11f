package rollout

import (
	"errors"
	"fmt"
)

// ErrInvalidFraction is returned when a fraction or weight is outside [0,1].
var ErrInvalidFraction = errors.New("fraction must be between 0 and 1")

// ErrInvalidWeights is returned when weights sum to more than 1.
var ErrInvalidWeights = errors.New("weights must sum to at most 1")

// WeightTolerance absorbs floating-point rounding when summing weights that
// are meant to total exactly 1.
const WeightTolerance = 1e-9

// ValidateFraction checks that f is within [0,1].
func ValidateFraction(f float64) error {
	if f < 0 || f > 1 || f != f {
		return fmt.Errorf("%w: got %v", ErrInvalidFraction, f)
	}
	return nil
}

// ValidateWeights checks every weight is within [0,1] and that they sum to at
// most 1 (within WeightTolerance). An empty list is valid.
func ValidateWeights(weights []float64) error {
	total := 0.0
	for i, w := range weights {
		if err := ValidateFraction(w); err != nil {
			return fmt.Errorf("weight[%d]: %w", i, err)
		}
		total += w
	}
	if total > 1+WeightTolerance {
		return fmt.Errorf("%w: got %v", ErrInvalidWeights, total)
	}
	return nil
}

// InFraction reports whether bucket falls inside the first fraction of the
// population. fraction=0 admits nobody and fraction=1 admits everybody.
func InFraction(bucket, fraction float64) bool {
	return bucket < fraction
}

// Allocate assigns bucket to an index of weights by cumulative weight.
//
// The first entry whose cumulative boundary is >= bucket wins (closed upper
// bound), zero weights never win, and when the weights sum to 1 (within
// WeightTolerance) every bucket is covered even if the running sum rounds
// below 1. Returns -1 when bucket falls past the sum of weights.
//
// Example: weights [0.5, 0.3, 0.2]
//   - bucket in [0, 0.5]   → 0
//   - bucket in (0.5, 0.8] → 1
//   - bucket in (0.8, 1)   → 2
func Allocate(bucket float64, weights []float64) int {
	cumulative := 0.0
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		cumulative += w
		if bucket <= cumulative {
			return i
		}
	}
	if last >= 0 && cumulative >= 1-WeightTolerance {
		return last
	}
	return -1
}
