// Package validation provides field-level validation rules for feature
// definitions and request parameters.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/TimurManjosov/decider/internal/rollout"
)

const (
	// MaxNameLength is the maximum length for feature names
	MaxNameLength = 128
	// MaxVariantNameLength is the maximum length for variant names
	MaxVariantNameLength = 64
	// MaxFieldPathLength is the maximum length for context field paths
	MaxFieldPathLength = 256
	// MaxBatchSize is the maximum number of features in one batch request
	MaxBatchSize = 500
)

// namePattern matches alphanumeric characters, underscores, periods and hyphens
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ValidationResult holds the result of validation
type ValidationResult struct {
	Valid  bool
	Errors map[string]string
}

// NewValidationResult creates a new validation result
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:  true,
		Errors: make(map[string]string),
	}
}

// AddError adds a field error and marks the result as invalid
func (v *ValidationResult) AddError(field, message string) {
	v.Valid = false
	v.Errors[field] = message
}

// Merge combines another validation result into this one
func (v *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	for field, message := range other.Errors {
		v.AddError(field, message)
	}
}

// Error renders the errors sorted by field, e.g. "name: Name is required".
func (v *ValidationResult) Error() string {
	fields := make([]string, 0, len(v.Errors))
	for f := range v.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v.Errors[f])
	}
	return strings.Join(parts, "; ")
}

// FeatureValidationParams contains the parameters for validating a feature
type FeatureValidationParams struct {
	Name                   string
	Version                int64
	BucketField            string
	HoldoutID              string
	HoldoutFraction        *float64
	FractionalAvailability *float64
	Variants               []VariantValidationParams
}

// VariantValidationParams contains the parameters for validating a variant
type VariantValidationParams struct {
	Name   string
	Weight float64
}

// ValidateFeature validates all feature fields and returns a validation result
func ValidateFeature(params FeatureValidationParams) *ValidationResult {
	result := NewValidationResult()

	result.Merge(ValidateName(params.Name))
	result.Merge(ValidateVersion(params.Version))

	if params.BucketField != "" {
		result.Merge(ValidateFieldPath("bucket_val", params.BucketField))
	}

	if params.HoldoutFraction != nil {
		if strings.TrimSpace(params.HoldoutID) == "" {
			result.AddError("holdout.id", "Holdout id is required")
		}
		result.Merge(ValidateFraction("holdout.fraction", *params.HoldoutFraction))
	}

	if params.FractionalAvailability != nil {
		result.Merge(ValidateFraction("fractional_availability", *params.FractionalAvailability))
	}

	if len(params.Variants) > 0 {
		result.Merge(ValidateVariants(params.Variants))
	}

	return result
}

// ValidateName validates a feature name
func ValidateName(name string) *ValidationResult {
	result := NewValidationResult()

	if strings.TrimSpace(name) == "" {
		result.AddError("name", "Name is required")
		return result
	}

	if utf8.RuneCountInString(name) > MaxNameLength {
		result.AddError("name", fmt.Sprintf("Name must not exceed %d characters", MaxNameLength))
		return result
	}

	if !namePattern.MatchString(name) {
		result.AddError("name", "Name must contain only alphanumeric characters, underscores, periods, and hyphens")
		return result
	}

	return result
}

// ValidateVersion validates a feature version
func ValidateVersion(version int64) *ValidationResult {
	result := NewValidationResult()

	if version < 1 {
		result.AddError("version", "Version must be at least 1")
	}

	return result
}

// ValidateFieldPath validates a dotted context field path such as "user.id"
func ValidateFieldPath(field, path string) *ValidationResult {
	result := NewValidationResult()

	if utf8.RuneCountInString(path) > MaxFieldPathLength {
		result.AddError(field, fmt.Sprintf("Field path must not exceed %d characters", MaxFieldPathLength))
		return result
	}

	for _, seg := range strings.Split(path, ".") {
		if strings.TrimSpace(seg) == "" {
			result.AddError(field, "Field path must not contain empty segments")
			return result
		}
	}

	return result
}

// ValidateFraction validates a fraction in [0, 1]
func ValidateFraction(field string, f float64) *ValidationResult {
	result := NewValidationResult()

	if rollout.ValidateFraction(f) != nil {
		result.AddError(field, "Fraction must be between 0 and 1")
	}

	return result
}

// ValidateVariants validates a list of variants
func ValidateVariants(variants []VariantValidationParams) *ValidationResult {
	result := NewValidationResult()

	if len(variants) == 0 {
		return result
	}

	seenNames := make(map[string]bool)
	weights := make([]float64, 0, len(variants))

	for _, v := range variants {
		if strings.TrimSpace(v.Name) == "" {
			result.AddError("variants", "Variant name cannot be empty")
			return result
		}

		if utf8.RuneCountInString(v.Name) > MaxVariantNameLength {
			result.AddError("variants", fmt.Sprintf("Variant name must not exceed %d characters", MaxVariantNameLength))
			return result
		}

		if seenNames[v.Name] {
			result.AddError("variants", "Duplicate variant name: "+v.Name)
			return result
		}
		seenNames[v.Name] = true

		if math.IsNaN(v.Weight) || v.Weight < 0 || v.Weight > 1 {
			result.AddError("variants", "Variant weight must be between 0 and 1")
			return result
		}
		weights = append(weights, v.Weight)
	}

	if rollout.ValidateWeights(weights) != nil {
		result.AddError("variants", "Variant weights must sum to at most 1")
	}

	return result
}

// ValidateBatch validates the feature names of a batch decision request
func ValidateBatch(names []string) *ValidationResult {
	result := NewValidationResult()

	if len(names) > MaxBatchSize {
		result.AddError("features", fmt.Sprintf("At most %d features per request", MaxBatchSize))
		return result
	}

	for _, n := range names {
		if r := ValidateName(n); !r.Valid {
			result.AddError("features", "Invalid feature name: "+n)
			return result
		}
	}

	return result
}
