package decider

import "github.com/TimurManjosov/decider/internal/value"

// Decision is the outcome of one Choose call. A nil Variant and nil Value
// mean the feature did not fire for this context; Events tells why.
type Decision struct {
	Variant        *string      `json:"variant"`
	Value          *value.Value `json:"value"`
	FeatureID      int64        `json:"feature_id"`
	FeatureName    string       `json:"feature_name"`
	FeatureVersion int64        `json:"feature_version"`
	Events         []string     `json:"events"`
}

// VariantName returns the variant or "" when none was assigned.
func (d Decision) VariantName() string {
	if d.Variant == nil {
		return ""
	}
	return *d.Variant
}

// Fired reports whether the decision carries a variant or a value.
func (d Decision) Fired() bool {
	return d.Variant != nil || d.Value != nil
}

// Outcome pairs a feature with its decision or error, as returned by
// ChooseAll.
type Outcome struct {
	Feature  string
	Decision Decision
	Err      error
}
