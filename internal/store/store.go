package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/TimurManjosov/decider/internal/rules"
)

// Source yields complete feature documents. Implementations must be
// thread-safe: Load may be called concurrently with itself during reloads.
type Source interface {
	// Load reads and decodes the whole document. Every call returns a fresh
	// Document the caller may mutate.
	Load(ctx context.Context) (*Document, error)

	// String describes the source for logs, e.g. "file:./features.yaml".
	String() string

	// Close releases any resources held by the source.
	// After Close is called, the source should not be used.
	Close() error
}

// DecisionMaker names one stage of the decision chain.
type DecisionMaker string

// Stages in their default order.
const (
	StageDarkMode               DecisionMaker = "darkmode"
	StageOverrides              DecisionMaker = "overrides"
	StageTargeting              DecisionMaker = "targeting"
	StageHoldout                DecisionMaker = "holdout"
	StageMutexGroup             DecisionMaker = "mutex_group"
	StageFractionalAvailability DecisionMaker = "fractional_availability"
	StageValue                  DecisionMaker = "value"
)

// DefaultDecisionMakers is the stage order used when none is configured.
const DefaultDecisionMakers = "darkmode overrides targeting holdout mutex_group fractional_availability value"

// Valid reports whether d is a known stage.
func (d DecisionMaker) Valid() bool {
	switch d {
	case StageDarkMode, StageOverrides, StageTargeting, StageHoldout,
		StageMutexGroup, StageFractionalAvailability, StageValue:
		return true
	}
	return false
}

// ParseDecisionMakers parses a space (or comma) separated stage list. An empty
// list selects DefaultDecisionMakers. Unknown and repeated stages are errors.
func ParseDecisionMakers(s string) ([]DecisionMaker, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' || r == '\n' })
	if len(fields) == 0 {
		fields = strings.Fields(DefaultDecisionMakers)
	}
	out := make([]DecisionMaker, 0, len(fields))
	seen := make(map[DecisionMaker]bool, len(fields))
	for _, f := range fields {
		d := DecisionMaker(strings.ToLower(f))
		if !d.Valid() {
			return nil, fmt.Errorf("unknown decision maker %q", f)
		}
		if seen[d] {
			return nil, fmt.Errorf("decision maker %q listed twice", f)
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}

// Feature is one named, versioned unit of configuration.
type Feature struct {
	ID                     int64           `json:"id" yaml:"id"`
	Name                   string          `json:"name" yaml:"name"`
	Version                int64           `json:"version" yaml:"version"`
	EnabledDecisionMakers  []DecisionMaker `json:"enabled_decisionmakers,omitempty" yaml:"enabled_decisionmakers,omitempty"`
	BucketVal              string          `json:"bucket_val,omitempty" yaml:"bucket_val,omitempty"`
	Overrides              []Override      `json:"overrides,omitempty" yaml:"overrides,omitempty"`
	Targeting              []rules.Rule    `json:"targeting,omitempty" yaml:"targeting,omitempty"`
	Holdout                *Holdout        `json:"holdout,omitempty" yaml:"holdout,omitempty"`
	FractionalAvailability *float64        `json:"fractional_availability,omitempty" yaml:"fractional_availability,omitempty"`
	Value                  any             `json:"value,omitempty" yaml:"value,omitempty"`
	Variants               []Variant       `json:"variants,omitempty" yaml:"variants,omitempty"`

	// MutexGroup is resolved from Document.MutexGroups by Prepare.
	MutexGroup *MutexGroup `json:"-" yaml:"-"`
}

// DefaultBucketVal is the context field used as bucketing key when a feature
// does not name one.
const DefaultBucketVal = "user_id"

// Override pins an outcome for contexts whose Field equals one of Values,
// e.g. QA accounts listed by user id.
type Override struct {
	Field   string `json:"field" yaml:"field"`
	Values  []any  `json:"values" yaml:"values"`
	Variant string `json:"variant,omitempty" yaml:"variant,omitempty"`
	Value   any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Holdout excludes a stable population fraction from a feature.
type Holdout struct {
	ID       string  `json:"id" yaml:"id"`
	Fraction float64 `json:"fraction" yaml:"fraction"`
}

// Variant represents one arm of an experiment.
type Variant struct {
	Name   string  `json:"name" yaml:"name"`
	Weight float64 `json:"weight" yaml:"weight"` // Fraction of the population (0-1)
	Value  any     `json:"value,omitempty" yaml:"value,omitempty"`
}

// MutexGroup lists features of which at most one is live per bucketing key.
type MutexGroup struct {
	ID      string        `json:"id" yaml:"id"`
	Members []MutexMember `json:"members" yaml:"members"`
}

// MutexMember assigns a fraction of the group population to one feature.
type MutexMember struct {
	Feature  string  `json:"feature" yaml:"feature"`
	Fraction float64 `json:"fraction" yaml:"fraction"`
}

// Weights returns member fractions in declaration order.
func (g *MutexGroup) Weights() []float64 {
	w := make([]float64, len(g.Members))
	for i, m := range g.Members {
		w[i] = m.Fraction
	}
	return w
}

// Document is a complete configuration as read from a Source.
type Document struct {
	// HashVersion selects the bucketing hash; 0 keeps the loader's default.
	HashVersion int          `json:"hash_version,omitempty" yaml:"hash_version,omitempty"`
	Features    []Feature    `json:"features" yaml:"features"`
	MutexGroups []MutexGroup `json:"mutex_groups,omitempty" yaml:"mutex_groups,omitempty"`
}
