package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/TimurManjosov/decider/internal/rollout"
	"github.com/TimurManjosov/decider/internal/rules"
	"github.com/TimurManjosov/decider/internal/validation"
	"github.com/TimurManjosov/decider/internal/value"
)

// Prepare validates doc, applies defaults and resolves mutex groups onto their
// member features. previous holds the fingerprints of the active generation:
// a known feature may not lower its version, and may not change its
// definition without raising it. The first failure is returned as a
// *ConfigError of kind MalformedEntry.
func Prepare(doc *Document, previous map[string]Fingerprint) error {
	if doc == nil {
		return malformedf("", "document is empty")
	}
	if _, err := rollout.ParseHashVersion(doc.HashVersion); err != nil {
		return malformedf("", "hash_version %d: %w", doc.HashVersion, err)
	}

	index := make(map[string]int, len(doc.Features))
	for i := range doc.Features {
		f := &doc.Features[i]
		if _, dup := index[f.Name]; dup {
			return malformedf(f.Name, "duplicate feature name")
		}
		if err := prepareFeature(f); err != nil {
			return err
		}
		if prev, ok := previous[f.Name]; ok {
			if err := checkVersion(f, prev); err != nil {
				return err
			}
		}
		index[f.Name] = i
	}

	seenGroups := make(map[string]bool, len(doc.MutexGroups))
	for gi := range doc.MutexGroups {
		g := &doc.MutexGroups[gi]
		if err := validateMutexGroup(g, seenGroups, index); err != nil {
			return err
		}
		for _, m := range g.Members {
			f := &doc.Features[index[m.Feature]]
			if f.MutexGroup != nil {
				return malformedf(f.Name, "member of mutex groups %q and %q", f.MutexGroup.ID, g.ID)
			}
			f.MutexGroup = g
		}
	}
	return nil
}

func checkVersion(f *Feature, prev Fingerprint) error {
	if f.Version < prev.Version {
		return malformedf(f.Name, "version %d is lower than active version %d", f.Version, prev.Version)
	}
	if f.Version > prev.Version {
		return nil
	}
	digest, err := f.Digest()
	if err != nil {
		return malformed(f.Name, err)
	}
	if digest != prev.Digest {
		return malformedf(f.Name, "definition changed but version %d was not raised", f.Version)
	}
	return nil
}

func prepareFeature(f *Feature) error {
	var holdoutID string
	var holdoutFraction *float64
	if f.Holdout != nil {
		holdoutID = f.Holdout.ID
		holdoutFraction = &f.Holdout.Fraction
	}
	variants := make([]validation.VariantValidationParams, len(f.Variants))
	for i, v := range f.Variants {
		variants[i] = validation.VariantValidationParams{Name: v.Name, Weight: v.Weight}
	}
	if res := validation.ValidateFeature(validation.FeatureValidationParams{
		Name:                   f.Name,
		Version:                f.Version,
		BucketField:            f.BucketVal,
		HoldoutID:              holdoutID,
		HoldoutFraction:        holdoutFraction,
		FractionalAvailability: f.FractionalAvailability,
		Variants:               variants,
	}); !res.Valid {
		return malformedf(f.Name, "%s", res.Error())
	}
	if f.ID < 0 {
		return malformedf(f.Name, "id must not be negative")
	}
	if f.BucketVal == "" {
		f.BucketVal = DefaultBucketVal
	}

	seen := make(map[DecisionMaker]bool, len(f.EnabledDecisionMakers))
	for i, d := range f.EnabledDecisionMakers {
		d = DecisionMaker(strings.ToLower(string(d)))
		if !d.Valid() {
			return malformedf(f.Name, "unknown decision maker %q", d)
		}
		if seen[d] {
			return malformedf(f.Name, "decision maker %q listed twice", d)
		}
		seen[d] = true
		f.EnabledDecisionMakers[i] = d
	}

	if _, err := value.FromAny(f.Value); err != nil {
		return malformedf(f.Name, "value: %w", err)
	}
	for _, v := range f.Variants {
		if _, err := value.FromAny(v.Value); err != nil {
			return malformedf(f.Name, "variant %q value: %w", v.Name, err)
		}
	}

	for i, o := range f.Overrides {
		if err := validateOverride(f, o); err != nil {
			return malformedf(f.Name, "overrides[%d]: %w", i, err)
		}
	}

	ruleIDs := make(map[string]bool, len(f.Targeting))
	for _, r := range f.Targeting {
		if err := rules.ValidateRule(r); err != nil {
			return malformed(f.Name, err)
		}
		if ruleIDs[r.ID] {
			return malformedf(f.Name, "duplicate targeting rule id %q", r.ID)
		}
		ruleIDs[r.ID] = true
		if r.Variant != "" && !f.HasVariant(r.Variant) {
			return malformedf(f.Name, "rule %q references unknown variant %q", r.ID, r.Variant)
		}
		if _, err := value.FromAny(r.Value); err != nil {
			return malformedf(f.Name, "rule %q value: %w", r.ID, err)
		}
	}
	return nil
}

func validateOverride(f *Feature, o Override) error {
	if res := validation.ValidateFieldPath("field", o.Field); !res.Valid || o.Field == "" {
		return fmt.Errorf("field %q is not a valid path", o.Field)
	}
	if len(o.Values) == 0 {
		return fmt.Errorf("values must not be empty")
	}
	for _, v := range o.Values {
		if _, err := value.FromAny(v); err != nil {
			return err
		}
	}
	if o.Variant == "" && o.Value == nil {
		return fmt.Errorf("must set a variant or a value")
	}
	if o.Variant != "" && !f.HasVariant(o.Variant) {
		return fmt.Errorf("unknown variant %q", o.Variant)
	}
	_, err := value.FromAny(o.Value)
	return err
}

func validateMutexGroup(g *MutexGroup, seen map[string]bool, features map[string]int) error {
	if strings.TrimSpace(g.ID) == "" {
		return malformedf("", "mutex group id must not be empty")
	}
	if seen[g.ID] {
		return malformedf("", "duplicate mutex group %q", g.ID)
	}
	seen[g.ID] = true
	if len(g.Members) == 0 {
		return malformedf("", "mutex group %q has no members", g.ID)
	}
	members := make(map[string]bool, len(g.Members))
	for _, m := range g.Members {
		if _, ok := features[m.Feature]; !ok {
			return malformedf(m.Feature, "mutex group %q references unknown feature", g.ID)
		}
		if members[m.Feature] {
			return malformedf(m.Feature, "listed twice in mutex group %q", g.ID)
		}
		members[m.Feature] = true
	}
	if err := rollout.ValidateWeights(g.Weights()); err != nil {
		return malformedf("", "mutex group %q: %w", g.ID, err)
	}
	return nil
}

// HasVariant reports whether the feature declares a variant called name.
// Features without declared variants accept any name.
func (f *Feature) HasVariant(name string) bool {
	if len(f.Variants) == 0 {
		return true
	}
	for _, v := range f.Variants {
		if v.Name == name {
			return true
		}
	}
	return false
}

// Fingerprint identifies one definition of a feature.
type Fingerprint struct {
	Version int64
	Digest  uint64
}

// Digest hashes the canonical JSON of the feature with its version left out.
// Call it on prepared features so defaults and normalized names compare equal.
func (f *Feature) Digest() (uint64, error) {
	c := *f
	c.Version = 0
	b, err := json.Marshal(&c)
	if err != nil {
		return 0, fmt.Errorf("digest: %w", err)
	}
	return xxhash.Sum64(b), nil
}

// Fingerprints maps feature names to their fingerprints. The document must
// have been prepared.
func (d *Document) Fingerprints() (map[string]Fingerprint, error) {
	out := make(map[string]Fingerprint, len(d.Features))
	for i := range d.Features {
		f := &d.Features[i]
		digest, err := f.Digest()
		if err != nil {
			return nil, malformed(f.Name, err)
		}
		out[f.Name] = Fingerprint{Version: f.Version, Digest: digest}
	}
	return out, nil
}
