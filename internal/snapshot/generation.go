// Package snapshot holds immutable configuration generations and the store
// that publishes them atomically.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/TimurManjosov/decider/internal/engine"
	"github.com/TimurManjosov/decider/internal/rollout"
	"github.com/TimurManjosov/decider/internal/store"
	"github.com/TimurManjosov/decider/internal/value"
	"github.com/google/uuid"
)

// ErrFeatureNotFound is returned when a generation has no feature of the
// requested name.
var ErrFeatureNotFound = errors.New("feature not found")

// Generation is one fully validated configuration. It is never mutated after
// Build returns and may be shared by any number of goroutines.
type Generation struct {
	ID          string              `json:"id"`
	ETag        string              `json:"etag"`
	HashVersion rollout.HashVersion `json:"hash_version"`
	Source      string              `json:"source"`
	LoadedAt    time.Time           `json:"loaded_at"`

	features map[string]*Entry
	names    []string
}

// Entry is a feature with everything the decision chain needs precomputed.
type Entry struct {
	Feature    *store.Feature
	BucketPath []string
	Value      *value.Value
	Variants   []Variant
	Weights    []float64
	Overrides  []Override
	Rules      []Rule
	// MutexIndex is the feature's position in Feature.MutexGroup.Members.
	MutexIndex int

	digest uint64
}

// Variant is a store.Variant with its value converted.
type Variant struct {
	Name   string
	Weight float64
	Value  *value.Value
}

// Override is a store.Override with converted operands. Value already falls
// back to the named variant's value.
type Override struct {
	Path    []string
	Values  []value.Value
	Variant string
	Value   *value.Value
}

// Rule is a compiled targeting rule. Value already falls back to the named
// variant's value.
type Rule struct {
	ID      string
	Matcher *engine.Matcher
	Variant string
	Value   *value.Value
}

// Get returns the entry for name.
func (g *Generation) Get(name string) (*Entry, bool) {
	e, ok := g.features[name]
	return e, ok
}

// Names returns feature names in sorted order.
func (g *Generation) Names() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Len returns the number of features.
func (g *Generation) Len() int { return len(g.features) }

// Versions maps feature names to versions.
func (g *Generation) Versions() map[string]int64 {
	out := make(map[string]int64, len(g.features))
	for name, e := range g.features {
		out[name] = e.Feature.Version
	}
	return out
}

// Fingerprints identifies each feature definition, used to reject a reload
// that changes a feature without raising its version.
func (g *Generation) Fingerprints() map[string]store.Fingerprint {
	out := make(map[string]store.Fingerprint, len(g.features))
	for name, e := range g.features {
		out[name] = store.Fingerprint{Version: e.Feature.Version, Digest: e.digest}
	}
	return out
}

// Build prepares doc and compiles every feature. previous may be nil.
func Build(doc *store.Document, opts Options, previous *Generation) (*Generation, error) {
	var fingerprints map[string]store.Fingerprint
	if previous != nil {
		fingerprints = previous.Fingerprints()
	}
	if err := store.Prepare(doc, fingerprints); err != nil {
		return nil, err
	}

	hv := opts.HashVersion
	if doc.HashVersion != 0 {
		hv = rollout.HashVersion(doc.HashVersion)
	}
	hv, err := rollout.ParseHashVersion(int(hv))
	if err != nil {
		return nil, &store.ConfigError{Kind: store.MalformedEntry, Err: err}
	}

	etag, err := computeETag(doc, hv)
	if err != nil {
		return nil, &store.ConfigError{Kind: store.MalformedEntry, Err: err}
	}

	g := &Generation{
		ID:          uuid.NewString(),
		ETag:        etag,
		HashVersion: hv,
		LoadedAt:    opts.now(),
		features:    make(map[string]*Entry, len(doc.Features)),
		names:       make([]string, 0, len(doc.Features)),
	}
	for i := range doc.Features {
		f := &doc.Features[i]
		e, err := compileEntry(f)
		if err != nil {
			return nil, &store.ConfigError{Kind: store.MalformedEntry, Feature: f.Name, Err: err}
		}
		g.features[f.Name] = e
		g.names = append(g.names, f.Name)
	}
	sort.Strings(g.names)
	return g, nil
}

func compileEntry(f *store.Feature) (*Entry, error) {
	e := &Entry{
		Feature:    f,
		BucketPath: value.SplitPath(f.BucketVal),
		MutexIndex: -1,
	}

	var err error
	if e.digest, err = f.Digest(); err != nil {
		return nil, err
	}
	if e.Value, err = optionalValue(f.Value); err != nil {
		return nil, err
	}

	variantValues := make(map[string]*value.Value, len(f.Variants))
	for _, v := range f.Variants {
		vv, err := optionalValue(v.Value)
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", v.Name, err)
		}
		e.Variants = append(e.Variants, Variant{Name: v.Name, Weight: v.Weight, Value: vv})
		e.Weights = append(e.Weights, v.Weight)
		variantValues[v.Name] = vv
	}

	for i, o := range f.Overrides {
		co := Override{Path: value.SplitPath(o.Field), Variant: o.Variant}
		for _, raw := range o.Values {
			v, err := value.FromAny(raw)
			if err != nil {
				return nil, fmt.Errorf("overrides[%d]: %w", i, err)
			}
			co.Values = append(co.Values, v)
		}
		if co.Value, err = optionalValue(o.Value); err != nil {
			return nil, fmt.Errorf("overrides[%d]: %w", i, err)
		}
		if co.Value == nil {
			co.Value = variantValues[o.Variant]
		}
		e.Overrides = append(e.Overrides, co)
	}

	for _, r := range f.Targeting {
		m, err := engine.Compile(r.When)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.ID, err)
		}
		cr := Rule{ID: r.ID, Matcher: m, Variant: r.Variant}
		if cr.Value, err = optionalValue(r.Value); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.ID, err)
		}
		if cr.Value == nil {
			cr.Value = variantValues[r.Variant]
		}
		e.Rules = append(e.Rules, cr)
	}

	if g := f.MutexGroup; g != nil {
		for i, m := range g.Members {
			if m.Feature == f.Name {
				e.MutexIndex = i
				break
			}
		}
	}
	return e, nil
}

// VariantValue returns the value of the named variant, if any.
func (e *Entry) VariantValue(name string) *value.Value {
	for _, v := range e.Variants {
		if v.Name == name {
			return v.Value
		}
	}
	return nil
}

func optionalValue(raw any) (*value.Value, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := value.FromAny(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// computeETag hashes the canonical JSON of the prepared document.
func computeETag(doc *store.Document, hv rollout.HashVersion) (string, error) {
	blob, err := json.Marshal(struct {
		HashVersion rollout.HashVersion `json:"hash_version"`
		*store.Document
	}{hv, doc})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(blob)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, nil
}
