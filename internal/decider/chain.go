package decider

import (
	"strconv"

	"github.com/TimurManjosov/decider/internal/engine"
	"github.com/TimurManjosov/decider/internal/rollout"
	"github.com/TimurManjosov/decider/internal/snapshot"
	"github.com/TimurManjosov/decider/internal/store"
	"github.com/TimurManjosov/decider/internal/value"
)

// Context fields read by the darkmode stage.
const (
	ForceVariantField = "_force_variant"
	ForceValueField   = "_force_value"
)

// Event suffixes appended to "<feature>_".
const (
	eventDarkMode    = "darkmode"
	eventOverride    = "override"
	eventTargeting   = "targeting_"
	eventHoldoutIn   = "holdout_in"
	eventHoldoutOut  = "holdout_out"
	eventMutexIn     = "mutex_in"
	eventMutexOut    = "mutex_out"
	eventFAIn        = "fa_in"
	eventFAOut       = "fa_out"
	eventValue       = "value"
	eventNoBucketKey = "no_bucket_key"
)

// evaluation carries the state of one chain run. It lives on the caller's
// stack and is never shared.
type evaluation struct {
	hash  rollout.HashVersion
	entry *snapshot.Entry
	ctx   value.Value
	d     Decision

	key       string
	keyOK     bool
	keyLoaded bool
}

// run executes the stages in order until one is terminal.
func (d *Decider) run(gen *snapshot.Generation, entry *snapshot.Entry, ctx value.Value) (Decision, error) {
	f := entry.Feature
	ev := &evaluation{
		hash:  gen.HashVersion,
		entry: entry,
		ctx:   ctx,
		d: Decision{
			FeatureID:      f.ID,
			FeatureName:    f.Name,
			FeatureVersion: f.Version,
			Events:         []string{},
		},
	}

	stages := d.stages
	if len(f.EnabledDecisionMakers) > 0 {
		stages = f.EnabledDecisionMakers
	}
	for _, stage := range stages {
		if !d.enabled[stage] {
			continue
		}
		done, err := ev.step(stage)
		if err != nil {
			return Decision{}, err
		}
		if done {
			break
		}
	}
	return ev.d, nil
}

// step runs one stage and reports whether the chain is finished.
func (ev *evaluation) step(stage store.DecisionMaker) (bool, error) {
	switch stage {
	case store.StageDarkMode:
		return ev.darkMode(), nil
	case store.StageOverrides:
		return ev.overrides(), nil
	case store.StageTargeting:
		return ev.targeting(), nil
	case store.StageHoldout:
		return ev.holdout()
	case store.StageMutexGroup:
		return ev.mutexGroup()
	case store.StageFractionalAvailability:
		return ev.fractionalAvailability()
	case store.StageValue:
		return ev.staticValue(), nil
	}
	return false, nil
}

func (ev *evaluation) darkMode() bool {
	forcedVariant, hasVariant := ev.ctx.Field(ForceVariantField)
	forcedValue, hasValue := ev.ctx.Field(ForceValueField)
	name, isString := forcedVariant.AsString()
	hasVariant = hasVariant && isString && name != ""
	if !hasVariant && !hasValue {
		return false
	}

	if hasVariant {
		ev.d.Variant = &name
		ev.d.Value = ev.entry.VariantValue(name)
	}
	if hasValue {
		v := forcedValue
		ev.d.Value = &v
	}
	ev.emit(eventDarkMode)
	return true
}

func (ev *evaluation) overrides() bool {
	for i := range ev.entry.Overrides {
		o := &ev.entry.Overrides[i]
		got, err := ev.ctx.GetPath(o.Path)
		if err != nil {
			continue
		}
		for _, want := range o.Values {
			if value.Equal(got, want) {
				ev.assign(o.Variant, o.Value)
				ev.emit(eventOverride)
				return true
			}
		}
	}
	return false
}

func (ev *evaluation) targeting() bool {
	if len(ev.entry.Rules) == 0 {
		return false
	}
	in := engine.NewInput(ev.ctx)
	for i := range ev.entry.Rules {
		r := &ev.entry.Rules[i]
		if r.Matcher.MatchInput(in) {
			ev.assign(r.Variant, r.Value)
			ev.emit(eventTargeting + r.ID)
			return true
		}
	}
	return false
}

func (ev *evaluation) holdout() (bool, error) {
	h := ev.entry.Feature.Holdout
	if h == nil {
		return false, nil
	}
	if err := rollout.ValidateFraction(h.Fraction); err != nil {
		return true, ev.invalid(store.StageHoldout, err)
	}
	key, ok := ev.bucketKey()
	if !ok {
		return true, nil
	}
	if rollout.InFraction(ev.hash.Bucket(rollout.HoldoutNamespace(h.ID), key), h.Fraction) {
		ev.emit(eventHoldoutIn)
		return true, nil
	}
	ev.emit(eventHoldoutOut)
	return false, nil
}

func (ev *evaluation) mutexGroup() (bool, error) {
	g := ev.entry.Feature.MutexGroup
	if g == nil {
		return false, nil
	}
	weights := g.Weights()
	if err := rollout.ValidateWeights(weights); err != nil {
		return true, ev.invalid(store.StageMutexGroup, err)
	}
	key, ok := ev.bucketKey()
	if !ok {
		return true, nil
	}
	selected := rollout.Allocate(ev.hash.Bucket(rollout.MutexNamespace(g.ID), key), weights)
	if selected >= 0 && selected == ev.entry.MutexIndex {
		ev.emit(eventMutexIn)
		return false, nil
	}
	ev.emit(eventMutexOut)
	return true, nil
}

func (ev *evaluation) fractionalAvailability() (bool, error) {
	f := ev.entry.Feature
	var fraction float64
	switch {
	case f.FractionalAvailability != nil:
		fraction = *f.FractionalAvailability
	case len(ev.entry.Variants) > 0:
		fraction = 1
	default:
		return false, nil
	}
	if err := rollout.ValidateFraction(fraction); err != nil {
		return true, ev.invalid(store.StageFractionalAvailability, err)
	}
	if err := rollout.ValidateWeights(ev.entry.Weights); err != nil {
		return true, ev.invalid(store.StageFractionalAvailability, err)
	}
	key, ok := ev.bucketKey()
	if !ok {
		return true, nil
	}

	if !rollout.InFraction(ev.hash.Bucket(rollout.FeatureNamespace(f.Name, f.Version), key), fraction) {
		ev.emit(eventFAOut)
		return true, nil
	}
	ev.emit(eventFAIn)

	if len(ev.entry.Variants) > 0 {
		idx := rollout.Allocate(ev.hash.Bucket(rollout.VariantNamespace(f.Name), key), ev.entry.Weights)
		if idx >= 0 {
			v := &ev.entry.Variants[idx]
			ev.assign(v.Name, v.Value)
		}
	}
	return false, nil
}

func (ev *evaluation) staticValue() bool {
	if ev.d.Variant != nil || ev.entry.Value == nil {
		return false
	}
	ev.d.Value = ev.entry.Value
	ev.emit(eventValue)
	return true
}

// bucketKey resolves the feature's bucketing field once per evaluation.
// Strings are used as-is and numbers in their shortest decimal form; any
// other kind counts as missing, which ends the chain with no decision.
func (ev *evaluation) bucketKey() (string, bool) {
	if !ev.keyLoaded {
		ev.keyLoaded = true
		if v, err := ev.ctx.GetPath(ev.entry.BucketPath); err == nil {
			switch v.Kind() {
			case value.KindString:
				ev.key, _ = v.AsString()
				ev.keyOK = ev.key != ""
			case value.KindNumber:
				n, _ := v.AsNumber()
				ev.key, ev.keyOK = strconv.FormatFloat(n, 'f', -1, 64), true
			}
		}
		if !ev.keyOK {
			ev.emit(eventNoBucketKey)
		}
	}
	return ev.key, ev.keyOK
}

func (ev *evaluation) assign(variant string, v *value.Value) {
	if variant != "" {
		name := variant
		ev.d.Variant = &name
	}
	ev.d.Value = v
}

func (ev *evaluation) emit(tag string) {
	ev.d.Events = append(ev.d.Events, ev.entry.Feature.Name+"_"+tag)
}

func (ev *evaluation) invalid(stage store.DecisionMaker, err error) error {
	return &ConfigValidationError{Feature: ev.entry.Feature.Name, Stage: stage, Err: err}
}
