// Package decider evaluates features against a request context. A Decider
// owns a snapshot.Store and runs the configured decision-maker chain against
// the active generation; it never performs I/O on the Choose path.
package decider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/TimurManjosov/decider/internal/rollout"
	"github.com/TimurManjosov/decider/internal/snapshot"
	"github.com/TimurManjosov/decider/internal/store"
	"github.com/TimurManjosov/decider/internal/value"
)

// Operation names passed to Observer.
const (
	OpChoose    = "choose"
	OpChooseAll = "choose_all"
	OpReload    = "reload"
)

// Observer receives one call per public operation. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	Observe(operation string, success bool, errorType string, elapsed time.Duration)
}

// Options configures New.
type Options struct {
	// DecisionMakers is a space or comma separated stage list. Empty selects
	// store.DefaultDecisionMakers.
	DecisionMakers string
	// Source provides the feature document. Required.
	Source store.Source
	// HashVersion applies when the document does not set hash_version.
	// Zero selects the default.
	HashVersion int
	Logger      zerolog.Logger
	Observer    Observer
}

// Decider is safe for concurrent use.
type Decider struct {
	store    *snapshot.Store
	stages   []store.DecisionMaker
	enabled  map[store.DecisionMaker]bool
	logger   zerolog.Logger
	observer Observer
}

// New validates the stage list and loads the first generation. Every error is
// an *InitError.
func New(ctx context.Context, opts Options) (*Decider, error) {
	stages, err := store.ParseDecisionMakers(opts.DecisionMakers)
	if err != nil {
		return nil, &InitError{Err: err}
	}
	if opts.Source == nil {
		return nil, &InitError{Err: errors.New("no config source")}
	}
	hv, err := rollout.ParseHashVersion(opts.HashVersion)
	if err != nil {
		return nil, &InitError{Err: err}
	}

	st, err := snapshot.Load(ctx, opts.Source, snapshot.Options{HashVersion: hv})
	if err != nil {
		return nil, &InitError{Err: err}
	}

	d := &Decider{
		store:    st,
		stages:   stages,
		enabled:  make(map[store.DecisionMaker]bool, len(stages)),
		logger:   opts.Logger,
		observer: opts.Observer,
	}
	for _, s := range stages {
		d.enabled[s] = true
	}

	gen := st.Current()
	d.logger.Info().
		Str("source", gen.Source).
		Str("etag", gen.ETag).
		Int("features", gen.Len()).
		Strs("decision_makers", stageNames(stages)).
		Msg("decider initialized")
	return d, nil
}

// Choose evaluates name for a context given as plain Go data, typically
// decoded JSON. A context that cannot be converted yields an error wrapping
// value.ErrUnsupportedType.
func (d *Decider) Choose(name string, ctx map[string]any) (Decision, error) {
	v, err := value.FromAny(ctx)
	if err != nil {
		err = fmt.Errorf("context: %w", err)
		d.observe(OpChoose, time.Now(), err)
		return Decision{}, err
	}
	return d.ChooseValue(name, v)
}

// ChooseValue evaluates name against a prebuilt context. A non-map context is
// treated as empty.
func (d *Decider) ChooseValue(name string, ctx value.Value) (Decision, error) {
	start := time.Now()
	dec, err := d.choose(d.store.Current(), name, ctx)
	d.observe(OpChoose, start, err)
	return dec, err
}

// ChooseAll evaluates the named features, or every feature when names is
// empty, against one generation. Outcomes are sorted by feature name and
// carry per-feature errors. The returned error is set only when the context
// cannot be converted.
func (d *Decider) ChooseAll(ctx map[string]any, names ...string) ([]Outcome, error) {
	start := time.Now()
	v, err := value.FromAny(ctx)
	if err != nil {
		err = fmt.Errorf("context: %w", err)
		d.observe(OpChooseAll, start, err)
		return nil, err
	}

	gen := d.store.Current()
	if len(names) == 0 {
		names = gen.Names()
	} else {
		names = append([]string(nil), names...)
		sort.Strings(names)
	}

	out := make([]Outcome, 0, len(names))
	for _, name := range names {
		dec, err := d.choose(gen, name, v)
		out = append(out, Outcome{Feature: name, Decision: dec, Err: err})
	}
	d.observe(OpChooseAll, start, nil)
	return out, nil
}

func (d *Decider) choose(gen *snapshot.Generation, name string, ctx value.Value) (Decision, error) {
	entry, ok := gen.Get(name)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrFeatureNotFound, name)
	}
	return d.run(gen, entry, ctx)
}

// Reload rebuilds the configuration from the source. On failure the active
// generation keeps serving and the error is returned.
func (d *Decider) Reload(ctx context.Context) error {
	start := time.Now()
	prev := d.store.Current()
	gen, err := d.store.Reload(ctx)
	d.observe(OpReload, start, err)
	if err != nil {
		d.logger.Error().Err(err).Str("source", d.store.Source().String()).Msg("config reload failed")
		return err
	}
	if gen != prev {
		d.logger.Info().
			Str("etag", gen.ETag).
			Str("generation", gen.ID).
			Int("features", gen.Len()).
			Msg("config reloaded")
	}
	return nil
}

// Generation returns the active configuration generation.
func (d *Decider) Generation() *snapshot.Generation {
	return d.store.Current()
}

// Feature returns the definition of name from the active generation.
func (d *Decider) Feature(name string) (*store.Feature, error) {
	return d.store.Get(name)
}

// Features returns every feature of the active generation sorted by name.
func (d *Decider) Features() []*store.Feature {
	gen := d.store.Current()
	names := gen.Names()
	out := make([]*store.Feature, 0, len(names))
	for _, n := range names {
		e, _ := gen.Get(n)
		out = append(out, e.Feature)
	}
	return out
}

// Subscribe delivers the ETag of each newly published generation.
func (d *Decider) Subscribe() (<-chan string, func()) {
	return d.store.Subscribe()
}

// DecisionMakers returns the enabled stages in order.
func (d *Decider) DecisionMakers() []store.DecisionMaker {
	return append([]store.DecisionMaker(nil), d.stages...)
}

// Source returns the configured source.
func (d *Decider) Source() store.Source {
	return d.store.Source()
}

// Close releases the source.
func (d *Decider) Close() error {
	return d.store.Source().Close()
}

func (d *Decider) observe(op string, start time.Time, err error) {
	if d.observer == nil {
		return
	}
	d.observer.Observe(op, err == nil, ErrorType(err), time.Since(start))
}

func stageNames(stages []store.DecisionMaker) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}
