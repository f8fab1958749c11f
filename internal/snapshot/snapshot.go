package snapshot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TimurManjosov/decider/internal/rollout"
	"github.com/TimurManjosov/decider/internal/store"
)

// Options configures how generations are built.
type Options struct {
	// HashVersion is used when the document does not set hash_version.
	HashVersion rollout.HashVersion
	// Now overrides the clock for LoadedAt; nil means time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

// Store publishes the active Generation. Readers never lock: they load the
// pointer once and keep using that generation. Reloads are serialized and
// swap the pointer only after a new generation is fully built.
type Store struct {
	src  store.Source
	opts Options

	current atomic.Pointer[Generation]
	writeMu sync.Mutex

	subsMu sync.Mutex
	subs   map[subCh]struct{}
}

// Load builds the first generation from src. Errors are *store.ConfigError.
func Load(ctx context.Context, src store.Source, opts Options) (*Store, error) {
	s := &Store{src: src, opts: opts, subs: make(map[subCh]struct{})}
	if _, err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the active generation. It is never nil after Load.
func (s *Store) Current() *Generation {
	return s.current.Load()
}

// Get returns the feature definition from the active generation.
func (s *Store) Get(name string) (*store.Feature, error) {
	e, ok := s.Current().Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFeatureNotFound, name)
	}
	return e.Feature, nil
}

// Source returns the store's configured source.
func (s *Store) Source() store.Source { return s.src }

// Reload rebuilds from the configured source.
func (s *Store) Reload(ctx context.Context) (*Generation, error) {
	return s.ReloadFrom(ctx, s.src)
}

// ReloadFrom builds a new generation from src and publishes it. On any error
// the active generation stays in place and the error is returned. When the
// new document hashes to the active ETag, the active generation is kept and
// no notification is sent.
func (s *Store) ReloadFrom(ctx context.Context, src store.Source) (*Generation, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	doc, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}

	prev := s.current.Load()
	next, err := Build(doc, s.opts, prev)
	if err != nil {
		return nil, err
	}
	next.Source = src.String()

	if prev != nil && prev.ETag == next.ETag {
		return prev, nil
	}
	s.current.Store(next)
	s.publishUpdate(next.ETag)
	return next, nil
}
