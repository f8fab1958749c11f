package webhook

import (
	"sort"
	"time"

	"github.com/TimurManjosov/decider/internal/snapshot"
)

// NewGenerationEvent describes the switch from prev to next. prev may be nil
// for the first generation, in which case every feature counts as added.
func NewGenerationEvent(prev, next *snapshot.Generation, now time.Time) Event {
	ev := Event{
		Type:      EventGenerationActivated,
		Timestamp: now.UTC(),
		Generation: Generation{
			ID:          next.ID,
			ETag:        next.ETag,
			HashVersion: int(next.HashVersion),
			Source:      next.Source,
			LoadedAt:    next.LoadedAt.UTC(),
			Features:    next.Len(),
		},
	}

	var before map[string]int64
	if prev != nil {
		ev.Generation.PreviousTag = prev.ETag
		before = prev.Versions()
	}
	after := next.Versions()

	for name, v := range after {
		old, ok := before[name]
		switch {
		case !ok:
			ev.Changes.Added = append(ev.Changes.Added, name)
		case old != v:
			ev.Changes.Updated = append(ev.Changes.Updated, name)
		}
	}
	for name := range before {
		if _, ok := after[name]; !ok {
			ev.Changes.Removed = append(ev.Changes.Removed, name)
		}
	}

	sort.Strings(ev.Changes.Added)
	sort.Strings(ev.Changes.Removed)
	sort.Strings(ev.Changes.Updated)
	return ev
}
