// Package webhook notifies external endpoints when a new configuration
// generation becomes active.
package webhook

import (
	"time"
)

// EventGenerationActivated is sent after a reload publishes a generation with
// a new ETag.
const EventGenerationActivated = "generation.activated"

// Event is the JSON body of a webhook delivery.
type Event struct {
	Type       string     `json:"event"`
	Timestamp  time.Time  `json:"timestamp"`
	Generation Generation `json:"generation"`
	Changes    Changes    `json:"changes"`
}

// Generation identifies the activated generation.
type Generation struct {
	ID          string    `json:"id"`
	ETag        string    `json:"etag"`
	PreviousTag string    `json:"previous_etag,omitempty"`
	HashVersion int       `json:"hash_version"`
	Source      string    `json:"source"`
	LoadedAt    time.Time `json:"loaded_at"`
	Features    int       `json:"features"`
}

// Changes lists feature names by what happened to them. Updated holds
// features whose version changed; a reload that only touches unversioned
// fields leaves all three empty.
type Changes struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Updated []string `json:"updated,omitempty"`
}

// Empty reports whether no feature was added, removed or re-versioned.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Updated) == 0
}
