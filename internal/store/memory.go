package store

import (
	"context"
	"sync"
)

// MemorySource is an in-memory implementation of the Source interface.
// It uses a RWMutex for thread-safe concurrent access.
// This implementation is suitable for development, testing, or embedding the
// decider with programmatically built configuration.
type MemorySource struct {
	mu  sync.RWMutex
	doc *Document
}

// NewMemorySource creates a source serving doc. A nil doc serves an empty
// document.
func NewMemorySource(doc *Document) *MemorySource {
	m := &MemorySource{}
	m.Set(doc)
	return m
}

// Set replaces the served document. The next reload picks it up.
func (m *MemorySource) Set(doc *Document) {
	if doc == nil {
		doc = &Document{Features: []Feature{}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc
}

// Load returns a deep copy of the served document.
func (m *MemorySource) Load(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, ioError(m.String(), err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, err := cloneDocument(m.doc)
	if err != nil {
		return nil, malformed("", err)
	}
	return doc, nil
}

func (m *MemorySource) String() string { return "memory" }

// Close is a no-op for MemorySource as there are no resources to release.
func (m *MemorySource) Close() error {
	return nil
}
