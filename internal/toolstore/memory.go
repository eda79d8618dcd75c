package toolstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps tool outputs in memory. It is the default store and the
// one tests use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec Record) (Ref, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()
	return Ref{
		ID:        id,
		ByteSize:  len(rec.Content),
		LineCount: strings.Count(rec.Content, "\n") + 1,
	}, nil
}

// Read implements Store.
func (s *MemoryStore) Read(_ context.Context, refID string, opts ReadOptions) (string, error) {
	s.mu.RLock()
	rec, ok := s.records[refID]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("toolstore: unknown ref %q", refID)
	}
	return readLines(rec.Content, opts), nil
}

// Grep implements Store.
func (s *MemoryStore) Grep(_ context.Context, refID string, opts GrepOptions) (string, error) {
	s.mu.RLock()
	rec, ok := s.records[refID]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("toolstore: unknown ref %q", refID)
	}
	return grepLines(rec.Content, opts)
}
