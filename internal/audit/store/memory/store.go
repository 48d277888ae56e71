// Package memory provides an in-memory audit store for tests and single-node
// development deployments.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"helpdesk/internal/audit"
	"helpdesk/pkg/sentinel"
)

// Store keeps entries in insertion order. Appends copy the entry so stored
// records stay immutable even if the caller reuses the struct.
type Store struct {
	mu      sync.RWMutex
	entries []*audit.Entry
	byID    map[string]*audit.Entry
	seq     int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{byID: make(map[string]*audit.Entry)}
}

// Append persists one entry, assigning its Seq and, when missing, its ID.
func (s *Store) Append(_ context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	stored := *entry
	stored.Seq = s.seq
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	entry.Seq = stored.Seq
	entry.ID = stored.ID

	s.entries = append(s.entries, &stored)
	s.byID[stored.ID] = &stored
	return nil
}

// GetByID returns the entry with the given ID, or sentinel.ErrNotFound.
func (s *Store) GetByID(_ context.Context, id string) (*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

// GetByTraceID returns all entries for a correlation ID, oldest first.
func (s *Store) GetByTraceID(_ context.Context, traceID string) ([]*audit.Entry, error) {
	s.mu.RLock()
	matched := s.collect(audit.Filter{TraceID: traceID})
	s.mu.RUnlock()

	audit.SortEntries(matched, audit.SortTimestampAsc)
	return matched, nil
}

// List returns one page of matching entries plus the total match count.
func (s *Store) List(_ context.Context, filter audit.Filter, limit, offset int, sort audit.Sort) ([]*audit.Entry, int, error) {
	s.mu.RLock()
	matched := s.collect(filter)
	s.mu.RUnlock()

	audit.SortEntries(matched, sort)
	total := len(matched)

	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// ListAll returns every matching entry ordered oldest first.
func (s *Store) ListAll(_ context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	s.mu.RLock()
	matched := s.collect(filter)
	s.mu.RUnlock()

	audit.SortEntries(matched, audit.SortTimestampAsc)
	return matched, nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// collect copies matching entries; callers must hold at least a read lock.
func (s *Store) collect(filter audit.Filter) []*audit.Entry {
	var matched []*audit.Entry
	for _, entry := range s.entries {
		if filter.Matches(entry) {
			copied := *entry
			matched = append(matched, &copied)
		}
	}
	return matched
}
