package audit

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Sort orders for listing entries. Both use the store-assigned insertion
// sequence as tiebreak so entries sharing a timestamp keep a stable order.
type Sort string

const (
	SortTimestampDesc Sort = "timestamp_desc"
	SortTimestampAsc  Sort = "timestamp_asc"
)

// Filter narrows entry queries. Zero values mean "no constraint".
type Filter struct {
	Action     string
	ActorID    string
	TargetID   string
	TraceID    string
	Search     string
	Severities []Severity
	From       time.Time
	To         time.Time
}

// Matches reports whether an entry satisfies the filter. The in-memory store
// and the reporter's post-filtering share this so both backends agree on
// filter semantics.
func (f Filter) Matches(e *Entry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ActorID != "" && e.Actor.ID != f.ActorID {
		return false
	}
	if f.TargetID != "" && e.Target.ID != f.TargetID {
		return false
	}
	if f.TraceID != "" && e.TraceID != f.TraceID {
		return false
	}
	if len(f.Severities) > 0 {
		found := false
		for _, s := range f.Severities {
			if e.Severity == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.Action), needle) &&
			!strings.Contains(strings.ToLower(e.Actor.Email), needle) &&
			!strings.Contains(strings.ToLower(e.Target.ID), needle) &&
			!strings.Contains(strings.ToLower(e.Details.Note), needle) {
			return false
		}
	}
	return true
}

// SortEntries orders entries in place. Wall-clock timestamps from concurrent
// writers can collide, so the store-assigned Seq breaks ties deterministically.
func SortEntries(entries []*Entry, order Sort) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			if order == SortTimestampDesc {
				return entries[i].Seq > entries[j].Seq
			}
			return entries[i].Seq < entries[j].Seq
		}
		if order == SortTimestampDesc {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}

// Store persists audit entries. Writes are pure inserts; implementations must
// assign Seq monotonically at append time and never mutate stored entries.
// Reads tolerate an eventually-consistent view of concurrent writes and must
// not block writers.
type Store interface {
	// Append persists one entry and assigns its Seq.
	Append(ctx context.Context, entry *Entry) error

	// GetByID returns the entry with the given ID, or sentinel.ErrNotFound.
	GetByID(ctx context.Context, id string) (*Entry, error)

	// GetByTraceID returns all entries sharing a correlation ID, ordered by
	// timestamp ascending with Seq as tiebreak.
	GetByTraceID(ctx context.Context, traceID string) ([]*Entry, error)

	// List returns one page of matching entries plus the total match count.
	List(ctx context.Context, filter Filter, limit, offset int, sort Sort) ([]*Entry, int, error)

	// ListAll returns every matching entry ordered by timestamp ascending.
	// Used by statistics, compliance reports, and exports.
	ListAll(ctx context.Context, filter Filter) ([]*Entry, error)
}
