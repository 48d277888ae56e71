// Package session tracks per-user, per-session action history. Records are
// bounded and evicted by age and count; they exist to support anomaly and
// security-event detection, not as a durable audit trail.
package session

import (
	"context"
	"sync"
	"time"
)

// Activity is one tracked action within a session.
type Activity struct {
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
	Endpoint   string    `json:"endpoint"`
	StatusCode int       `json:"statusCode"`
}

// Tracker appends activities to bounded session records. Implementations must
// evict the oldest activities once bounds are exceeded.
type Tracker interface {
	// Record appends one activity to the (userID, sessionID) record,
	// creating the record on first use.
	Record(ctx context.Context, userID, sessionID string, activity Activity) error

	// Recent returns up to n activities, newest first.
	Recent(ctx context.Context, userID, sessionID string, n int) ([]Activity, error)
}

// MemoryTracker is a mutex-guarded in-memory tracker. State is an explicit,
// injected container so isolated instances can be constructed per test.
type MemoryTracker struct {
	mu      sync.Mutex
	records map[string][]Activity
	touched map[string]time.Time

	maxActivities int
	ttl           time.Duration
	now           func() time.Time
}

// MemoryOption configures a MemoryTracker.
type MemoryOption func(*MemoryTracker)

// WithClock injects a clock for TTL eviction tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(t *MemoryTracker) {
		t.now = now
	}
}

// NewMemoryTracker creates a tracker bounded by maxActivities per session and
// a per-session TTL. Non-positive bounds fall back to defaults (200, 24h).
func NewMemoryTracker(maxActivities int, ttl time.Duration, opts ...MemoryOption) *MemoryTracker {
	if maxActivities <= 0 {
		maxActivities = 200
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	t := &MemoryTracker{
		records:       make(map[string][]Activity),
		touched:       make(map[string]time.Time),
		maxActivities: maxActivities,
		ttl:           ttl,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func sessionKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// Record appends an activity, trimming the oldest entries past the bound and
// opportunistically evicting expired sessions.
func (t *MemoryTracker) Record(_ context.Context, userID, sessionID string, activity Activity) error {
	key := sessionKey(userID, sessionID)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpiredLocked(now)

	record := append(t.records[key], activity)
	if overflow := len(record) - t.maxActivities; overflow > 0 {
		record = record[overflow:]
	}
	t.records[key] = record
	t.touched[key] = now
	return nil
}

// Recent returns up to n activities for the session, newest first.
func (t *MemoryTracker) Recent(_ context.Context, userID, sessionID string, n int) ([]Activity, error) {
	key := sessionKey(userID, sessionID)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpiredLocked(t.now())

	record := t.records[key]
	if n <= 0 || n > len(record) {
		n = len(record)
	}
	out := make([]Activity, 0, n)
	for i := len(record) - 1; i >= len(record)-n; i-- {
		out = append(out, record[i])
	}
	return out, nil
}

func (t *MemoryTracker) evictExpiredLocked(now time.Time) {
	for key, last := range t.touched {
		if now.Sub(last) > t.ttl {
			delete(t.records, key)
			delete(t.touched, key)
		}
	}
}
