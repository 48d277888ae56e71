package reporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"helpdesk/internal/audit"
	"helpdesk/pkg/domainerrors"
	"helpdesk/pkg/sentinel"
)

// Security-scan defaults.
const (
	defaultSecurityWindowHours = 24
	defaultSecurityLimit       = 100

	// failedLoginThreshold is the number of failed login attempts from one
	// source within the scan window that constitutes a burst.
	failedLoginThreshold = 5
)

// Service answers read queries over the audit store. It is independent of the
// write path: it can run against a store that is being appended to
// concurrently and tolerates an eventually-consistent view.
type Service struct {
	store  audit.Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a reporter over the given store.
func NewService(store audit.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns one page of entries matching the query.
func (s *Service) List(ctx context.Context, q Query) ([]*audit.Entry, Pagination, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	if q.Page < 1 {
		return nil, Pagination{}, domainerrors.New(domainerrors.CodeInvalidArgument, "page must be at least 1")
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return nil, Pagination{}, domainerrors.Newf(domainerrors.CodeInvalidArgument, "pageSize must be between 1 and %d", MaxPageSize)
	}
	if q.Sort == "" {
		q.Sort = audit.SortTimestampDesc
	}
	if q.Sort != audit.SortTimestampDesc && q.Sort != audit.SortTimestampAsc {
		return nil, Pagination{}, domainerrors.Newf(domainerrors.CodeInvalidArgument, "unknown sort order %q", q.Sort)
	}
	if err := validateFilter(q.Filter); err != nil {
		return nil, Pagination{}, err
	}

	offset := (q.Page - 1) * q.PageSize
	entries, total, err := s.store.List(ctx, q.Filter, q.PageSize, offset, q.Sort)
	if err != nil {
		return nil, Pagination{}, storeErr("list audit entries", err)
	}

	return entries, Pagination{
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalEntries: total,
		TotalPages:   (total + q.PageSize - 1) / q.PageSize,
	}, nil
}

// GetByID returns one entry by its unique ID.
func (s *Service) GetByID(ctx context.Context, id string) (*audit.Entry, error) {
	if id == "" {
		return nil, domainerrors.New(domainerrors.CodeInvalidArgument, "entry id is required")
	}
	entry, err := s.store.GetByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, domainerrors.Newf(domainerrors.CodeNotFound, "audit entry %s not found", id)
	}
	if err != nil {
		return nil, storeErr("get audit entry", err)
	}
	return entry, nil
}

// GetByTraceID returns all entries correlated to one request, oldest first.
func (s *Service) GetByTraceID(ctx context.Context, traceID string) ([]*audit.Entry, error) {
	if traceID == "" {
		return nil, domainerrors.New(domainerrors.CodeInvalidArgument, "trace id is required")
	}
	entries, err := s.store.GetByTraceID(ctx, traceID)
	if err != nil {
		return nil, storeErr("get audit trace", err)
	}
	return entries, nil
}

// Statistics aggregates the window into per-action, per-severity and
// per-actor counts plus an hourly timeline.
func (s *Service) Statistics(ctx context.Context, from, to time.Time) (*Statistics, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, domainerrors.New(domainerrors.CodeInvalidArgument, "date range end precedes start")
	}

	entries, err := s.store.ListAll(ctx, audit.Filter{From: from, To: to})
	if err != nil {
		return nil, storeErr("aggregate audit entries", err)
	}

	stats := &Statistics{
		From:         from,
		To:           to,
		TotalEntries: len(entries),
		ByAction:     groupCount(entries, func(e *audit.Entry) string { return e.Action }),
		BySeverity:   groupCount(entries, func(e *audit.Entry) string { return string(e.Severity) }),
		ByActor:      groupCount(entries, actorKey),
		Timeline:     hourlyTimeline(entries),
	}
	return stats, nil
}

// SecurityEvents returns recent high-severity entries, newest first, plus any
// failed-login bursts observed in the same window.
func (s *Service) SecurityEvents(ctx context.Context, windowHours int, severities []audit.Severity, limit int) (*SecurityEvents, error) {
	if windowHours < 0 {
		return nil, domainerrors.New(domainerrors.CodeInvalidArgument, "window hours must not be negative")
	}
	if windowHours == 0 {
		windowHours = defaultSecurityWindowHours
	}
	if limit < 0 {
		return nil, domainerrors.New(domainerrors.CodeInvalidArgument, "limit must not be negative")
	}
	if limit == 0 {
		limit = defaultSecurityLimit
	}
	if len(severities) == 0 {
		severities = []audit.Severity{audit.SeverityError, audit.SeverityCritical}
	}
	for _, sev := range severities {
		if !sev.Valid() {
			return nil, domainerrors.Newf(domainerrors.CodeInvalidArgument, "unknown severity %q", sev)
		}
	}

	from := s.now().Add(-time.Duration(windowHours) * time.Hour)
	entries, _, err := s.store.List(ctx, audit.Filter{
		Severities: severities,
		From:       from,
	}, limit, 0, audit.SortTimestampDesc)
	if err != nil {
		return nil, storeErr("scan security events", err)
	}

	bursts, err := s.failedLoginBursts(ctx, from)
	if err != nil {
		return nil, err
	}

	return &SecurityEvents{
		WindowHours: windowHours,
		Entries:     entries,
		FailedLogin: bursts,
	}, nil
}

// failedLoginBursts scans the window's login failures independent of the
// severity filter and limit, so a burst is never hidden by pagination.
func (s *Service) failedLoginBursts(ctx context.Context, from time.Time) ([]FailedLoginBurst, error) {
	logins, err := s.store.ListAll(ctx, audit.Filter{Action: "auth.login", From: from})
	if err != nil {
		return nil, storeErr("scan login failures", err)
	}

	type window struct {
		attempts    int
		first, last time.Time
	}
	bySource := make(map[string]*window)
	for _, e := range logins {
		if e.Context.StatusCode < 400 {
			continue
		}
		source := e.Actor.IPAddress
		if source == "" {
			source = actorKey(e)
		}
		w, ok := bySource[source]
		if !ok {
			w = &window{first: e.Timestamp, last: e.Timestamp}
			bySource[source] = w
		}
		w.attempts++
		if e.Timestamp.Before(w.first) {
			w.first = e.Timestamp
		}
		if e.Timestamp.After(w.last) {
			w.last = e.Timestamp
		}
	}

	var bursts []FailedLoginBurst
	for source, w := range bySource {
		if w.attempts >= failedLoginThreshold {
			bursts = append(bursts, FailedLoginBurst{
				Source:   source,
				Attempts: w.attempts,
				First:    w.first,
				Last:     w.last,
			})
		}
	}
	sort.Slice(bursts, func(i, j int) bool {
		if bursts[i].Attempts != bursts[j].Attempts {
			return bursts[i].Attempts > bursts[j].Attempts
		}
		return bursts[i].Source < bursts[j].Source
	})
	return bursts, nil
}

// ComplianceReport computes an on-demand report over the requested window.
// The report is returned to the caller and never persisted.
func (s *Service) ComplianceReport(ctx context.Context, req ComplianceRequest) (*ComplianceReport, error) {
	if !req.From.IsZero() && !req.To.IsZero() && req.To.Before(req.From) {
		return nil, domainerrors.New(domainerrors.CodeInvalidArgument, "date range end precedes start")
	}

	entries, err := s.store.ListAll(ctx, audit.Filter{From: req.From, To: req.To})
	if err != nil {
		return nil, storeErr("build compliance report", err)
	}
	entries = filterBySets(entries, req.Actions, req.ActorIDs)

	report := &ComplianceReport{
		Metadata: ComplianceMetadata{
			StartDate:    req.From,
			EndDate:      req.To,
			TotalEntries: len(entries),
			GeneratedAt:  s.now().UTC(),
		},
		ByAction:   groupCount(entries, func(e *audit.Entry) string { return e.Action }),
		ByActor:    groupCount(entries, actorKey),
		BySeverity: groupCount(entries, func(e *audit.Entry) string { return string(e.Severity) }),
	}
	if req.IncludeDetails {
		report.Entries = entries
	}
	return report, nil
}

// filterBySets keeps entries whose action and actor are in the requested
// sets. Empty sets keep everything.
func filterBySets(entries []*audit.Entry, actions, actorIDs []string) []*audit.Entry {
	if len(actions) == 0 && len(actorIDs) == 0 {
		return entries
	}
	actionSet := toSet(actions)
	actorSet := toSet(actorIDs)

	out := make([]*audit.Entry, 0, len(entries))
	for _, e := range entries {
		if len(actionSet) > 0 && !actionSet[e.Action] {
			continue
		}
		if len(actorSet) > 0 && !actorSet[e.Actor.ID] {
			continue
		}
		out = append(out, e)
	}
	return out
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func validateFilter(f audit.Filter) error {
	for _, sev := range f.Severities {
		if !sev.Valid() {
			return domainerrors.Newf(domainerrors.CodeInvalidArgument, "unknown severity %q", sev)
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return domainerrors.New(domainerrors.CodeInvalidArgument, "date range end precedes start")
	}
	return nil
}

// storeErr classifies a store failure as service-unavailable for the caller
// while keeping the cause for logs.
func storeErr(op string, err error) error {
	return domainerrors.Wrap(domainerrors.CodeUnavailable, "audit store unavailable", fmt.Errorf("%s: %w", op, err))
}

func actorKey(e *audit.Entry) string {
	if e.Actor.ID != "" {
		return e.Actor.ID
	}
	return string(audit.ActorAnonymous)
}

// groupCount buckets entries by key, ordered by count descending with key
// ascending as tiebreak so output is deterministic.
func groupCount(entries []*audit.Entry, key func(*audit.Entry) string) []CountItem {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[key(e)]++
	}
	items := make([]CountItem, 0, len(counts))
	for k, c := range counts {
		items = append(items, CountItem{Key: k, Count: c})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Key < items[j].Key
	})
	return items
}

// hourlyTimeline buckets entries by UTC hour, ascending.
func hourlyTimeline(entries []*audit.Entry) []TimelineBucket {
	counts := make(map[time.Time]int)
	for _, e := range entries {
		counts[e.Timestamp.UTC().Truncate(time.Hour)]++
	}
	buckets := make([]TimelineBucket, 0, len(counts))
	for hour, c := range counts {
		buckets = append(buckets, TimelineBucket{Hour: hour, Count: c})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Hour.Before(buckets[j].Hour) })
	return buckets
}
