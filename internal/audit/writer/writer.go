// Package writer assembles and persists audit entries after the triggering
// response has been finalized. Submissions go through a bounded queue with a
// drop-and-count overflow policy, so the write path can never slow down or
// fail a business request.
package writer

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"golang.org/x/sync/errgroup"

	"helpdesk/internal/audit"
	"helpdesk/internal/audit/changes"
	"helpdesk/internal/audit/classifier"
	"helpdesk/internal/audit/metrics"
	"helpdesk/internal/audit/perf"
	"helpdesk/internal/audit/redact"
	"helpdesk/internal/audit/session"
	"helpdesk/pkg/requestcontext"
)

// Ingestion is the per-request capture handed off by the middleware once the
// response has been finalized. Everything the entry needs is already in here;
// processing never touches the original request again.
type Ingestion struct {
	Method           string
	Path             string
	Query            string
	RequestHeaders   http.Header
	ResponseHeaders  http.Header
	StatusCode       int
	RequestBodySize  int64
	ResponseBodySize int64
	SubmittedBody    map[string]any
	Before           map[string]any
	After            map[string]any
	TargetOverride   *audit.Target
	Actor            requestcontext.Identity
	IPAddress        string
	UserAgent        string
	TraceID          string
	Start            perf.Snapshot
	End              perf.Snapshot

	classification *classifier.Classification
}

// Sink receives persisted entries for fan-out (e.g. to Kafka for SIEM
// consumers). Implementations are best-effort and must not block.
type Sink interface {
	Publish(ctx context.Context, entry *audit.Entry)
}

// Writer owns the audit write path: classify, derive severity, redact,
// extract changes, persist. One Submit per request yields at most one entry.
type Writer struct {
	store      audit.Store
	classifier *classifier.Classifier
	logger     *slog.Logger
	metrics    *metrics.Metrics
	sink       Sink
	tracker    session.Tracker

	slowThresholdMs int64
	auditAllReads   bool
	readAuditTypes  map[string]struct{}
	queue           chan job
	group           *errgroup.Group
	workers         int
	startOnce       sync.Once
	closeOnce       sync.Once
}

// job is either a middleware capture or a pre-built entry from Emit. The
// session ID rides alongside because it feeds the tracker but is not part of
// the persisted entry.
type job struct {
	ingestion *Ingestion
	entry     *audit.Entry
	sessionID string
}

// Option configures the Writer.
type Option func(*Writer)

// WithLogger sets the logger for operational warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// WithSink adds a fan-out sink for persisted entries.
func WithSink(s Sink) Option {
	return func(w *Writer) { w.sink = s }
}

// WithTracker wires the session activity tracker into the write path.
func WithTracker(t session.Tracker) Option {
	return func(w *Writer) { w.tracker = t }
}

// WithClassifier overrides the default classification rules.
func WithClassifier(c *classifier.Classifier) Option {
	return func(w *Writer) { w.classifier = c }
}

// WithQueueSize bounds the submission queue (default 1024).
func WithQueueSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.queue = make(chan job, n)
		}
	}
}

// WithWorkers sets the number of background workers (default 2).
func WithWorkers(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithSlowThreshold sets the latency above which successful responses are
// classified as warnings (default 10s).
func WithSlowThreshold(ms int64) Option {
	return func(w *Writer) { w.slowThresholdMs = ms }
}

// WithReadAuditing controls which read requests are persisted. The default is
// mutating-only plus reads of the "user" resource; pass all=true to audit
// every read, or list the sensitive target types whose reads matter.
func WithReadAuditing(all bool, types ...string) Option {
	return func(w *Writer) {
		w.auditAllReads = all
		if len(types) > 0 {
			w.readAuditTypes = make(map[string]struct{}, len(types))
			for _, t := range types {
				w.readAuditTypes[t] = struct{}{}
			}
		}
	}
}

// New creates a Writer. Call Start before submitting.
func New(store audit.Store, opts ...Option) *Writer {
	w := &Writer{
		store:           store,
		classifier:      classifier.New(),
		logger:          slog.Default(),
		slowThresholdMs: 10000,
		readAuditTypes:  map[string]struct{}{"user": {}},
		workers:         2,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.queue == nil {
		w.queue = make(chan job, 1024)
	}
	return w
}

// Start launches the background workers. The passed context only bounds
// worker lifetime; entry persistence uses its own context so writes survive
// client disconnects.
func (w *Writer) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.group, _ = errgroup.WithContext(ctx)
		for i := 0; i < w.workers; i++ {
			w.group.Go(func() error {
				for j := range w.queue {
					w.process(j)
				}
				return nil
			})
		}
	})
}

// Close stops accepting submissions, drains the queue, and waits for the
// workers to finish.
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		close(w.queue)
		if w.group != nil {
			_ = w.group.Wait()
		}
	})
}

// Submit hands one finalized request capture to the write path. It returns
// immediately; the response being audited has already been sent. Returns
// false when the request is not audited or the queue is full.
func (w *Writer) Submit(ing Ingestion) bool {
	cls := w.classifier.Classify(ing.Method, ing.Path, ing.SubmittedBody)
	if cls == nil {
		return false
	}
	if cls.Kind == classifier.KindRead && !w.auditsRead(cls.TargetType) {
		return false
	}
	ing.classification = cls
	return w.enqueue(job{ingestion: &ing, sessionID: ing.Actor.SessionID})
}

// auditsRead reports whether reads of the given target type are persisted.
func (w *Writer) auditsRead(targetType string) bool {
	if w.auditAllReads {
		return true
	}
	_, ok := w.readAuditTypes[targetType]
	return ok
}

// Emit records an explicit business-logic audit entry, independent of the
// request pipeline capture. Entries from both call sites may share a traceId
// and are deliberately not deduplicated. The context supplies actor, trace
// and client metadata; the response fields stay zero.
func (w *Writer) Emit(ctx context.Context, action string, target audit.Target, note string) bool {
	identity := requestcontext.Actor(ctx)
	now := requestcontext.Now(ctx)

	entry := &audit.Entry{
		ID:        uuid.NewString(),
		TraceID:   traceIDOrNew(requestcontext.TraceID(ctx)),
		Timestamp: now.UTC(),
		Action:    action,
		Actor:     actorFrom(identity, requestcontext.ClientIP(ctx), requestcontext.UserAgent(ctx)),
		Target:    target,
		Severity:  audit.SeverityInfo,
		Details:   audit.Details{Note: note},
	}
	return w.enqueue(job{entry: entry, sessionID: identity.SessionID})
}

func (w *Writer) enqueue(j job) bool {
	select {
	case w.queue <- j:
		if w.metrics != nil {
			w.metrics.QueueDepth.Set(float64(len(w.queue)))
		}
		return true
	default:
		if w.metrics != nil {
			w.metrics.IncQueueOverflow()
		}
		w.logger.Warn("audit queue full, dropping submission")
		return false
	}
}

// process runs on a worker goroutine. Failures are logged and counted, never
// propagated: the triggering response is long gone.
func (w *Writer) process(j job) {
	entry := j.entry
	if entry == nil {
		entry = w.buildEntry(j.ingestion)
	}

	// Deliberately not the request context: an aborted request must still
	// get its entry written best-effort.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	if err := w.store.Append(ctx, entry); err != nil {
		if w.metrics != nil {
			w.metrics.IncDropped()
		}
		w.logger.Warn("audit entry dropped: persistence failed",
			"action", entry.Action,
			"trace_id", entry.TraceID,
			"error", err,
		)
		return
	}
	if w.metrics != nil {
		w.metrics.IncWritten()
		w.metrics.WriteDurationSeconds.Observe(time.Since(start).Seconds())
		w.metrics.QueueDepth.Set(float64(len(w.queue)))
	}

	if w.sink != nil {
		w.sink.Publish(ctx, entry)
	}
	w.track(ctx, entry, j.sessionID)
}

// track appends the entry to the actor's session record, best-effort.
func (w *Writer) track(ctx context.Context, entry *audit.Entry, sessionID string) {
	if w.tracker == nil || entry.Actor.ID == "" || sessionID == "" {
		return
	}
	activity := session.Activity{
		Action:     entry.Action,
		Timestamp:  entry.Timestamp,
		Endpoint:   entry.Context.Endpoint,
		StatusCode: entry.Context.StatusCode,
	}
	if err := w.tracker.Record(ctx, entry.Actor.ID, sessionID, activity); err != nil {
		w.logger.Warn("session activity tracking failed",
			"user_id", entry.Actor.ID,
			"error", err,
		)
	}
}

// buildEntry derives the immutable entry from a finalized capture. All
// derivation helpers degrade to safe defaults, so this never fails.
func (w *Writer) buildEntry(ing *Ingestion) *audit.Entry {
	cls := ing.classification
	elapsed := perf.Between(ing.Start, ing.End)
	elapsedMs := elapsed.Elapsed.Milliseconds()

	target := audit.Target{Type: cls.TargetType, ID: cls.TargetID}
	if ing.TargetOverride != nil {
		target = *ing.TargetOverride
	}

	entry := &audit.Entry{
		ID:        uuid.NewString(),
		TraceID:   traceIDOrNew(ing.TraceID),
		Timestamp: ing.End.At.UTC(),
		Action:    cls.Action,
		Actor:     actorFrom(ing.Actor, ing.IPAddress, ing.UserAgent),
		Target:    target,
		Context: audit.RequestContext{
			Endpoint:       ing.Path,
			Method:         ing.Method,
			StatusCode:     ing.StatusCode,
			ResponseTimeMs: elapsedMs,
		},
		Details: audit.Details{
			Request: audit.RequestDetails{
				Method:   ing.Method,
				Path:     ing.Path,
				Query:    ing.Query,
				Headers:  redactedHeaders(ing.RequestHeaders),
				BodySize: ing.RequestBodySize,
			},
			Response: audit.ResponseDetails{
				StatusCode: ing.StatusCode,
				Headers:    redactedHeaders(ing.ResponseHeaders),
				DataSize:   ing.ResponseBodySize,
			},
			Client:  clientInfo(ing.UserAgent),
			Changes: w.extractChanges(ing),
		},
		Severity: audit.SeverityFor(ing.StatusCode, elapsedMs, w.slowThresholdMs),
		Performance: audit.Performance{
			ResponseTimeMs:   elapsedMs,
			MemoryDeltaBytes: elapsed.MemoryDeltaBytes,
			CPUUserMicros:    elapsed.CPUUserMicros,
			CPUSystemMicros:  elapsed.CPUSystemMicros,
		},
	}
	return entry
}

// extractChanges only records diffs for successful mutations; a failed
// request changed nothing.
func (w *Writer) extractChanges(ing *Ingestion) []audit.Change {
	if ing.StatusCode >= 400 {
		return nil
	}
	switch ing.classification.Kind {
	case classifier.KindCreate:
		state := ing.After
		if state == nil {
			state = ing.SubmittedBody
		}
		return changes.ForCreate(state)
	case classifier.KindUpdate:
		return changes.ForUpdate(ing.SubmittedBody, ing.Before, ing.After)
	case classifier.KindDelete:
		return changes.ForDelete(ing.Before)
	default:
		return nil
	}
}

func actorFrom(identity requestcontext.Identity, ip, ua string) audit.Actor {
	actor := audit.Actor{
		Type:      audit.ActorAnonymous,
		IPAddress: ip,
		UserAgent: ua,
	}
	if !identity.IsAnonymous() {
		actor.Type = audit.ActorUser
		actor.ID = identity.ID
		actor.Email = identity.Email
		actor.Role = identity.Role
	}
	return actor
}

func traceIDOrNew(traceID string) string {
	if traceID == "" {
		return uuid.NewString()
	}
	return traceID
}

// redactedHeaders sanitizes a header capture, keeping nil captures nil so
// empty header maps don't bloat stored entries.
func redactedHeaders(h http.Header) http.Header {
	if len(h) == 0 {
		return nil
	}
	return redact.Headers(h)
}

func clientInfo(ua string) *audit.ClientInfo {
	if strings.TrimSpace(ua) == "" {
		return nil
	}
	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	return &audit.ClientInfo{
		Browser: browser,
		OS:      parsed.OS(),
		Mobile:  parsed.Mobile(),
		Bot:     parsed.Bot(),
	}
}
