// Package audit defines the immutable audit entry model and the store
// contract shared by the write path (middleware, writer) and the read path
// (reporter). Entries are write-once: once appended they are never mutated.
package audit

import (
	"net/http"
	"time"
)

// Severity is the coarse operational-importance classification of an entry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// ActorType distinguishes authenticated users from anonymous callers.
type ActorType string

const (
	ActorUser      ActorType = "user"
	ActorAnonymous ActorType = "anonymous"
)

// Actor is the identity that initiated an audited action.
type Actor struct {
	Type      ActorType `json:"type"`
	ID        string    `json:"id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

// Target is the resource type and identifier an action was performed against.
type Target struct {
	Type string `json:"type,omitempty"`
	ID   string `json:"id,omitempty"`
}

// RequestContext summarizes the HTTP exchange that produced an entry.
type RequestContext struct {
	Endpoint       string `json:"endpoint"`
	Method         string `json:"method"`
	StatusCode     int    `json:"statusCode"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
}

// Change records one field-level before/after pair. OldValue is nil for
// creates, NewValue is nil for deletes.
type Change struct {
	Field    string `json:"field"`
	OldValue any    `json:"oldValue,omitempty"`
	NewValue any    `json:"newValue,omitempty"`
}

// RequestDetails captures the sanitized request side of an exchange.
// Headers must pass through redact.Headers before they land here.
type RequestDetails struct {
	Method   string      `json:"method"`
	Path     string      `json:"path"`
	Query    string      `json:"query,omitempty"`
	Headers  http.Header `json:"headers,omitempty"`
	BodySize int64       `json:"bodySize"`
}

// ResponseDetails captures the sanitized response side of an exchange.
type ResponseDetails struct {
	StatusCode int         `json:"statusCode"`
	Headers    http.Header `json:"headers,omitempty"`
	DataSize   int64       `json:"dataSize"`
}

// ClientInfo is derived from the User-Agent header for reporting convenience.
type ClientInfo struct {
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
	Mobile  bool   `json:"mobile,omitempty"`
	Bot     bool   `json:"bot,omitempty"`
}

// Details holds the full sanitized capture for an entry.
type Details struct {
	Request  RequestDetails  `json:"request"`
	Response ResponseDetails `json:"response"`
	Client   *ClientInfo     `json:"client,omitempty"`
	Changes  []Change        `json:"changes,omitempty"`
	Note     string          `json:"note,omitempty"`
}

// Performance carries request-scoped resource deltas measured from request
// start to response finalize.
type Performance struct {
	ResponseTimeMs   int64 `json:"responseTimeMs"`
	MemoryDeltaBytes int64 `json:"memoryDeltaBytes"`
	CPUUserMicros    int64 `json:"cpuUserMicros"`
	CPUSystemMicros  int64 `json:"cpuSystemMicros"`
}

// Entry is one immutable audit record. Seq is assigned by the store at append
// time and provides a monotonic tiebreak when timestamps collide; it is not
// part of the wire format.
type Entry struct {
	ID          string         `json:"id"`
	Seq         int64          `json:"-"`
	TraceID     string         `json:"traceId"`
	Timestamp   time.Time      `json:"timestamp"`
	Action      string         `json:"action"`
	Actor       Actor          `json:"actor"`
	Target      Target         `json:"target"`
	Context     RequestContext `json:"context"`
	Details     Details        `json:"details"`
	Severity    Severity       `json:"severity"`
	Performance Performance    `json:"performance"`
}
