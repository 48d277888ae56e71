// Package reporter is the read side of the audit subsystem: paginated
// queries, aggregate statistics, security-event scans, compliance reports,
// and exports over the accumulated entries. It never writes.
package reporter

import (
	"time"

	"helpdesk/internal/audit"
)

// Pagination bounds for List.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Query describes one List call.
type Query struct {
	Filter   audit.Filter
	Page     int
	PageSize int
	Sort     audit.Sort
}

// Pagination is the page envelope returned alongside List results.
type Pagination struct {
	Page         int `json:"page"`
	PageSize     int `json:"pageSize"`
	TotalEntries int `json:"totalEntries"`
	TotalPages   int `json:"totalPages"`
}

// CountItem is one bucket of a grouped count.
type CountItem struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// TimelineBucket is one hourly bucket of entry volume, keyed by the UTC hour
// start.
type TimelineBucket struct {
	Hour  time.Time `json:"hour"`
	Count int       `json:"count"`
}

// Statistics aggregates a time window of entries.
type Statistics struct {
	From         time.Time        `json:"from"`
	To           time.Time        `json:"to"`
	TotalEntries int              `json:"totalEntries"`
	ByAction     []CountItem      `json:"byAction"`
	BySeverity   []CountItem      `json:"bySeverity"`
	ByActor      []CountItem      `json:"byActor"`
	Timeline     []TimelineBucket `json:"timeline"`
}

// SecurityEvents is the result of a security scan: the matching high-severity
// entries plus any bursts of failed logins observed in the same window.
type SecurityEvents struct {
	WindowHours int                `json:"windowHours"`
	Entries     []*audit.Entry     `json:"entries"`
	FailedLogin []FailedLoginBurst `json:"failedLoginBursts,omitempty"`
}

// FailedLoginBurst flags repeated failed login attempts from one source
// within the scan window.
type FailedLoginBurst struct {
	Source   string    `json:"source"`
	Attempts int       `json:"attempts"`
	First    time.Time `json:"first"`
	Last     time.Time `json:"last"`
}

// ComplianceRequest selects the entries a compliance report covers. Empty
// Actions/ActorIDs mean "all".
type ComplianceRequest struct {
	From           time.Time `json:"dateFrom"`
	To             time.Time `json:"dateTo"`
	Actions        []string  `json:"actions,omitempty"`
	ActorIDs       []string  `json:"actorIds,omitempty"`
	IncludeDetails bool      `json:"includeDetails"`
}

// ComplianceMetadata describes the window and generation time of a report.
type ComplianceMetadata struct {
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	TotalEntries int       `json:"totalEntries"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

// ComplianceReport is computed on demand and never persisted.
type ComplianceReport struct {
	Metadata   ComplianceMetadata `json:"metadata"`
	ByAction   []CountItem        `json:"byAction"`
	ByActor    []CountItem        `json:"byActor"`
	BySeverity []CountItem        `json:"bySeverity"`
	Entries    []*audit.Entry     `json:"entries,omitempty"`
}

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ExportRequest selects the window and shape of an export.
type ExportRequest struct {
	From           time.Time
	To             time.Time
	Format         string
	IncludeDetails bool
}

// Export is a materialized download payload.
type Export struct {
	Data        []byte
	ContentType string
	Filename    string
}
