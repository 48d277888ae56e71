package reporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"helpdesk/internal/audit"
	"helpdesk/internal/audit/store/memory"
	"helpdesk/pkg/domainerrors"
)

var reportNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type ReporterSuite struct {
	suite.Suite
	store   *memory.Store
	service *Service
}

func TestReporterSuite(t *testing.T) {
	suite.Run(t, new(ReporterSuite))
}

func (s *ReporterSuite) SetupTest() {
	s.store = memory.New()
	s.service = NewService(s.store, WithClock(func() time.Time { return reportNow }))
}

type seed struct {
	action   string
	severity audit.Severity
	actorID  string
	ip       string
	status   int
	age      time.Duration
}

func (s *ReporterSuite) append(sd seed) *audit.Entry {
	if sd.severity == "" {
		sd.severity = audit.SeverityInfo
	}
	if sd.status == 0 {
		sd.status = 200
	}
	entry := &audit.Entry{
		TraceID:   "trace-" + sd.action,
		Timestamp: reportNow.Add(-sd.age),
		Action:    sd.action,
		Severity:  sd.severity,
		Actor: audit.Actor{
			Type:      audit.ActorUser,
			ID:        sd.actorID,
			Email:     sd.actorID + "@example.com",
			IPAddress: sd.ip,
		},
		Target: audit.Target{Type: "ticket", ID: "t-1"},
		Context: audit.RequestContext{
			Endpoint:   "/api/tickets/t-1",
			Method:     "PATCH",
			StatusCode: sd.status,
		},
	}
	if sd.actorID == "" {
		entry.Actor = audit.Actor{Type: audit.ActorAnonymous, IPAddress: sd.ip}
	}
	s.Require().NoError(s.store.Append(context.Background(), entry))
	return entry
}

func (s *ReporterSuite) TestListPaginates() {
	for i := 0; i < 25; i++ {
		s.append(seed{action: "ticket.update", actorID: "u-1", age: time.Duration(i) * time.Minute})
	}

	entries, page, err := s.service.List(context.Background(), Query{Page: 2, PageSize: 10})
	s.Require().NoError(err)
	s.Len(entries, 10)
	s.Equal(Pagination{Page: 2, PageSize: 10, TotalEntries: 25, TotalPages: 3}, page)

	// Default sort is newest first; page 2 follows page 1 chronologically.
	first, _, err := s.service.List(context.Background(), Query{Page: 1, PageSize: 10})
	s.Require().NoError(err)
	s.True(first[9].Timestamp.After(entries[0].Timestamp) || first[9].Timestamp.Equal(entries[0].Timestamp))
}

func (s *ReporterSuite) TestListDefaultsPageAndSize() {
	s.append(seed{action: "ticket.update", actorID: "u-1"})

	entries, page, err := s.service.List(context.Background(), Query{})
	s.Require().NoError(err)
	s.Len(entries, 1)
	s.Equal(1, page.Page)
	s.Equal(DefaultPageSize, page.PageSize)
}

func (s *ReporterSuite) TestListRejectsBadInput() {
	cases := []Query{
		{Page: -1},
		{PageSize: MaxPageSize + 1},
		{PageSize: -5},
		{Sort: "by_mood"},
		{Filter: audit.Filter{Severities: []audit.Severity{"loud"}}},
		{Filter: audit.Filter{From: reportNow, To: reportNow.Add(-time.Hour)}},
	}
	for _, q := range cases {
		_, _, err := s.service.List(context.Background(), q)
		s.Require().Error(err)
		s.Equal(domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))
	}
}

func (s *ReporterSuite) TestGetByIDNotFound() {
	_, err := s.service.GetByID(context.Background(), "missing")
	s.Equal(domainerrors.CodeNotFound, domainerrors.CodeOf(err))
}

func (s *ReporterSuite) TestGetByTraceIDAscending() {
	// All three share trace-ticket.update via the seed helper.
	for i := 0; i < 3; i++ {
		s.append(seed{action: "ticket.update", actorID: "u-1", age: time.Duration(3-i) * time.Minute})
	}

	entries, err := s.service.GetByTraceID(context.Background(), "trace-ticket.update")
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	for i := 1; i < len(entries); i++ {
		s.False(entries[i].Timestamp.Before(entries[i-1].Timestamp))
	}
}

func (s *ReporterSuite) TestStatisticsGroupsAndTimeline() {
	s.append(seed{action: "ticket.update", actorID: "u-1", age: 10 * time.Minute})
	s.append(seed{action: "ticket.update", actorID: "u-1", age: 20 * time.Minute})
	s.append(seed{action: "ticket.create", actorID: "u-2", age: 90 * time.Minute})
	s.append(seed{action: "auth.login", severity: audit.SeverityError, status: 401, age: 30 * time.Minute})

	stats, err := s.service.Statistics(context.Background(), reportNow.Add(-2*time.Hour), reportNow)
	s.Require().NoError(err)
	s.Equal(4, stats.TotalEntries)

	s.Require().NotEmpty(stats.ByAction)
	s.Equal(CountItem{Key: "ticket.update", Count: 2}, stats.ByAction[0])

	bySev := map[string]int{}
	for _, item := range stats.BySeverity {
		bySev[item.Key] = item.Count
	}
	s.Equal(3, bySev["info"])
	s.Equal(1, bySev["error"])

	byActor := map[string]int{}
	for _, item := range stats.ByActor {
		byActor[item.Key] = item.Count
	}
	s.Equal(2, byActor["u-1"])
	s.Equal(1, byActor["anonymous"])

	// 11:xx entries and the 10:30 one land in two hourly buckets.
	s.Require().Len(stats.Timeline, 2)
	s.True(stats.Timeline[0].Hour.Before(stats.Timeline[1].Hour))
	s.Equal(1, stats.Timeline[0].Count)
	s.Equal(3, stats.Timeline[1].Count)
}

func (s *ReporterSuite) TestStatisticsRejectsInvertedRange() {
	_, err := s.service.Statistics(context.Background(), reportNow, reportNow.Add(-time.Hour))
	s.Equal(domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))
}

func (s *ReporterSuite) TestSecurityEventsDefaultsAndOrder() {
	s.append(seed{action: "ticket.update", actorID: "u-1", age: time.Hour})
	s.append(seed{action: "ticket.delete", severity: audit.SeverityCritical, actorID: "u-1", status: 500, age: 2 * time.Hour})
	s.append(seed{action: "auth.login", severity: audit.SeverityError, status: 401, age: 3 * time.Hour})
	// Outside the 24h window.
	s.append(seed{action: "ticket.delete", severity: audit.SeverityCritical, actorID: "u-1", status: 500, age: 30 * time.Hour})

	events, err := s.service.SecurityEvents(context.Background(), 0, nil, 0)
	s.Require().NoError(err)
	s.Equal(24, events.WindowHours)
	s.Require().Len(events.Entries, 2)
	s.True(events.Entries[0].Timestamp.After(events.Entries[1].Timestamp))
	s.Empty(events.FailedLogin)
}

func (s *ReporterSuite) TestSecurityEventsSingleSeverity() {
	s.append(seed{action: "ticket.delete", severity: audit.SeverityCritical, actorID: "u-1", status: 500, age: time.Hour})
	s.append(seed{action: "auth.login", severity: audit.SeverityError, status: 401, age: time.Hour})

	events, err := s.service.SecurityEvents(context.Background(), 24, []audit.Severity{audit.SeverityCritical}, 10)
	s.Require().NoError(err)
	s.Require().Len(events.Entries, 1)
	s.Equal(audit.SeverityCritical, events.Entries[0].Severity)
}

func (s *ReporterSuite) TestSecurityEventsFlagsFailedLoginBurst() {
	for i := 0; i < 6; i++ {
		s.append(seed{action: "auth.login", severity: audit.SeverityError, ip: "203.0.113.9", status: 401, age: time.Duration(i) * time.Minute})
	}
	// Below threshold from another source.
	s.append(seed{action: "auth.login", severity: audit.SeverityError, ip: "198.51.100.4", status: 401, age: time.Minute})

	events, err := s.service.SecurityEvents(context.Background(), 24, nil, 100)
	s.Require().NoError(err)
	s.Require().Len(events.FailedLogin, 1)
	burst := events.FailedLogin[0]
	s.Equal("203.0.113.9", burst.Source)
	s.Equal(6, burst.Attempts)
	s.True(burst.Last.After(burst.First))
}

func (s *ReporterSuite) TestComplianceReportFiltersAndMetadata() {
	s.append(seed{action: "ticket.update", actorID: "u-1", age: time.Hour})
	s.append(seed{action: "ticket.delete", actorID: "u-1", age: time.Hour})
	s.append(seed{action: "ticket.update", actorID: "u-2", age: time.Hour})

	report, err := s.service.ComplianceReport(context.Background(), ComplianceRequest{
		From:     reportNow.Add(-2 * time.Hour),
		To:       reportNow,
		Actions:  []string{"ticket.update"},
		ActorIDs: []string{"u-1"},
	})
	s.Require().NoError(err)
	s.Equal(1, report.Metadata.TotalEntries)
	s.Equal(reportNow, report.Metadata.GeneratedAt)
	s.Require().Len(report.ByAction, 1)
	s.Equal("ticket.update", report.ByAction[0].Key)
	s.Empty(report.Entries, "details not requested")
}

func (s *ReporterSuite) TestComplianceReportIncludesDetails() {
	s.append(seed{action: "ticket.update", actorID: "u-1", age: time.Hour})

	report, err := s.service.ComplianceReport(context.Background(), ComplianceRequest{IncludeDetails: true})
	s.Require().NoError(err)
	s.Require().Len(report.Entries, 1)
	s.Equal("ticket.update", report.Entries[0].Action)
}

func (s *ReporterSuite) TestExportMatchesListTotals() {
	for i := 0; i < 7; i++ {
		s.append(seed{action: "ticket.update", actorID: "u-1", age: time.Duration(i) * time.Minute})
	}

	_, page, err := s.service.List(context.Background(), Query{PageSize: 3})
	s.Require().NoError(err)

	export, err := s.service.Export(context.Background(), ExportRequest{Format: FormatJSON})
	s.Require().NoError(err)
	s.Equal("application/json", export.ContentType)
	s.Contains(export.Filename, ".json")

	var rows []map[string]any
	s.Require().NoError(json.Unmarshal(export.Data, &rows))
	s.Equal(page.TotalEntries, len(rows))
}

func (s *ReporterSuite) TestExportCSV() {
	s.append(seed{action: "ticket.update", actorID: "u-1", age: time.Minute})
	s.append(seed{action: "ticket.delete", actorID: "u-1", age: 2 * time.Minute})

	export, err := s.service.Export(context.Background(), ExportRequest{Format: FormatCSV, IncludeDetails: true})
	s.Require().NoError(err)
	s.Equal("text/csv", export.ContentType)
	s.Contains(export.Filename, ".csv")

	records, err := csv.NewReader(bytes.NewReader(export.Data)).ReadAll()
	s.Require().NoError(err)
	s.Require().Len(records, 3, "header plus two rows")
	s.Equal("id", records[0][0])
	s.Contains(records[0], "changes")
}

func (s *ReporterSuite) TestExportRejectsUnknownFormat() {
	_, err := s.service.Export(context.Background(), ExportRequest{Format: "xlsx"})
	s.Equal(domainerrors.CodeInvalidArgument, domainerrors.CodeOf(err))
}
