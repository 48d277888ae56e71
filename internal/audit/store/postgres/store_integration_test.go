//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"helpdesk/internal/audit"
	"helpdesk/pkg/sentinel"
	"helpdesk/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = New(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) TearDownSuite() {
	_ = s.pg.DB.Close()
	_ = s.pg.Container.Terminate(context.Background())
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAuditEntries(context.Background()))
}

func entryAt(ts time.Time, action string) *audit.Entry {
	return &audit.Entry{
		TraceID:   "trace-" + action,
		Timestamp: ts,
		Action:    action,
		Severity:  audit.SeverityInfo,
		Actor: audit.Actor{
			Type:  audit.ActorUser,
			ID:    "u-1",
			Email: "agent@example.com",
		},
		Target: audit.Target{Type: "ticket", ID: "t-1"},
		Context: audit.RequestContext{
			Endpoint:       "/api/tickets/t-1",
			Method:         "PATCH",
			StatusCode:     200,
			ResponseTimeMs: 12,
		},
		Details: audit.Details{
			Request:  audit.RequestDetails{Method: "PATCH", Path: "/api/tickets/t-1"},
			Response: audit.ResponseDetails{StatusCode: 200},
			Changes: []audit.Change{
				{Field: "status", OldValue: "open", NewValue: "resolved"},
			},
		},
		Performance: audit.Performance{ResponseTimeMs: 12},
	}
}

func (s *PostgresStoreSuite) TestAppendAssignsSeqAndID() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	first := entryAt(base, "ticket.update")
	second := entryAt(base, "ticket.update")
	s.Require().NoError(s.store.Append(ctx, first))
	s.Require().NoError(s.store.Append(ctx, second))

	s.NotEmpty(first.ID)
	s.NotEmpty(second.ID)
	s.Greater(second.Seq, first.Seq)
}

func (s *PostgresStoreSuite) TestRoundTripPreservesStructuredPayloads() {
	ctx := context.Background()
	entry := entryAt(time.Now().UTC().Truncate(time.Millisecond), "ticket.status_change")
	s.Require().NoError(s.store.Append(ctx, entry))

	got, err := s.store.GetByID(ctx, entry.ID)
	s.Require().NoError(err)
	s.Equal(entry.Action, got.Action)
	s.Equal(entry.Actor.Email, got.Actor.Email)
	s.Equal(entry.Target, got.Target)
	s.Equal(entry.Context, got.Context)
	s.Require().Len(got.Details.Changes, 1)
	s.Equal("status", got.Details.Changes[0].Field)
	s.Equal("open", got.Details.Changes[0].OldValue)
	s.True(entry.Timestamp.Equal(got.Timestamp))
}

func (s *PostgresStoreSuite) TestGetByIDNotFound() {
	_, err := s.store.GetByID(context.Background(), "no-such-id")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestGetByTraceIDOrdersAscending() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 3; i++ {
		e := entryAt(base, fmt.Sprintf("ticket.update.%d", i))
		e.TraceID = "shared-trace"
		// Same timestamp on purpose; seq must break the tie.
		s.Require().NoError(s.store.Append(ctx, e))
	}

	entries, err := s.store.GetByTraceID(ctx, "shared-trace")
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	for i := 1; i < len(entries); i++ {
		s.Greater(entries[i].Seq, entries[i-1].Seq)
	}
}

func (s *PostgresStoreSuite) TestListFiltersAndPaginates() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 25; i++ {
		e := entryAt(base.Add(time.Duration(i)*time.Second), "ticket.update")
		if i%5 == 0 {
			e.Severity = audit.SeverityError
			e.Context.StatusCode = 500
		}
		s.Require().NoError(s.store.Append(ctx, e))
	}

	page, total, err := s.store.List(ctx, audit.Filter{}, 10, 10, audit.SortTimestampDesc)
	s.Require().NoError(err)
	s.Equal(25, total)
	s.Require().Len(page, 10)
	for i := 1; i < len(page); i++ {
		s.False(page[i].Timestamp.After(page[i-1].Timestamp))
	}

	errors, total, err := s.store.List(ctx, audit.Filter{
		Severities: []audit.Severity{audit.SeverityError, audit.SeverityCritical},
	}, 0, 0, audit.SortTimestampDesc)
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Len(errors, 5)
}

func (s *PostgresStoreSuite) TestListSearchMatchesEmailAndAction() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	match := entryAt(base, "user.role_change")
	miss := entryAt(base, "ticket.update")
	miss.Actor.Email = "other@example.com"
	s.Require().NoError(s.store.Append(ctx, match))
	s.Require().NoError(s.store.Append(ctx, miss))

	byAction, total, err := s.store.List(ctx, audit.Filter{Search: "role_change"}, 50, 0, audit.SortTimestampDesc)
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Require().Len(byAction, 1)
	s.Equal("user.role_change", byAction[0].Action)

	byEmail, total, err := s.store.List(ctx, audit.Filter{Search: "AGENT@example"}, 50, 0, audit.SortTimestampDesc)
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Len(byEmail, 1)
}

func (s *PostgresStoreSuite) TestListAllTimeWindow() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 10; i++ {
		s.Require().NoError(s.store.Append(ctx, entryAt(base.Add(time.Duration(i)*time.Hour), "ticket.update")))
	}

	entries, err := s.store.ListAll(ctx, audit.Filter{
		From: base.Add(2 * time.Hour),
		To:   base.Add(5 * time.Hour),
	})
	s.Require().NoError(err)
	s.Len(entries, 4)
	for i := 1; i < len(entries); i++ {
		s.True(entries[i].Timestamp.After(entries[i-1].Timestamp))
	}
}
