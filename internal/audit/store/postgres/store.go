// Package postgres implements audit.Store on PostgreSQL. The table is
// insert-only; seq is a BIGSERIAL assigned by the database, which gives the
// monotonic tiebreak the ordering contract requires without coordination
// between writers.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"helpdesk/internal/audit"
	"helpdesk/pkg/sentinel"
)

// Schema creates the audit_entries table. Structured payloads live in JSONB;
// the columns that filters and sorting touch are lifted out so they can be
// indexed.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq              BIGSERIAL PRIMARY KEY,
	id               TEXT NOT NULL UNIQUE,
	trace_id         TEXT NOT NULL,
	ts               TIMESTAMPTZ NOT NULL,
	action           TEXT NOT NULL,
	severity         TEXT NOT NULL,
	actor_id         TEXT NOT NULL DEFAULT '',
	actor_email      TEXT NOT NULL DEFAULT '',
	target_type      TEXT NOT NULL DEFAULT '',
	target_id        TEXT NOT NULL DEFAULT '',
	note             TEXT NOT NULL DEFAULT '',
	actor            JSONB NOT NULL,
	request_context  JSONB NOT NULL,
	details          JSONB NOT NULL,
	performance      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entries_ts ON audit_entries (ts, seq);
CREATE INDEX IF NOT EXISTS idx_audit_entries_trace ON audit_entries (trace_id);
CREATE INDEX IF NOT EXISTS idx_audit_entries_action ON audit_entries (action);
CREATE INDEX IF NOT EXISTS idx_audit_entries_actor ON audit_entries (actor_id);
`

// Store implements audit.Store on a *sql.DB.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the audit table and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Append inserts one entry. The database assigns seq; it is written back onto
// the entry so callers observe the same ordering key a later read would.
func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	actorJSON, err := json.Marshal(entry.Actor)
	if err != nil {
		return fmt.Errorf("marshal actor: %w", err)
	}
	contextJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("marshal request context: %w", err)
	}
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	perfJSON, err := json.Marshal(entry.Performance)
	if err != nil {
		return fmt.Errorf("marshal performance: %w", err)
	}

	query := `
		INSERT INTO audit_entries (
			id, trace_id, ts, action, severity,
			actor_id, actor_email, target_type, target_id, note,
			actor, request_context, details, performance
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING seq
	`
	err = s.db.QueryRowContext(ctx, query,
		entry.ID,
		entry.TraceID,
		entry.Timestamp,
		entry.Action,
		string(entry.Severity),
		entry.Actor.ID,
		entry.Actor.Email,
		entry.Target.Type,
		entry.Target.ID,
		entry.Details.Note,
		actorJSON,
		contextJSON,
		detailsJSON,
		perfJSON,
	).Scan(&entry.Seq)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// GetByID returns the entry with the given ID, or sentinel.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*audit.Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM audit_entries WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query audit entry: %w", err)
	}
	return entry, nil
}

// GetByTraceID returns all entries sharing a correlation ID, oldest first.
func (s *Store) GetByTraceID(ctx context.Context, traceID string) ([]*audit.Entry, error) {
	query := selectColumns + ` FROM audit_entries WHERE trace_id = $1 ORDER BY ts ASC, seq ASC`
	rows, err := s.db.QueryContext(ctx, query, traceID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries by trace: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// List returns one page of matching entries plus the total match count.
func (s *Store) List(ctx context.Context, filter audit.Filter, limit, offset int, order audit.Sort) ([]*audit.Entry, int, error) {
	where, args := buildWhere(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_entries` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	direction := "DESC"
	if order == audit.SortTimestampAsc {
		direction = "ASC"
	}
	query := selectColumns + ` FROM audit_entries` + where +
		fmt.Sprintf(` ORDER BY ts %s, seq %s`, direction, direction)
	if limit > 0 {
		args = append(args, limit, offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListAll returns every matching entry, oldest first.
func (s *Store) ListAll(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	where, args := buildWhere(filter)
	query := selectColumns + ` FROM audit_entries` + where + ` ORDER BY ts ASC, seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

const selectColumns = `
	SELECT seq, id, trace_id, ts, action, severity,
	       target_type, target_id,
	       actor, request_context, details, performance`

// buildWhere assembles the WHERE clause and arguments for a filter. The
// search term matches the same fields Filter.Matches inspects.
func buildWhere(filter audit.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Action != "" {
		conds = append(conds, "action = "+arg(filter.Action))
	}
	if filter.ActorID != "" {
		conds = append(conds, "actor_id = "+arg(filter.ActorID))
	}
	if filter.TargetID != "" {
		conds = append(conds, "target_id = "+arg(filter.TargetID))
	}
	if filter.TraceID != "" {
		conds = append(conds, "trace_id = "+arg(filter.TraceID))
	}
	if len(filter.Severities) > 0 {
		placeholders := make([]string, 0, len(filter.Severities))
		for _, sev := range filter.Severities {
			placeholders = append(placeholders, arg(string(sev)))
		}
		conds = append(conds, "severity IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !filter.From.IsZero() {
		conds = append(conds, "ts >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "ts <= "+arg(filter.To))
	}
	if filter.Search != "" {
		pattern := arg("%" + filter.Search + "%")
		conds = append(conds, fmt.Sprintf(
			"(action ILIKE %[1]s OR actor_email ILIKE %[1]s OR target_id ILIKE %[1]s OR note ILIKE %[1]s)",
			pattern,
		))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*audit.Entry, error) {
	var (
		entry       audit.Entry
		severity    string
		actorJSON   []byte
		contextJSON []byte
		detailsJSON []byte
		perfJSON    []byte
	)
	err := row.Scan(
		&entry.Seq,
		&entry.ID,
		&entry.TraceID,
		&entry.Timestamp,
		&entry.Action,
		&severity,
		&entry.Target.Type,
		&entry.Target.ID,
		&actorJSON,
		&contextJSON,
		&detailsJSON,
		&perfJSON,
	)
	if err != nil {
		return nil, err
	}

	entry.Severity = audit.Severity(severity)
	if err := json.Unmarshal(actorJSON, &entry.Actor); err != nil {
		return nil, fmt.Errorf("unmarshal actor: %w", err)
	}
	if err := json.Unmarshal(contextJSON, &entry.Context); err != nil {
		return nil, fmt.Errorf("unmarshal request context: %w", err)
	}
	if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}
	if err := json.Unmarshal(perfJSON, &entry.Performance); err != nil {
		return nil, fmt.Errorf("unmarshal performance: %w", err)
	}
	entry.Timestamp = entry.Timestamp.UTC()
	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]*audit.Entry, error) {
	var entries []*audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
