package reporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"helpdesk/internal/audit"
	"helpdesk/pkg/domainerrors"
)

// exportRow is the flat shape used for JSON exports without details. CSV
// exports emit the same columns.
type exportRow struct {
	ID             string    `json:"id"`
	TraceID        string    `json:"traceId"`
	Timestamp      time.Time `json:"timestamp"`
	Action         string    `json:"action"`
	Severity       string    `json:"severity"`
	ActorType      string    `json:"actorType"`
	ActorID        string    `json:"actorId,omitempty"`
	ActorEmail     string    `json:"actorEmail,omitempty"`
	TargetType     string    `json:"targetType,omitempty"`
	TargetID       string    `json:"targetId,omitempty"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	StatusCode     int       `json:"statusCode"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
}

// Export materializes the window as a downloadable payload. The row count
// always equals what List and Statistics report over the same window.
func (s *Service) Export(ctx context.Context, req ExportRequest) (*Export, error) {
	if req.Format == "" {
		req.Format = FormatJSON
	}
	if req.Format != FormatJSON && req.Format != FormatCSV {
		return nil, domainerrors.Newf(domainerrors.CodeInvalidArgument, "unknown export format %q", req.Format)
	}
	if !req.From.IsZero() && !req.To.IsZero() && req.To.Before(req.From) {
		return nil, domainerrors.New(domainerrors.CodeInvalidArgument, "date range end precedes start")
	}

	entries, err := s.store.ListAll(ctx, audit.Filter{From: req.From, To: req.To})
	if err != nil {
		return nil, storeErr("materialize export", err)
	}

	stamp := s.now().UTC().Format("20060102-150405")
	switch req.Format {
	case FormatCSV:
		data, err := marshalCSV(entries, req.IncludeDetails)
		if err != nil {
			return nil, fmt.Errorf("encode csv export: %w", err)
		}
		return &Export{
			Data:        data,
			ContentType: "text/csv",
			Filename:    "audit-export-" + stamp + ".csv",
		}, nil
	default:
		data, err := marshalJSON(entries, req.IncludeDetails)
		if err != nil {
			return nil, fmt.Errorf("encode json export: %w", err)
		}
		return &Export{
			Data:        data,
			ContentType: "application/json",
			Filename:    "audit-export-" + stamp + ".json",
		}, nil
	}
}

func marshalJSON(entries []*audit.Entry, includeDetails bool) ([]byte, error) {
	if includeDetails {
		return json.MarshalIndent(entries, "", "  ")
	}
	rows := make([]exportRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, toRow(e))
	}
	return json.MarshalIndent(rows, "", "  ")
}

func marshalCSV(entries []*audit.Entry, includeDetails bool) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"id", "traceId", "timestamp", "action", "severity",
		"actorType", "actorId", "actorEmail", "targetType", "targetId",
		"endpoint", "method", "statusCode", "responseTimeMs",
	}
	if includeDetails {
		header = append(header, "changes", "note")
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, e := range entries {
		row := toRow(e)
		record := []string{
			row.ID,
			row.TraceID,
			row.Timestamp.UTC().Format(time.RFC3339),
			row.Action,
			row.Severity,
			row.ActorType,
			row.ActorID,
			row.ActorEmail,
			row.TargetType,
			row.TargetID,
			row.Endpoint,
			row.Method,
			strconv.Itoa(row.StatusCode),
			strconv.FormatInt(row.ResponseTimeMs, 10),
		}
		if includeDetails {
			changes := ""
			if len(e.Details.Changes) > 0 {
				encoded, err := json.Marshal(e.Details.Changes)
				if err != nil {
					return nil, err
				}
				changes = string(encoded)
			}
			record = append(record, changes, e.Details.Note)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toRow(e *audit.Entry) exportRow {
	return exportRow{
		ID:             e.ID,
		TraceID:        e.TraceID,
		Timestamp:      e.Timestamp.UTC(),
		Action:         e.Action,
		Severity:       string(e.Severity),
		ActorType:      string(e.Actor.Type),
		ActorID:        e.Actor.ID,
		ActorEmail:     e.Actor.Email,
		TargetType:     e.Target.Type,
		TargetID:       e.Target.ID,
		Endpoint:       e.Context.Endpoint,
		Method:         e.Context.Method,
		StatusCode:     e.Context.StatusCode,
		ResponseTimeMs: e.Context.ResponseTimeMs,
	}
}
