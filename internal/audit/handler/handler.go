// Package handler exposes the audit reporting API over HTTP. Authorization is
// assumed to be enforced upstream; these routes are mounted under an
// admin-only prefix.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"helpdesk/internal/audit"
	"helpdesk/internal/audit/reporter"
	"helpdesk/pkg/domainerrors"
)

// Service is the reporter surface the handler depends on.
type Service interface {
	List(ctx context.Context, q reporter.Query) ([]*audit.Entry, reporter.Pagination, error)
	GetByID(ctx context.Context, id string) (*audit.Entry, error)
	GetByTraceID(ctx context.Context, traceID string) ([]*audit.Entry, error)
	Statistics(ctx context.Context, from, to time.Time) (*reporter.Statistics, error)
	SecurityEvents(ctx context.Context, windowHours int, severities []audit.Severity, limit int) (*reporter.SecurityEvents, error)
	ComplianceReport(ctx context.Context, req reporter.ComplianceRequest) (*reporter.ComplianceReport, error)
	Export(ctx context.Context, req reporter.ExportRequest) (*reporter.Export, error)
}

// Handler serves the audit reporting endpoints.
type Handler struct {
	logger   *slog.Logger
	reporter Service
}

// New creates an audit reporting Handler.
func New(reporter Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:   logger,
		reporter: reporter,
	}
}

// Register mounts the reporting routes on the given router. Callers mount the
// result under their admin prefix, e.g. /admin/audit.
func (h *Handler) Register(r chi.Router) {
	r.Get("/logs", h.handleList)
	r.Get("/logs/{id}", h.handleGetByID)
	r.Get("/trace/{traceId}", h.handleGetByTraceID)
	r.Get("/statistics", h.handleStatistics)
	r.Get("/security-events", h.handleSecurityEvents)
	r.Post("/compliance-report", h.handleComplianceReport)
	r.Get("/export", h.handleExport)
}

type listResponse struct {
	Entries    []*audit.Entry      `json:"entries"`
	Pagination reporter.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	entries, pagination, err := h.reporter.List(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	h.writeJSON(w, http.StatusOK, listResponse{Entries: entries, Pagination: pagination})
}

func (h *Handler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	entry, err := h.reporter.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

type traceResponse struct {
	TraceID string         `json:"traceId"`
	Entries []*audit.Entry `json:"entries"`
}

func (h *Handler) handleGetByTraceID(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceId")
	entries, err := h.reporter.GetByTraceID(r.Context(), traceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	h.writeJSON(w, http.StatusOK, traceResponse{TraceID: traceID, Entries: entries})
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	from, err := parseTime(r.URL.Query().Get("from"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	to, err := parseTime(r.URL.Query().Get("to"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	stats, err := h.reporter.Statistics(r.Context(), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	windowHours, err := parseInt(params.Get("windowHours"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := parseInt(params.Get("limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	severities := parseSeverities(params)

	events, err := h.reporter.SecurityEvents(r.Context(), windowHours, severities, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	var req reporter.ComplianceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domainerrors.New(domainerrors.CodeInvalidArgument, "invalid request body"))
		return
	}

	report, err := h.reporter.ComplianceReport(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	from, err := parseTime(params.Get("from"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	to, err := parseTime(params.Get("to"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	export, err := h.reporter.Export(r.Context(), reporter.ExportRequest{
		From:           from,
		To:             to,
		Format:         params.Get("format"),
		IncludeDetails: params.Get("includeDetails") == "true",
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

// queryFromRequest translates list query parameters. Unknown values surface
// as invalid_argument; the reporter revalidates semantics.
func queryFromRequest(r *http.Request) (reporter.Query, error) {
	params := r.URL.Query()

	page, err := parseInt(params.Get("page"))
	if err != nil {
		return reporter.Query{}, err
	}
	pageSize, err := parseInt(params.Get("pageSize"))
	if err != nil {
		return reporter.Query{}, err
	}
	from, err := parseTime(params.Get("from"))
	if err != nil {
		return reporter.Query{}, err
	}
	to, err := parseTime(params.Get("to"))
	if err != nil {
		return reporter.Query{}, err
	}

	return reporter.Query{
		Filter: audit.Filter{
			Action:     params.Get("action"),
			ActorID:    params.Get("actorId"),
			TargetID:   params.Get("targetId"),
			TraceID:    params.Get("traceId"),
			Search:     params.Get("search"),
			Severities: parseSeverities(params),
			From:       from,
			To:         to,
		},
		Page:     page,
		PageSize: pageSize,
		Sort:     audit.Sort(params.Get("sort")),
	}, nil
}

// parseSeverities accepts repeated severity params and comma-separated lists.
// Values are validated by the reporter.
func parseSeverities(params map[string][]string) []audit.Severity {
	var out []audit.Severity
	for _, raw := range params["severity"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, audit.Severity(part))
			}
		}
	}
	return out
}

func parseInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domainerrors.Newf(domainerrors.CodeInvalidArgument, "invalid integer %q", raw)
	}
	return n, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domainerrors.Newf(domainerrors.CodeInvalidArgument, "invalid timestamp %q, expected RFC3339", raw)
	}
	return t, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

// writeError renders the shared error envelope. Uncoded errors become an
// opaque internal error; the cause stays in the logs.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domainerrors.Error
	if !errors.As(err, &de) {
		de = domainerrors.New(domainerrors.CodeInternal, "internal error")
	}

	status := domainerrors.ToHTTPStatus(de.Code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "audit reporting request failed",
			"path", r.URL.Path,
			"error", err,
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   string(de.Code),
		"message": de.Message,
	})
}
