// Package middleware provides the request-pipeline side of the audit
// subsystem: correlation, client metadata, actor extraction, and the
// response-finalize capture hook that feeds the entry writer.
package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"helpdesk/pkg/requestcontext"
)

// TraceHeader carries the correlation ID between services.
const TraceHeader = "X-Request-ID"

// TraceCorrelation attaches a correlation ID to every request: the inbound
// header when present, the active OTel trace ID when one is sampled, a fresh
// UUID otherwise. The ID is echoed in the response header so downstream
// systems can propagate it further.
func TraceCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			}
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := requestcontext.WithTraceID(r.Context(), traceID)
		w.Header().Set(TraceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
