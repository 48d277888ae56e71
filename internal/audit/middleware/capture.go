package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	"helpdesk/internal/audit"
	"helpdesk/internal/audit/perf"
	"helpdesk/internal/audit/writer"
	"helpdesk/pkg/requestcontext"
)

// responseRecorder observes what the handler writes without altering it.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	bytes       int64
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.status = http.StatusOK
		r.wroteHeader = true
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

// Flush passes through so streaming handlers keep working under capture.
func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack passes through so connection upgrades (WebSocket) keep working
// under capture.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := r.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Capture is the response-finalize hook of the audit pipeline. It snapshots
// performance counters at request start, tees a bounded copy of the request
// body, records what the handler writes, and — after the response has been
// finalized — hands one submission to the writer. The handler's response is
// never delayed by audit work; Submit only enqueues.
//
// Apply after TraceCorrelation, ClientMetadata and ActorFromJWT so the
// context is fully populated.
func Capture(auditWriter *writer.Writer, maxBodyBytes int64) func(http.Handler) http.Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 64 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := perf.Take()
			bodyCopy, bodySize := teeBody(r, maxBodyBytes)

			ctx, capture := audit.WithCapture(r.Context())
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(ctx))

			// Response is finalized; everything below is off the latency
			// path of the next request only insofar as Submit enqueues.
			submitted := parseJSONBody(r.Header.Get("Content-Type"), bodyCopy)
			before, after, submittedOverride, targetOverride := capture.Snapshot()
			if submittedOverride != nil {
				submitted = submittedOverride
			}

			auditWriter.Submit(writer.Ingestion{
				Method:           r.Method,
				Path:             r.URL.Path,
				Query:            r.URL.RawQuery,
				RequestHeaders:   r.Header,
				ResponseHeaders:  rec.Header(),
				StatusCode:       rec.status,
				RequestBodySize:  bodySize,
				ResponseBodySize: rec.bytes,
				SubmittedBody:    submitted,
				Before:           before,
				After:            after,
				TargetOverride:   targetOverride,
				Actor:            requestcontext.Actor(ctx),
				IPAddress:        requestcontext.ClientIP(ctx),
				UserAgent:        requestcontext.UserAgent(ctx),
				TraceID:          requestcontext.TraceID(ctx),
				Start:            start,
				End:              perf.Take(),
			})
		})
	}
}

// teeBody reads up to maxBytes of the request body for audit capture and
// restores the stream so the handler sees the full body unchanged.
func teeBody(r *http.Request, maxBytes int64) ([]byte, int64) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, 0
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		r.Body = io.NopCloser(bytes.NewReader(buf))
		return nil, int64(len(buf))
	}

	size := int64(len(buf))
	if r.ContentLength > size {
		size = r.ContentLength
	}

	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(buf), r.Body))
	return buf, size
}

// parseJSONBody decodes the captured body into a field map for the change
// extractor. Non-JSON or malformed bodies yield nil; capture never fails a
// request.
func parseJSONBody(contentType string, body []byte) map[string]any {
	if len(body) == 0 || !strings.Contains(contentType, "application/json") {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil
	}
	return m
}
