package testutil

import (
	"net/http"

	"helpdesk/pkg/requestcontext"
)

// WithActor attaches an authenticated identity to the request context,
// simulating what the actor middleware would do.
func WithActor(req *http.Request, identity requestcontext.Identity) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), identity))
}

// WithTraceID attaches a correlation ID to the request context, simulating
// the trace correlation middleware.
func WithTraceID(req *http.Request, traceID string) *http.Request {
	return req.WithContext(requestcontext.WithTraceID(req.Context(), traceID))
}
