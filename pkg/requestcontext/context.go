// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services and the audit pipeline read them.
// Keeping this package free of net/http lets the audit writer and session
// tracker consume identity and correlation data without pulling in transport
// code.
//
// Usage in services (read values):
//
//	identity := requestcontext.Actor(ctx)
//	traceID := requestcontext.TraceID(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithActor(ctx, identity)
//	ctx = requestcontext.WithTraceID(ctx, traceID)
package requestcontext

import (
	"context"
	"time"
)

// Identity describes the authenticated caller, as supplied by the auth layer.
// A zero Identity means the caller is anonymous.
type Identity struct {
	ID        string
	Email     string
	Role      string
	SessionID string
}

// IsAnonymous reports whether no authenticated identity is attached.
func (i Identity) IsAnonymous() bool {
	return i.ID == ""
}

// Context key types (unexported for encapsulation).
type (
	actorKey       struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	traceIDKey     struct{}
	requestTimeKey struct{}
)

// Actor retrieves the caller identity from the context.
// Returns the zero Identity (anonymous) if not set.
func Actor(ctx context.Context) Identity {
	if actor, ok := ctx.Value(actorKey{}).(Identity); ok {
		return actor
	}
	return Identity{}
}

// WithActor injects a caller identity into the context.
func WithActor(ctx context.Context, actor Identity) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects a client IP address into the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// UserAgent retrieves the User-Agent string from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithUserAgent injects a User-Agent string into the context.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, ua)
}

// TraceID retrieves the request correlation ID from the context.
func TraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithTraceID injects a correlation ID into the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// Now retrieves the request-scoped time from the context, falling back to
// time.Now so callers never observe a zero time.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. All operations within a
// single request share one "now" so audit timestamps stay consistent.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
