package audit

import (
	"context"
	"sync"
)

// Capture is the per-request recorder business handlers use to feed the
// change extractor. The capture middleware places one in the request context;
// handlers snapshot the resource at the start of handling (Before) and record
// the persisted result (After). The writer reads the recorder after the
// response has been finalized, so all methods are safe for concurrent use.
type Capture struct {
	mu        sync.Mutex
	before    map[string]any
	after     map[string]any
	submitted map[string]any
	target    *Target
}

// SetBefore records the resource state snapshotted at the start of request
// handling, prior to any mutation.
func (c *Capture) SetBefore(state map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.before = state
}

// SetAfter records the resource representation the handler persisted or
// returned.
func (c *Capture) SetAfter(state map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.after = state
}

// SetSubmitted overrides the parsed update payload. The capture middleware
// fills this from the request body; handlers only call it when the effective
// payload differs from the raw body.
func (c *Capture) SetSubmitted(payload map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted = payload
}

// SetTarget overrides the classifier-derived target, e.g. when the resource
// ID is only known after creation.
func (c *Capture) SetTarget(resourceType, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = &Target{Type: resourceType, ID: id}
}

// Snapshot returns the recorded state. The returned maps are the originals;
// callers must not mutate them.
func (c *Capture) Snapshot() (before, after, submitted map[string]any, target *Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.before, c.after, c.submitted, c.target
}

type captureKey struct{}

// WithCapture attaches a fresh recorder to the context and returns both.
func WithCapture(ctx context.Context) (context.Context, *Capture) {
	c := &Capture{}
	return context.WithValue(ctx, captureKey{}, c), c
}

// CaptureFrom returns the recorder attached to the context, or nil when the
// request is not being audited. Callers must nil-check.
func CaptureFrom(ctx context.Context) *Capture {
	if c, ok := ctx.Value(captureKey{}).(*Capture); ok {
		return c
	}
	return nil
}
