package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_SpecificMarkersWinOverVerbMapping(t *testing.T) {
	c := New()

	tests := []struct {
		name       string
		method     string
		path       string
		wantAction string
		wantType   string
		wantID     string
	}{
		{"ticket status change", "PATCH", "/api/tickets/abc123/status", "ticket.status_change", "ticket", "abc123"},
		{"ticket status via PUT", "PUT", "/api/tickets/abc123/status", "ticket.status_change", "ticket", "abc123"},
		{"ticket assign", "POST", "/api/tickets/t-9/assign", "ticket.assign", "ticket", "t-9"},
		{"ticket comment", "POST", "/api/tickets/t-9/comments", "ticket.message_add", "ticket", "t-9"},
		{"user role change", "PATCH", "/api/users/u-1/role", "user.role_change", "user", "u-1"},
		{"article publish", "POST", "/api/articles/a-5/publish", "article.publish", "article", "a-5"},
		{"login", "POST", "/api/auth/login", "auth.login", "auth", ""},
		{"password reset request", "POST", "/api/auth/password-reset", "auth.password_reset_request", "auth", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.method, tt.path, nil)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantAction, got.Action)
			assert.Equal(t, tt.wantType, got.TargetType)
			assert.Equal(t, tt.wantID, got.TargetID)
		})
	}
}

func TestClassify_VerbMappingForKnownResources(t *testing.T) {
	c := New()

	tests := []struct {
		method     string
		path       string
		wantAction string
		wantKind   Kind
	}{
		{"GET", "/api/tickets", "ticket.read", KindRead},
		{"GET", "/api/tickets/t-1", "ticket.read", KindRead},
		{"POST", "/api/tickets", "ticket.create", KindCreate},
		{"PUT", "/api/tickets/t-1", "ticket.update", KindUpdate},
		{"PATCH", "/api/users/u-1", "user.update", KindUpdate},
		{"DELETE", "/api/articles/a-1", "article.delete", KindDelete},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			got := c.Classify(tt.method, tt.path, nil)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantAction, got.Action)
			assert.Equal(t, tt.wantKind, got.Kind)
		})
	}
}

func TestClassify_ExcludedPathsAndMethods(t *testing.T) {
	c := New()

	assert.Nil(t, c.Classify("GET", "/health", nil))
	assert.Nil(t, c.Classify("GET", "/healthz", nil))
	assert.Nil(t, c.Classify("GET", "/metrics", nil))
	assert.Nil(t, c.Classify("OPTIONS", "/api/tickets", nil))
	assert.Nil(t, c.Classify("HEAD", "/api/tickets/t-1", nil))
}

func TestClassify_GenericFallbackForUnknownResources(t *testing.T) {
	c := New()

	// Mutating requests outside the rule table must not be silently dropped.
	got := c.Classify("POST", "/api/webhooks", nil)
	require.NotNil(t, got)
	assert.Equal(t, "post.webhooks", got.Action)
	assert.Equal(t, "webhooks", got.TargetType)

	got = c.Classify("DELETE", "/api/v1/attachments/f-3", nil)
	require.NotNil(t, got)
	assert.Equal(t, "delete.attachments", got.Action)
	assert.Equal(t, "f-3", got.TargetID)
}

func TestClassify_MalformedInputDegradesSafely(t *testing.T) {
	c := New()

	assert.NotPanics(t, func() {
		c.Classify("", "", nil)
		c.Classify("PATCH", "///", nil)
		c.Classify("POST", "no-leading-slash", map[string]any{"id": 42})
	})
}

func TestClassify_PathWithoutSegmentsFallsBackToRoot(t *testing.T) {
	c := New()

	// A mutating request on a degenerate path is never silently dropped.
	for _, path := range []string{"/", "", "///"} {
		got := c.Classify("POST", path, nil)
		require.NotNil(t, got, "POST %q must classify", path)
		assert.Equal(t, "post.root", got.Action)
		assert.Equal(t, KindCreate, got.Kind)
	}

	got := c.Classify("DELETE", "/", nil)
	require.NotNil(t, got)
	assert.Equal(t, "delete.root", got.Action)
}

func TestClassify_TargetIDFromSubmittedBody(t *testing.T) {
	c := New()

	got := c.Classify("POST", "/api/tickets", map[string]any{"id": "t-77", "subject": "printer on fire"})
	require.NotNil(t, got)
	assert.Equal(t, "ticket.create", got.Action)
	assert.Equal(t, "t-77", got.TargetID)
}

func TestClassify_SpecificityIndependentOfRuleOrder(t *testing.T) {
	// Declare the generic-looking rule before the specific one; the specific
	// pattern must still win.
	rules := append([]Rule{
		{Method: "", Pattern: "/api/tickets/*", Action: "ticket.touch", TargetType: "ticket", Kind: KindUpdate},
	}, DefaultRules()...)
	c := New(rules...)

	got := c.Classify("PATCH", "/api/tickets/abc123/status", nil)
	require.NotNil(t, got)
	assert.Equal(t, "ticket.status_change", got.Action)

	got = c.Classify("PATCH", "/api/tickets/abc123", nil)
	require.NotNil(t, got)
	assert.Equal(t, "ticket.touch", got.Action)
}

func TestClassify_QueryStringIgnored(t *testing.T) {
	c := New()

	got := c.Classify("GET", "/api/tickets?status=open&page=2", nil)
	require.NotNil(t, got)
	assert.Equal(t, "ticket.read", got.Action)
}
