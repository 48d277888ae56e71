package redact

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaders(t *testing.T) {
	in := http.Header{
		"Authorization": {"Bearer secret-token"},
		"Cookie":        {"session=abc", "theme=dark"},
		"Set-Cookie":    {"session=def"},
		"Api-Key":       {"key-123"},
		"Auth-Token":    {"tok-456"},
		"Content-Type":  {"application/json"},
		"X-Request-Id":  {"trace-1"},
	}

	out := Headers(in)

	for _, name := range []string{"Authorization", "Cookie", "Set-Cookie", "Api-Key", "Auth-Token"} {
		assert.Equal(t, []string{Marker}, out[name], "header %s must be redacted", name)
	}
	assert.Equal(t, []string{"application/json"}, out["Content-Type"])
	assert.Equal(t, []string{"trace-1"}, out["X-Request-Id"])

	// Input must not be mutated.
	assert.Equal(t, []string{"Bearer secret-token"}, in["Authorization"])
}

func TestHeaders_CaseInsensitive(t *testing.T) {
	// Header maps built by hand may carry non-canonical names.
	in := http.Header{"authorization": {"Bearer x"}, "COOKIE": {"a=b"}}
	out := Headers(in)
	assert.Equal(t, []string{Marker}, out["authorization"])
	assert.Equal(t, []string{Marker}, out["COOKIE"])
}

func TestHeaders_NilInput(t *testing.T) {
	assert.NotPanics(t, func() {
		out := Headers(nil)
		assert.Empty(t, out)
	})
}

func TestFields(t *testing.T) {
	in := map[string]any{
		"email":    "user@example.com",
		"password": "hunter2",
		"Token":    "abc",
		"profile": map[string]any{
			"api_key": "k",
			"name":    "Sam",
		},
	}

	out := Fields(in)

	assert.Equal(t, "user@example.com", out["email"])
	assert.Equal(t, Marker, out["password"])
	assert.Equal(t, Marker, out["Token"])
	profile := out["profile"].(map[string]any)
	assert.Equal(t, Marker, profile["api_key"])
	assert.Equal(t, "Sam", profile["name"])

	// Original untouched.
	assert.Equal(t, "hunter2", in["password"])
}

func TestFields_NilInput(t *testing.T) {
	assert.Nil(t, Fields(nil))
}

func TestValue(t *testing.T) {
	assert.Equal(t, Marker, Value("password", "hunter2"))
	assert.Equal(t, "open", Value("status", "open"))
}
