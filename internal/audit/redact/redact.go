// Package redact strips sensitive values from header and field captures
// before they reach the audit store. Redaction never fails: nil input yields
// an empty result.
package redact

import (
	"net/http"
	"strings"
)

// Marker replaces every redacted value.
const Marker = "[REDACTED]"

// sensitiveHeaders are matched against lower-cased header names.
var sensitiveHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"set-cookie":    {},
	"api-key":       {},
	"auth-token":    {},
	"x-api-key":     {},
}

// sensitiveFields are matched against lower-cased body field names.
var sensitiveFields = map[string]struct{}{
	"password":      {},
	"token":         {},
	"secret":        {},
	"apikey":        {},
	"api_key":       {},
	"authorization": {},
}

// Headers returns a copy of h with every sensitive header value replaced by
// the marker. Non-sensitive headers pass through unchanged. A nil map yields
// an empty header set.
func Headers(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for name, values := range h {
		if _, sensitive := sensitiveHeaders[strings.ToLower(name)]; sensitive {
			out[name] = []string{Marker}
			continue
		}
		copied := make([]string, len(values))
		copy(copied, values)
		out[name] = copied
	}
	return out
}

// Fields returns a copy of m with sensitive top-level field values replaced
// by the marker. Nested maps are walked one level deep, which covers the
// payload shapes the change extractor produces.
func Fields(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for key, value := range m {
		if _, sensitive := sensitiveFields[strings.ToLower(key)]; sensitive {
			out[key] = Marker
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[key] = Fields(nested)
			continue
		}
		out[key] = value
	}
	return out
}

// Value redacts a single field's value if the field name is sensitive.
func Value(field string, value any) any {
	if _, sensitive := sensitiveFields[strings.ToLower(field)]; sensitive {
		return Marker
	}
	if nested, ok := value.(map[string]any); ok {
		return Fields(nested)
	}
	return value
}
