// Package classifier derives a canonical audit action from the shape of an
// HTTP request. Classification is table-driven: an ordered list of rules is
// evaluated most-specific-first, so sub-path markers like /status or /publish
// always win over the generic verb mapping.
package classifier

import (
	"strings"
)

// Kind tells the change extractor how to treat a classified request.
type Kind string

const (
	KindRead   Kind = "read"
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindAction Kind = "action"
)

// Mutating reports whether the kind changes state.
func (k Kind) Mutating() bool {
	return k != KindRead
}

// Classification is the outcome of classifying one request. A nil
// classification means "do not audit".
type Classification struct {
	Action     string
	TargetType string
	TargetID   string
	Kind       Kind
}

// Rule maps a method and path pattern to an action. Patterns are
// slash-separated segments where "*" matches exactly one segment; an empty
// Method matches any verb.
type Rule struct {
	Method     string
	Pattern    string
	Action     string
	TargetType string
	Kind       Kind

	segments    []string
	specificity int
}

// DefaultRules covers the helpdesk resource surface. Sub-path markers carry
// their own action names; everything else falls through to the verb mapping.
func DefaultRules() []Rule {
	return []Rule{
		{Method: "PATCH", Pattern: "/api/users/*/role", Action: "user.role_change", TargetType: "user", Kind: KindUpdate},
		{Method: "PUT", Pattern: "/api/users/*/role", Action: "user.role_change", TargetType: "user", Kind: KindUpdate},
		{Method: "PATCH", Pattern: "/api/users/*/password", Action: "user.password_change", TargetType: "user", Kind: KindUpdate},
		{Method: "PUT", Pattern: "/api/users/*/password", Action: "user.password_change", TargetType: "user", Kind: KindUpdate},
		{Method: "POST", Pattern: "/api/articles/*/publish", Action: "article.publish", TargetType: "article", Kind: KindAction},
		{Method: "POST", Pattern: "/api/articles/*/unpublish", Action: "article.unpublish", TargetType: "article", Kind: KindAction},
		{Method: "PATCH", Pattern: "/api/tickets/*/status", Action: "ticket.status_change", TargetType: "ticket", Kind: KindUpdate},
		{Method: "PUT", Pattern: "/api/tickets/*/status", Action: "ticket.status_change", TargetType: "ticket", Kind: KindUpdate},
		{Method: "PATCH", Pattern: "/api/tickets/*/assign", Action: "ticket.assign", TargetType: "ticket", Kind: KindUpdate},
		{Method: "POST", Pattern: "/api/tickets/*/assign", Action: "ticket.assign", TargetType: "ticket", Kind: KindUpdate},
		{Method: "POST", Pattern: "/api/tickets/*/comments", Action: "ticket.message_add", TargetType: "ticket", Kind: KindCreate},
		{Method: "POST", Pattern: "/api/tickets/*/messages", Action: "ticket.message_add", TargetType: "ticket", Kind: KindCreate},
		{Method: "POST", Pattern: "/api/auth/login", Action: "auth.login", TargetType: "auth", Kind: KindAction},
		{Method: "POST", Pattern: "/api/auth/logout", Action: "auth.logout", TargetType: "auth", Kind: KindAction},
		{Method: "POST", Pattern: "/api/auth/register", Action: "auth.register", TargetType: "auth", Kind: KindCreate},
		{Method: "POST", Pattern: "/api/auth/password-reset", Action: "auth.password_reset_request", TargetType: "auth", Kind: KindAction},
	}
}

// resourceTypes maps plural path segments to singular target types.
var resourceTypes = map[string]string{
	"users":    "user",
	"tickets":  "ticket",
	"articles": "article",
	"auth":     "auth",
}

// excludedPaths are never audited: probes and operational endpoints.
var excludedPaths = map[string]struct{}{
	"/health":      {},
	"/healthz":     {},
	"/ready":       {},
	"/metrics":     {},
	"/favicon.ico": {},
}

// Classifier evaluates rules most-specific-first. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	rules []Rule
}

// New builds a classifier from the given rules (DefaultRules when none are
// passed). Rules are ordered by specificity, literal segment count first, so
// insertion order never decides a tie against a more specific pattern.
func New(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	compiled := make([]Rule, len(rules))
	copy(compiled, rules)
	for i := range compiled {
		compiled[i].segments = splitPath(compiled[i].Pattern)
		compiled[i].specificity = specificityOf(compiled[i])
	}
	// Stable insertion-sort keeps equal-specificity rules in declaration order.
	for i := 1; i < len(compiled); i++ {
		for j := i; j > 0 && compiled[j].specificity > compiled[j-1].specificity; j-- {
			compiled[j], compiled[j-1] = compiled[j-1], compiled[j]
		}
	}
	return &Classifier{rules: compiled}
}

// Classify maps a request to an action, or nil for requests that must not be
// audited. It never panics: malformed paths degrade to the generic fallback.
// The submitted body is consulted only to locate a target ID for creates.
func (c *Classifier) Classify(method, path string, submitted map[string]any) *Classification {
	method = strings.ToUpper(method)
	if method == "OPTIONS" || method == "HEAD" {
		return nil
	}

	cleaned := pathOnly(path)
	if _, excluded := excludedPaths[cleaned]; excluded {
		return nil
	}

	segs := splitPath(cleaned)
	for i := range c.rules {
		rule := &c.rules[i]
		if rule.Method != "" && rule.Method != method {
			continue
		}
		if !matchSegments(rule.segments, segs) {
			continue
		}
		return &Classification{
			Action:     rule.Action,
			TargetType: rule.TargetType,
			TargetID:   targetIDFrom(segs, submitted),
			Kind:       rule.Kind,
		}
	}

	return c.generic(method, segs, submitted)
}

// generic is the verb-derived fallback: known resources get "{type}.{verb}",
// anything else "{method}.{base}" so mutating requests are never silently
// dropped.
func (c *Classifier) generic(method string, segs []string, submitted map[string]any) *Classification {
	kind := kindForMethod(method)
	base := baseResource(segs)

	targetType, known := resourceTypes[base]
	action := strings.ToLower(method) + "." + base
	if known {
		action = targetType + "." + string(kind)
	} else {
		targetType = base
	}

	return &Classification{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetIDFrom(segs, submitted),
		Kind:       kind,
	}
}

func kindForMethod(method string) Kind {
	switch method {
	case "GET":
		return KindRead
	case "POST":
		return KindCreate
	case "PUT", "PATCH":
		return KindUpdate
	case "DELETE":
		return KindDelete
	default:
		return KindAction
	}
}

// baseResource returns the first meaningful path segment, skipping the /api
// prefix and a version segment like /v1. A path with no usable segments
// degrades to "root" so a mutating request is still audited.
func baseResource(segs []string) string {
	for _, s := range segs {
		if s == "api" || isVersionSegment(s) {
			continue
		}
		return s
	}
	if len(segs) == 0 {
		return "root"
	}
	return segs[len(segs)-1]
}

func isVersionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// targetIDFrom extracts the resource identifier: the path segment after the
// base resource, or an "id" field in the submitted body for creates.
func targetIDFrom(segs []string, submitted map[string]any) string {
	seen := false
	for _, s := range segs {
		if s == "api" || isVersionSegment(s) {
			continue
		}
		if !seen {
			seen = true
			continue
		}
		return s
	}
	if id, ok := submitted["id"].(string); ok {
		return id
	}
	return ""
}

func specificityOf(r Rule) int {
	score := 0
	for _, s := range r.segments {
		if s != "*" {
			score += 2
		} else {
			score++
		}
	}
	if r.Method != "" {
		score++
	}
	return score
}

func matchSegments(pattern, segs []string) bool {
	if len(pattern) != len(segs) {
		return false
	}
	for i, p := range pattern {
		if p != "*" && !strings.EqualFold(p, segs[i]) {
			return false
		}
	}
	return true
}

func pathOnly(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSuffix(path, "/")
}

func splitPath(path string) []string {
	trimmed := strings.Trim(pathOnly(path), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
