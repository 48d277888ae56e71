package audit

// SeverityFor derives an entry's severity from the response status and
// latency. Status-based checks take precedence over latency: a 5xx is
// critical and a 4xx is error no matter how fast the handler answered. Only
// successful responses are downgraded to warning for crossing the slow
// threshold.
func SeverityFor(statusCode int, responseTimeMs, slowThresholdMs int64) Severity {
	switch {
	case statusCode >= 500:
		return SeverityCritical
	case statusCode >= 400:
		return SeverityError
	case slowThresholdMs > 0 && responseTimeMs > slowThresholdMs:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
