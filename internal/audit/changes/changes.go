// Package changes computes the minimal before/after diff recorded on an
// audit entry. Diffs are keyed by the submitted update payload so unrelated
// fields of a resource never leak into the audit trail.
package changes

import (
	"reflect"
	"sort"

	"helpdesk/internal/audit"
	"helpdesk/internal/audit/redact"
)

// ForCreate records the resulting resource representation as new values.
// There is no "before" for a create.
func ForCreate(after map[string]any) []audit.Change {
	if len(after) == 0 {
		return nil
	}
	out := make([]audit.Change, 0, len(after))
	for _, field := range sortedKeys(after) {
		out = append(out, audit.Change{
			Field:    field,
			NewValue: redact.Value(field, after[field]),
		})
	}
	return out
}

// ForUpdate diffs only the fields present in the submitted payload: their
// value in the start-of-request snapshot against their value in the state the
// handler persisted. Fields whose value did not change are skipped.
func ForUpdate(submitted, before, after map[string]any) []audit.Change {
	if len(submitted) == 0 {
		return nil
	}
	out := make([]audit.Change, 0, len(submitted))
	for _, field := range sortedKeys(submitted) {
		oldValue, hadOld := valueOf(before, field)
		newValue, hadNew := valueOf(after, field)
		if !hadNew {
			// Handler did not report the post-update state for this field;
			// fall back to the submitted value.
			newValue = submitted[field]
		}
		if hadOld && reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		out = append(out, audit.Change{
			Field:    field,
			OldValue: redact.Value(field, oldValue),
			NewValue: redact.Value(field, newValue),
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ForDelete records the representation that existed immediately prior to
// deletion. There is no "after" for a delete.
func ForDelete(before map[string]any) []audit.Change {
	if len(before) == 0 {
		return nil
	}
	out := make([]audit.Change, 0, len(before))
	for _, field := range sortedKeys(before) {
		out = append(out, audit.Change{
			Field:    field,
			OldValue: redact.Value(field, before[field]),
		})
	}
	return out
}

func valueOf(m map[string]any, field string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[field]
	return v, ok
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
