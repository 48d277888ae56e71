package changes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk/internal/audit"
	"helpdesk/internal/audit/redact"
)

func TestForUpdate_OnlySubmittedFields(t *testing.T) {
	submitted := map[string]any{"status": "resolved"}
	before := map[string]any{
		"status":   "open",
		"subject":  "printer on fire",
		"assignee": "agent-7",
	}
	after := map[string]any{
		"status":   "resolved",
		"subject":  "printer on fire",
		"assignee": "agent-7",
	}

	got := ForUpdate(submitted, before, after)

	require.Len(t, got, 1)
	assert.Equal(t, audit.Change{Field: "status", OldValue: "open", NewValue: "resolved"}, got[0])
}

func TestForUpdate_UnchangedSubmittedFieldSkipped(t *testing.T) {
	submitted := map[string]any{"status": "open", "priority": "high"}
	before := map[string]any{"status": "open", "priority": "low"}
	after := map[string]any{"status": "open", "priority": "high"}

	got := ForUpdate(submitted, before, after)

	require.Len(t, got, 1)
	assert.Equal(t, "priority", got[0].Field)
}

func TestForUpdate_MissingAfterFallsBackToSubmitted(t *testing.T) {
	submitted := map[string]any{"status": "closed"}
	before := map[string]any{"status": "open"}

	got := ForUpdate(submitted, before, nil)

	require.Len(t, got, 1)
	assert.Equal(t, "open", got[0].OldValue)
	assert.Equal(t, "closed", got[0].NewValue)
}

func TestForUpdate_SensitiveValuesRedacted(t *testing.T) {
	submitted := map[string]any{"password": "new-secret"}
	before := map[string]any{"password": "old-secret"}
	after := map[string]any{"password": "new-secret"}

	got := ForUpdate(submitted, before, after)

	require.Len(t, got, 1)
	assert.Equal(t, redact.Marker, got[0].OldValue)
	assert.Equal(t, redact.Marker, got[0].NewValue)
}

func TestForUpdate_EmptyInputs(t *testing.T) {
	assert.Nil(t, ForUpdate(nil, nil, nil))
	assert.Nil(t, ForUpdate(map[string]any{}, nil, nil))
	assert.Nil(t, ForUpdate(map[string]any{"status": "open"}, map[string]any{"status": "open"}, map[string]any{"status": "open"}))
}

func TestForCreate(t *testing.T) {
	got := ForCreate(map[string]any{"subject": "help", "password": "x"})

	require.Len(t, got, 2)
	// Keys sorted for deterministic output.
	assert.Equal(t, "password", got[0].Field)
	assert.Equal(t, redact.Marker, got[0].NewValue)
	assert.Nil(t, got[0].OldValue)
	assert.Equal(t, "subject", got[1].Field)
	assert.Equal(t, "help", got[1].NewValue)
}

func TestForDelete(t *testing.T) {
	got := ForDelete(map[string]any{"subject": "old ticket"})

	require.Len(t, got, 1)
	assert.Equal(t, "old ticket", got[0].OldValue)
	assert.Nil(t, got[0].NewValue)
}

func TestForCreateAndDelete_Empty(t *testing.T) {
	assert.Nil(t, ForCreate(nil))
	assert.Nil(t, ForDelete(nil))
}
