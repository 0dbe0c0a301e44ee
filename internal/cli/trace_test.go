package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceListsSessions(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	runJournaled(t, db, "colors-a")
	runJournaled(t, db, "colors-b")

	out, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "colors-a closed"))
	assert.True(t, strings.HasPrefix(lines[1], "colors-b closed"))
	assert.Contains(t, lines[0], "colors")
}

func TestTraceSession(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	runJournaled(t, db, "colors-1")

	out, err := execute(t, "trace", "--db", db, "--session", "colors-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Session colors-1 (closed, 14 event(s))")
	assert.Contains(t, out, "1 session_opened")
	assert.Contains(t, out, `2 fact_inserted #1 Measurement {"key":"color","value":"red"}`)
	assert.Contains(t, out, "14 session_closed")
}

func TestTraceFilters(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	runJournaled(t, db, "colors-1")

	out, err := execute(t, "--format", "json", "trace", "--db", db, "--session", "colors-1",
		"--kind", "rule_fired,control_set_added", "--rule", "collectColors")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "colors-1", resp.Data.Session.ID)
	assert.Equal(t, "colors", resp.Data.Session.Label)
	require.Len(t, resp.Data.Events, 3, "control_set_added events carry no rule")
	for _, ev := range resp.Data.Events {
		assert.Equal(t, "collectColors", ev.Rule)
		assert.Contains(t, ev.Line, "rule_fired collectColors")
	}
}

func TestTraceUnknownKind(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	runJournaled(t, db, "colors-1")

	out, err := execute(t, "trace", "--db", db, "--session", "colors-1", "--kind", "fired")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `unknown event kind "fired"`)
}

func TestTraceUnknownSession(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	runJournaled(t, db, "colors-1")

	out, err := execute(t, "trace", "--db", db, "--session", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E005")
}

func TestTraceMissingDatabase(t *testing.T) {
	out, err := execute(t, "trace", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeJournal)
}
