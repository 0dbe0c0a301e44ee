package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleunit/internal/ir"
)

func TestReplayWholeSession(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	runJournaled(t, db, "colors-1")

	out, err := execute(t, "replay", "--db", db, "--session", "colors-1")
	require.NoError(t, err)
	assert.Contains(t, out, "3 fact(s), 3 firing(s)")
	assert.Contains(t, out, `#3 Measurement {"key":"color","value":"blue"}`)
}

func TestReplayUpToSeq(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	runJournaled(t, db, "colors-1")

	out, err := execute(t, "--format", "json", "replay", "--db", db, "--session", "colors-1", "--seq", "4")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(4), resp.Data.Seq)
	assert.Equal(t, 0, resp.Data.Fired)
	assert.Equal(t, map[string]int{"Measurement": 2}, resp.Data.Types)
	require.Len(t, resp.Data.Facts, 2)
	assert.Equal(t, ir.String("red"), resp.Data.Facts[0].Fact.Fields["value"])
}

func TestReplayUnknownSession(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	runJournaled(t, db, "colors-1")

	out, err := execute(t, "replay", "--db", db, "--session", "other")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "session \"other\" not found")
}

func TestReplayRequiresSession(t *testing.T) {
	_, err := execute(t, "replay", "--db", "x.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestReplayNegativeSeq(t *testing.T) {
	_, err := execute(t, "replay", "--db", "x.db", "--session", "s", "--seq", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
