package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const runawayRules = `package rules

rule: grow: {
	when: [{type: "Cell", fields: {gen: "?g"}}]
	then: [{kind: "insert", type: "Cell", fields: {gen: "?g"}}]
}
`

func TestValidateValidRules(t *testing.T) {
	out, err := execute(t, "validate", colorsRules)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 1 rule(s), 2 query(ies) valid")
	assert.NotContains(t, out, "cycle warning")
}

func TestValidateCycleWarning(t *testing.T) {
	out, err := execute(t, "validate", writeRules(t, runawayRules))
	require.NoError(t, err, "cycles are warnings")
	assert.Contains(t, out, "⚠ 1 cycle warning(s)")
	assert.Contains(t, out, "grow → grow (via Cell)")
}

func TestValidateCycleWarningJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", writeRules(t, runawayRules))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Warnings, 1)
	assert.Equal(t, []string{"grow", "grow"}, resp.Data.Warnings[0].Path)
}

func TestValidateReportsEveryError(t *testing.T) {
	dir := writeRules(t, `package rules

rule: first: {
	when: [{type: "A", fields: {n: {op: ">", value: "?x"}}}]
}

rule: second: {
	when: [{type: "B", not: true}]
}
`)
	out, err := execute(t, "--format", "json", "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	codes := make([]string, len(resp.Data.Errors))
	for i, e := range resp.Data.Errors {
		codes[i] = e.Code
	}
	assert.ElementsMatch(t, []string{"E106", "E102"}, codes)
}

func TestValidateMissingDirectory(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E005")
}
