package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios", "testdata/scenarios/colors.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "colors.yaml"),
		filepath.Join("testdata", "scenarios", "runaway.yaml"),
	}, paths)

	_, err = FindScenarios("testdata/none")
	var nf *ScenarioNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "testdata/none", nf.Path)
}

func TestRunAll(t *testing.T) {
	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("name: [\n"), 0o644))

	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	paths = append(paths, broken)

	suite, err := RunAll(context.Background(), paths, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, suite.Total)
	assert.Equal(t, 2, suite.Passed)
	assert.Equal(t, 1, suite.Failed)
	require.Len(t, suite.Results, 2)
	assert.Equal(t, "colors", suite.Results[0].Scenario)
	assert.Equal(t, "runaway", suite.Results[1].Scenario)
	require.Len(t, suite.Failures, 1)
	assert.Equal(t, broken, suite.Failures[0].Path)
	assert.Contains(t, suite.Failures[0].Errors[0], "failed to parse YAML")
}

func TestRunAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunAll(ctx, []string{"testdata/scenarios/colors.yaml"}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunAll_Examples(t *testing.T) {
	paths, err := FindScenarios(
		filepath.Join("..", "..", "examples", "colors", "scenarios"),
		filepath.Join("..", "..", "examples", "computers", "scenarios"),
	)
	require.NoError(t, err)
	require.Len(t, paths, 4)

	suite, err := RunAll(context.Background(), paths, 0)
	require.NoError(t, err)
	for _, f := range suite.Failures {
		t.Errorf("%s: %v", f.Path, f.Errors)
	}
	assert.Equal(t, 4, suite.Passed)
}
