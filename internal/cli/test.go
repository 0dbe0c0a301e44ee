package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ruleunit/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter   string // scenario filter (glob pattern on the file name)
	Parallel int    // scenarios run at once
	Golden   string // directory of <scenario>.golden trace files
	Update   bool   // rewrite golden files instead of comparing
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Fired  int      `json:"fired"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>...",
		Short: "Run YAML rule scenarios",
		Long: `Run scenario files against the rule sets they name.

Each scenario inserts, updates and retracts facts, fires the session and
checks control sets, fact counts and the event trace. With --golden the
recorded trace is also compared against <dir>/<scenario>.golden.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  ruleunit test ./scenarios
  ruleunit test ./scenarios --filter "color*"
  ruleunit test ./scenarios --golden ./golden --update
  ruleunit test ./scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 4, "number of scenarios to run at once")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "directory of golden trace files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	files, err := harness.FindScenarios(paths...)
	if err != nil {
		var nf *harness.ScenarioNotFoundError
		if errors.As(err, &nf) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeScanError, err.Error(), nil)
	}
	files, err = filterScenarios(files, opts.Filter)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBadInput, err.Error(), nil)
	}
	if opts.Update && opts.Golden == "" {
		return formatter.Fail(ExitCommandError, ErrCodeBadInput, "--update requires --golden", nil)
	}

	if len(files) == 0 {
		if formatter.JSON() {
			return formatter.Success(TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}
	formatter.VerboseLog("Running %d scenario(s)", len(files))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	suite, err := harness.RunAll(ctx, files, opts.Parallel, harness.WithLogger(formatter.Logger()))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	result, err := collectResults(opts, files, suite)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
	}

	if formatter.JSON() {
		status := "ok"
		if result.Failed > 0 {
			status = "error"
		}
		if err := formatter.encode(CLIResponse{Status: status, Data: result}); err != nil {
			return err
		}
	} else {
		outputTestText(formatter, result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// filterScenarios keeps the files whose base name without extension matches
// the glob pattern.
func filterScenarios(files []string, pattern string) ([]string, error) {
	if pattern == "" {
		return files, nil
	}
	var out []string
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// collectResults merges suite failures with golden comparisons into one
// per-file report, in file order.
func collectResults(opts *TestOptions, files []string, suite *harness.SuiteResult) (TestResult, error) {
	failures := make(map[string]harness.ScenarioFailure, len(suite.Failures))
	for _, f := range suite.Failures {
		failures[f.Path] = f
	}
	byName := make(map[string]*harness.Result, len(suite.Results))
	for _, r := range suite.Results {
		byName[r.Scenario] = r
	}

	out := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, path := range files {
		sr := ScenarioResult{Path: path, Pass: true}
		if f, ok := failures[path]; ok {
			sr.Name = f.Name
			sr.Pass = false
			sr.Errors = f.Errors
		}
		if sr.Name == "" {
			sr.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		if res, ok := byName[sr.Name]; ok {
			sr.Name = res.Scenario
			sr.Fired = res.Fired
			if opts.Golden != "" {
				msg, err := checkGolden(opts, res)
				if err != nil {
					return TestResult{}, err
				}
				if msg != "" {
					sr.Pass = false
					sr.Errors = append(sr.Errors, msg)
				}
			}
		}
		if sr.Pass {
			out.Passed++
		} else {
			out.Failed++
		}
		out.Scenarios = append(out.Scenarios, sr)
	}
	return out, nil
}

// checkGolden compares the result trace with its golden file, or rewrites
// the file with --update. A non-empty message reports a mismatch.
func checkGolden(opts *TestOptions, res *harness.Result) (string, error) {
	got, err := harness.FormatTrace(res.Scenario, res.Trace)
	if err != nil {
		return "", err
	}
	path := filepath.Join(opts.Golden, res.Scenario+".golden")
	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0o755); err != nil {
			return "", fmt.Errorf("creating golden dir: %w", err)
		}
		if err := os.WriteFile(path, got, 0o644); err != nil {
			return "", fmt.Errorf("writing golden file: %w", err)
		}
		return "", nil
	}
	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fmt.Sprintf("golden file %s missing (run with --update)", path), nil
	}
	if err != nil {
		return "", fmt.Errorf("reading golden file: %w", err)
	}
	if !bytes.Equal(want, got) {
		return fmt.Sprintf("trace differs from %s", path), nil
	}
	return "", nil
}

func outputTestText(formatter *OutputFormatter, result TestResult) {
	w := formatter.Writer
	for _, s := range result.Scenarios {
		if s.Pass {
			fmt.Fprintf(w, "✓ %s (%d fired)\n", s.Name, s.Fired)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", s.Name)
		for _, e := range s.Errors {
			for _, line := range strings.Split(e, "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
