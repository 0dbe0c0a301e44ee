package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ruleunit/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules-dir>",
		Short: "Validate rules without emitting IR",
		Long: `Validate the CUE rules and queries in a directory.

Reports every descriptor error (unbound variables, bad operators, unknown
bindings) and warns about rules that can re-trigger each other.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	rs, loadErrors := LoadRules(rulesDir, compiler.CollectAll)
	if rs == nil && len(loadErrors) > 0 {
		return formatter.Fail(ExitCommandError, errorCode(loadErrors[0]), errorMessage(loadErrors[0]), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", rs.Files, rulesDir)

	result := ValidationResult{Valid: true}
	for _, err := range loadErrors {
		le := err.(*LoadError)
		ve := compiler.ValidationError{Field: "load", Message: le.Message, Code: le.Code}
		if le.Pos.IsValid() {
			ve.File = le.Pos.Filename()
			ve.Line = le.Pos.Line()
		}
		result.Errors = append(result.Errors, ve)
	}
	result.Errors = append(result.Errors, compiler.Validate(rs)...)
	result.Warnings = compiler.AnalyzeCycles(rs.Rules)
	result.Valid = len(result.Errors) == 0

	if err := outputValidation(formatter, result, len(rs.Rules), len(rs.Queries)); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}
	return nil
}

func outputValidation(formatter *OutputFormatter, result ValidationResult, rules, queries int) error {
	if formatter.JSON() {
		status := "ok"
		if !result.Valid {
			status = "error"
		}
		return formatter.encode(CLIResponse{Status: status, Data: result})
	}

	w := formatter.Writer
	if result.Valid {
		fmt.Fprintf(w, "✓ %d rule(s), %d query(ies) valid\n", rules, queries)
	} else {
		fmt.Fprintf(w, "✗ Validation failed (%d error(s))\n\n", len(result.Errors))
		for _, e := range result.Errors {
			if e.Line > 0 {
				fmt.Fprintf(w, "  %s:%d: ", e.File, e.Line)
			} else {
				fmt.Fprint(w, "  ")
			}
			fmt.Fprintf(w, "[%s] %s: %s\n", e.Code, e.Field, e.Message)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintf(w, "\n⚠ %d cycle warning(s)\n", len(result.Warnings))
		for _, cw := range result.Warnings {
			fmt.Fprintf(w, "  %s (via %s)\n", strings.Join(cw.Path, " → "), strings.Join(cw.Types, ", "))
		}
	}
	return nil
}
