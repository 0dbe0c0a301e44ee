package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ruleunit/internal/compiler"
	"github.com/roach88/ruleunit/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled rules and queries.
type CompilationResult struct {
	Hash          string         `json:"hash"`
	EngineVersion string         `json:"engine_version"`
	IRVersion     string         `json:"ir_version"`
	Rules         []ir.RuleSpec  `json:"rules"`
	Queries       []ir.QuerySpec `json:"queries"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <rules-dir>",
		Short: "Compile CUE rules to IR",
		Long: `Compile the CUE rules and queries in a directory to the engine's
intermediate representation.

The output carries the rule set hash that sessions record in the journal.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	rs, loadErrors := LoadRules(rulesDir, compiler.CollectAll)
	if rs == nil && len(loadErrors) > 0 {
		return formatter.Fail(ExitCommandError, errorCode(loadErrors[0]), errorMessage(loadErrors[0]), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", rs.Files, rulesDir)
	for _, r := range rs.Rules {
		formatter.VerboseLog("Compiled rule: %s", r.Name)
	}
	for _, q := range rs.Queries {
		formatter.VerboseLog("Compiled query: %s", q.Name)
	}

	errs := loadErrors
	for _, verr := range compiler.Validate(rs) {
		errs = append(errs, verr)
	}
	if len(errs) > 0 {
		return outputCompileErrors(formatter, errs)
	}

	result := &CompilationResult{
		Hash:          rs.Hash(),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
		Rules:         nonNil(rs.Rules),
		Queries:       nonNil(rs.Queries),
	}

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d rule(s), %d query(ies)\n", len(result.Rules), len(result.Queries))
	fmt.Fprintf(w, "  hash: %s\n\n", result.Hash)

	if len(result.Rules) > 0 {
		fmt.Fprintln(w, "Rules:")
		for _, r := range result.Rules {
			fmt.Fprintf(w, "  %s (salience %d): %s → %s\n", r.Name, r.Salience, strings.Join(r.Types(), ", "), describeThen(r))
		}
		fmt.Fprintln(w)
	}

	if len(result.Queries) > 0 {
		fmt.Fprintln(w, "Queries:")
		for _, q := range result.Queries {
			fmt.Fprintf(w, "  %s(%s): %s\n", q.Name, strings.Join(q.Params, ", "), strings.Join(q.Types(), ", "))
		}
		fmt.Fprintln(w)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote IR to %s\n", outputFile)
	}
	return nil
}

func describeThen(r ir.RuleSpec) string {
	if len(r.Then) == 0 {
		return "(no actions)"
	}
	kinds := make([]string, len(r.Then))
	for i, a := range r.Then {
		kinds[i] = string(a.Kind)
	}
	return strings.Join(kinds, ", ")
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.JSON() {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			cliErrors[i] = CLIError{Code: errorCode(err), Message: errorMessage(err)}
		}
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Compilation failed")
	fmt.Fprintln(w)
	for _, err := range errs {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(w, "%s:%d:%d\n", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		var verr compiler.ValidationError
		if errors.As(err, &verr) && verr.Line > 0 {
			fmt.Fprintf(w, "%s:%d\n", verr.File, verr.Line)
		}
		fmt.Fprintf(w, "  %s: %s\n\n", errorCode(err), errorMessage(err))
	}

	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// errorMessage strips the code and position prefixes errorCode already reports.
func errorMessage(err error) string {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Message
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return verr.Field + ": " + verr.Message
	}
	return err.Error()
}

// writeIRToFile writes the compilation result as indented JSON.
func writeIRToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
