package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions carries the persistent flags shared by every subcommand.
type RootOptions struct {
	Verbose bool
	Format  string
}

// ValidFormats lists the values accepted by --format.
var ValidFormats = []string{"text", "json"}

// NewRootCommand wires the ruleunit command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ruleunit",
		Short: "ruleunit - a small forward-chaining rule engine",
		Long: `Compile CUE rule sets, run them against facts, and check them with
YAML scenarios. Sessions can be journaled to SQLite and inspected later.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if slices.Contains(ValidFormats, opts.Format) {
				return nil
			}
			return NewExitError(ExitCommandError, fmt.Sprintf("--format %q: want one of %v", opts.Format, ValidFormats))
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "log engine activity to stderr")
	flags.StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(
		NewCompileCommand(opts),
		NewValidateCommand(opts),
		NewRunCommand(opts),
		NewTestCommand(opts),
		NewTraceCommand(opts),
		NewReplayCommand(opts),
	)
	return cmd
}
