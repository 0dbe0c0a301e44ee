package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/ruleunit/internal/engine"
	"github.com/roach88/ruleunit/internal/harness"
	"github.com/roach88/ruleunit/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Kinds    []string
	Rule     string
}

// TraceResult is a session's filtered event stream.
type TraceResult struct {
	Session journal.SessionRecord `json:"session"`
	Events  []TraceEvent          `json:"events"`
}

// TraceEvent is one journaled event with its rendered line.
type TraceEvent struct {
	engine.Event
	Line string `json:"line"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show journaled session events",
		Long: `Show the event stream of a journaled session.

Without --session the journaled sessions are listed.

Examples:
  ruleunit trace --db ./ruleunit.db
  ruleunit trace --db ./ruleunit.db --session 0190... --kind rule_fired
  ruleunit trace --db ./ruleunit.db --session 0190... --rule collectColors`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id to show")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "only show these event kinds")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "only show events of this rule")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	kinds := make([]engine.EventKind, len(opts.Kinds))
	for i, k := range opts.Kinds {
		kinds[i] = engine.EventKind(k)
		if !slices.Contains(engine.EventKinds, kinds[i]) {
			return formatter.Fail(ExitCommandError, ErrCodeBadInput, fmt.Sprintf("unknown event kind %q", k), nil)
		}
	}

	j, err := openJournal(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}
	defer j.Close()

	if opts.Session == "" {
		return listSessions(ctx, formatter, j)
	}

	rec, err := j.ReadSession(ctx, opts.Session)
	if errors.Is(err, sql.ErrNoRows) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("session %q not found", opts.Session), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}

	events, err := j.ReadEvents(ctx, opts.Session, kinds...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}

	result := TraceResult{Session: rec, Events: []TraceEvent{}}
	for _, ev := range events {
		if opts.Rule != "" && ev.Rule != opts.Rule {
			continue
		}
		line, err := harness.FormatEvent(ev)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		result.Events = append(result.Events, TraceEvent{Event: ev, Line: line})
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	w := formatter.Writer
	fmt.Fprintf(w, "Session %s (%s, %d event(s))\n", rec.ID, rec.State, rec.LastSeq)
	if rec.Label != "" {
		fmt.Fprintf(w, "  label: %s\n", rec.Label)
	}
	fmt.Fprintf(w, "  ruleset: %s\n\n", rec.RuleSetHash)
	for _, ev := range result.Events {
		fmt.Fprintln(w, ev.Line)
	}
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "No matching events.")
	}
	return nil
}

func listSessions(ctx context.Context, formatter *OutputFormatter, j *journal.Journal) error {
	sessions, err := j.ListSessions(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}
	if formatter.JSON() {
		return formatter.Success(sessions)
	}
	w := formatter.Writer
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions journaled.")
		return nil
	}
	for _, s := range sessions {
		label := ""
		if s.Label != "" {
			label = " " + s.Label
		}
		fmt.Fprintf(w, "%s %-6s %4d event(s)%s\n", s.ID, s.State, s.LastSeq, label)
	}
	return nil
}

// openJournal opens an existing journal. A missing file is an error rather
// than a fresh database.
func openJournal(path string) (*journal.Journal, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("journal %s: %w", path, err)
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return j, nil
}
