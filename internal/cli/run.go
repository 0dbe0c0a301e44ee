package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ruleunit/internal/engine"
	"github.com/roach88/ruleunit/internal/ir"
	"github.com/roach88/ruleunit/internal/journal"
	"github.com/roach88/ruleunit/internal/metrics"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	FactsFile  string
	Query      string
	Args       []string
	MaxFirings int
	Journal    string
	Label      string
	Metrics    bool

	// IDGenerator allows overriding the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator
}

// FactsFile is the YAML document read by --facts.
type FactsFile struct {
	Facts []FactEntry `yaml:"facts"`
}

// FactEntry is one fact to insert. A positive ID inserts with that identity.
type FactEntry struct {
	ID     int64          `yaml:"id,omitempty"`
	Type   string         `yaml:"type"`
	Fields map[string]any `yaml:"fields"`
}

// RunResult is the outcome of one session run.
type RunResult struct {
	SessionID   string              `json:"session_id"`
	RuleSetHash string              `json:"ruleset_hash"`
	Fired       int                 `json:"fired"`
	ControlSets map[string][]string `json:"control_sets"`
	Facts       []engine.StoredFact `json:"facts"`
	Query       *engine.QueryResult `json:"query,omitempty"`
	Error       *CLIError           `json:"error,omitempty"`
	Metrics     string              `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <rules-dir>",
		Short: "Run a rule set against facts",
		Long: `Open a session over the rules in a directory, insert the facts from
a YAML file, fire all activations and print the resulting state.

The facts file has the form:

  facts:
    - type: Measurement
      fields: {key: color, value: red}

Example:
  ruleunit run ./rules --facts facts.yaml
  ruleunit run ./rules --facts facts.yaml --query FindColorValue --arg green
  ruleunit run ./rules --facts facts.yaml --journal ./ruleunit.db --metrics`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.FactsFile, "facts", "", "YAML file of facts to insert")
	cmd.Flags().StringVar(&opts.Query, "query", "", "query to run after firing")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "query argument (repeatable)")
	cmd.Flags().IntVar(&opts.MaxFirings, "max-firings", engine.DefaultMaxFirings, "firing cap per fireAll")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal database")
	cmd.Flags().StringVar(&opts.Label, "label", "", "label recorded with the journaled session")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print session metrics")

	return cmd
}

func runSession(opts *RunOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := formatter.Logger()

	if opts.MaxFirings <= 0 {
		return formatter.Fail(ExitCommandError, ErrCodeBadInput, "--max-firings must be positive", nil)
	}

	rs, kb, err := LoadKnowledgeBase(rulesDir)
	if err != nil {
		return formatter.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
	}
	formatter.VerboseLog("Loaded %d rule(s), %d query(ies) from %s", len(rs.Rules), len(rs.Queries), rulesDir)

	var facts []FactEntry
	if opts.FactsFile != "" {
		facts, err = readFactsFile(opts.FactsFile)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeBadInput, err.Error(), nil)
		}
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := opts.IDGenerator
	if gen == nil {
		gen = engine.UUIDv7Generator{}
	}
	sessionOpts := []engine.SessionOption{
		engine.WithMaxFirings(opts.MaxFirings),
		engine.WithLogger(logger),
		engine.WithIDGenerator(gen),
	}

	var writer *journal.Writer
	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, fmt.Sprintf("opening journal: %v", err), nil)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		writer = journal.NewWriter(ctx, j, journal.SessionRecord{
			RuleSetHash: rs.Hash(),
			MaxFirings:  opts.MaxFirings,
			Label:       opts.Label,
		}, logger)
		sessionOpts = append(sessionOpts, engine.WithObserver(writer))
	}

	var collector *metrics.Collector
	if opts.Metrics {
		collector = metrics.NewCollector(metrics.DefaultNamespace, nil)
		sessionOpts = append(sessionOpts, engine.WithObserver(collector))
	}

	session := engine.NewSession(kb, sessionOpts...)
	result := &RunResult{
		SessionID:   session.ID(),
		RuleSetHash: rs.Hash(),
		ControlSets: map[string][]string{},
	}

	for i, fe := range facts {
		if err := insertFact(session, fe); err != nil {
			_ = session.Close()
			return formatter.Fail(ExitCommandError, ErrCodeBadInput, fmt.Sprintf("facts[%d]: %v", i, err), nil)
		}
	}
	formatter.VerboseLog("Inserted %d fact(s)", len(facts))

	fired, fireErr := session.FireAll(ctx)
	result.Fired = fired
	if fireErr != nil {
		result.Error = &CLIError{Code: errorCode(fireErr), Message: fireErr.Error()}
	}

	if opts.Query != "" && fireErr == nil {
		args := make([]ir.Value, len(opts.Args))
		for i, a := range opts.Args {
			args[i] = ir.ParseValue(a)
		}
		qr, err := session.Query(opts.Query, args...)
		if err != nil {
			_ = session.Close()
			return formatter.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
		}
		result.Query = qr
	}

	if err := snapshotSession(session, result); err != nil {
		_ = session.Close()
		return formatter.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
	}
	if err := session.Close(); err != nil {
		return formatter.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
	}

	if collector != nil {
		var buf bytes.Buffer
		if err := collector.WriteText(&buf); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		result.Metrics = buf.String()
	}
	if writer != nil {
		if err := writer.Err(); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, fmt.Sprintf("writing journal: %v", err), nil)
		}
	}

	if err := outputRunResult(formatter, result); err != nil {
		return err
	}

	switch {
	case fireErr == nil:
		return nil
	case errors.Is(fireErr, context.Canceled):
		return WrapExitError(ExitCommandError, "interrupted", fireErr)
	default:
		return WrapExitError(ExitFailure, "fireAll failed", fireErr)
	}
}

func readFactsFile(path string) ([]FactEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading facts file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var ff FactsFile
	if err := dec.Decode(&ff); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing facts file %s: %w", path, err)
	}
	for i, fe := range ff.Facts {
		if fe.Type == "" {
			return nil, fmt.Errorf("facts[%d]: type is required", i)
		}
		if fe.ID < 0 {
			return nil, fmt.Errorf("facts[%d]: id must be positive", i)
		}
	}
	return ff.Facts, nil
}

func insertFact(session *engine.Session, fe FactEntry) error {
	fields, err := ir.FieldsFromMap(fe.Fields)
	if err != nil {
		return err
	}
	f := ir.Fact{Type: fe.Type, Fields: fields}
	if fe.ID > 0 {
		return session.InsertWithID(ir.FactID(fe.ID), f)
	}
	_, err = session.Insert(f)
	return err
}

// snapshotSession copies control sets and facts before the session closes.
func snapshotSession(session *engine.Session, result *RunResult) error {
	names, err := session.ControlSetNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		cs, err := session.ControlSet(name)
		if err != nil {
			return err
		}
		result.ControlSets[name] = cs.Strings()
	}
	facts, err := session.Scan("")
	if err != nil {
		return err
	}
	result.Facts = facts
	return nil
}

func outputRunResult(formatter *OutputFormatter, result *RunResult) error {
	if formatter.JSON() {
		status := "ok"
		if result.Error != nil {
			status = "error"
		}
		return formatter.encode(CLIResponse{Status: status, Data: result, Error: result.Error})
	}

	w := formatter.Writer
	if result.Error != nil {
		fmt.Fprintf(w, "✗ Session %s stopped after %d firing(s)\n", result.SessionID, result.Fired)
		fmt.Fprintf(w, "  %s\n", result.Error.Message)
	} else {
		fmt.Fprintf(w, "✓ Session %s fired %d rule(s)\n", result.SessionID, result.Fired)
	}

	if len(result.ControlSets) > 0 {
		fmt.Fprintln(w, "\nControl sets:")
		for _, name := range slices.Sorted(maps.Keys(result.ControlSets)) {
			fmt.Fprintf(w, "  %s: %v\n", name, result.ControlSets[name])
		}
	}

	fmt.Fprintf(w, "\nFacts (%d):\n", len(result.Facts))
	for _, sf := range result.Facts {
		fields, err := ir.MarshalCanonical(sf.Fact.Fields)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s %s %s\n", sf.ID, sf.Fact.Type, fields)
	}

	if result.Query != nil {
		fmt.Fprintf(w, "\nQuery %s: %d row(s)\n", result.Query.Query, result.Query.Len())
		for _, row := range result.Query.Rows {
			vars, err := ir.MarshalCanonical(row.Vars)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  %v %s\n", row.Tuple, vars)
		}
	}

	if result.Metrics != "" {
		fmt.Fprintf(w, "\nMetrics:\n%s", result.Metrics)
	}
	return nil
}
