package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/ruleunit/internal/compiler"
	"github.com/roach88/ruleunit/internal/engine"
	"github.com/roach88/ruleunit/internal/ir"
)

// Harness executes the steps of one scenario on one session.
type Harness struct {
	session *engine.Session
	rec     *engine.Recorder
	aliases map[string]ir.FactID
	logger  *slog.Logger
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	observers []engine.Observer
	kb        *engine.KnowledgeBase
}

// WithLogger sets the logger handed to the session. Logs are discarded by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver attaches an extra observer (journal, metrics) to the session.
func WithObserver(obs engine.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// WithKnowledgeBase skips loading the rules directory and uses kb instead.
func WithKnowledgeBase(kb *engine.KnowledgeBase) Option {
	return func(o *options) { o.kb = kb }
}

// Run executes a scenario on a fresh session and returns the result.
//
// Execution flow:
// 1. Compile the rules directory into a knowledge base
// 2. Open a session whose id is the scenario name
// 3. Execute the steps, recording expectation failures
// 4. Evaluate assertions and close the session
//
// The returned error reports problems running the scenario at all (rules
// that fail to compile, an unexpected engine error); failed expectations are
// reported through Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := &options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}

	kb := o.kb
	if kb == nil {
		var err error
		if kb, err = loadKnowledgeBase(scenario.Rules); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
	}

	h := &Harness{
		rec:     &engine.Recorder{},
		aliases: make(map[string]ir.FactID),
		logger:  o.logger.With("scenario", scenario.Name),
	}
	sessOpts := []engine.SessionOption{
		engine.WithLogger(o.logger),
		engine.WithIDGenerator(engine.NewFixedGenerator(scenario.Name)),
		engine.WithObserver(h.rec),
	}
	for _, obs := range o.observers {
		sessOpts = append(sessOpts, engine.WithObserver(obs))
	}
	if scenario.MaxFirings > 0 {
		sessOpts = append(sessOpts, engine.WithMaxFirings(scenario.MaxFirings))
	}
	h.session = engine.NewSession(kb, sessOpts...)
	defer h.session.Close()

	result := NewResult(scenario.Name)
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("scenario %s: steps[%d]: %w", scenario.Name, i, err)
		}
	}

	if err := h.snapshot(result); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	if err := h.session.Close(); err != nil {
		return nil, fmt.Errorf("scenario %s: close: %w", scenario.Name, err)
	}
	result.Trace = append(result.Trace, h.rec.Events...)

	h.logger.Debug("scenario complete", "pass", result.Pass, "fired", result.Fired, "events", len(result.Trace))
	return result, nil
}

func loadKnowledgeBase(dir string) (*engine.KnowledgeBase, error) {
	rs, errs := compiler.Load(dir, compiler.CollectAll)
	if len(errs) > 0 {
		return nil, fmt.Errorf("compile rules: %w", errors.Join(errs...))
	}
	return rs.KnowledgeBase()
}

// executeStep runs one step. Failed expectations are added to result; the
// returned error aborts the scenario.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	switch {
	case step.Insert != nil:
		return h.executeInsert(step)
	case step.Retract != "":
		id, ok := h.aliases[step.Retract]
		if !ok {
			return fmt.Errorf("unknown alias %q", step.Retract)
		}
		found, err := h.session.Retract(id)
		if err != nil {
			return err
		}
		if !found {
			result.AddError(fmt.Sprintf("steps[%d]: retract %s: fact %s is not live", index, step.Retract, id))
		}
		return nil
	case step.Update != "":
		return h.executeUpdate(index, step, result)
	case step.Fire != nil:
		return h.executeFire(ctx, index, step.Fire, result)
	case step.Query != "":
		return h.executeQuery(index, step, result)
	default:
		return fmt.Errorf("empty step")
	}
}

func (h *Harness) executeInsert(step Step) error {
	fields, err := ir.FieldsFromMap(step.Insert.Fields)
	if err != nil {
		return fmt.Errorf("insert %s: %w", step.Insert.Type, err)
	}
	id, err := h.session.Insert(ir.Fact{Type: step.Insert.Type, Fields: fields})
	if err != nil {
		return err
	}
	if step.As != "" {
		h.aliases[step.As] = id
	}
	h.logger.Debug("inserted", "type", step.Insert.Type, "fact", id, "alias", step.As)
	return nil
}

// executeUpdate merges step.Fields into the aliased fact.
func (h *Harness) executeUpdate(index int, step Step, result *Result) error {
	id, ok := h.aliases[step.Update]
	if !ok {
		return fmt.Errorf("unknown alias %q", step.Update)
	}
	current, live, err := h.session.Get(id)
	if err != nil {
		return err
	}
	if !live {
		result.AddError(fmt.Sprintf("steps[%d]: update %s: fact %s is not live", index, step.Update, id))
		return nil
	}
	changes, err := ir.FieldsFromMap(step.Fields)
	if err != nil {
		return fmt.Errorf("update %s: %w", step.Update, err)
	}
	maps.Copy(current.Fields, changes)
	if _, err := h.session.Update(id, current); err != nil {
		return err
	}
	return nil
}

func (h *Harness) executeFire(ctx context.Context, index int, fire *FireStep, result *Result) error {
	fired, err := h.session.FireAll(ctx)

	var re *engine.RuntimeError
	switch {
	case err == nil && fire.Error != "":
		result.AddError(fmt.Sprintf("steps[%d]: fire: expected error %s, got success", index, fire.Error))
	case err != nil && !errors.As(err, &re):
		// Context cancellation and the like are not scenario outcomes.
		return err
	case err != nil && fire.Error == "":
		result.AddError(fmt.Sprintf("steps[%d]: fire: unexpected error: %v", index, err))
	case err != nil && string(re.Code) != fire.Error:
		result.AddError(fmt.Sprintf("steps[%d]: fire: expected error %s, got %s", index, fire.Error, re.Code))
	}

	if fire.Fired != nil && fired != *fire.Fired {
		result.AddError(fmt.Sprintf("steps[%d]: fire: expected %d firings, got %d", index, *fire.Fired, fired))
	}
	return nil
}

func (h *Harness) executeQuery(index int, step Step, result *Result) error {
	args := make([]ir.Value, len(step.Args))
	for i, raw := range step.Args {
		v, err := ir.FromAny(raw)
		if err != nil {
			return fmt.Errorf("query %s: args[%d]: %w", step.Query, i, err)
		}
		args[i] = v
	}

	expect := step.Expect
	if expect == nil {
		expect = &QueryExpect{}
	}

	res, err := h.session.Query(step.Query, args...)
	var re *engine.RuntimeError
	switch {
	case err == nil && expect.Error != "":
		result.AddError(fmt.Sprintf("steps[%d]: query %s: expected error %s, got success", index, step.Query, expect.Error))
		return nil
	case err != nil && !errors.As(err, &re):
		return err
	case err != nil && expect.Error == "":
		result.AddError(fmt.Sprintf("steps[%d]: query %s: unexpected error: %v", index, step.Query, err))
		return nil
	case err != nil && string(re.Code) != expect.Error:
		result.AddError(fmt.Sprintf("steps[%d]: query %s: expected error %s, got %s", index, step.Query, expect.Error, re.Code))
		return nil
	case err != nil:
		return nil
	}

	if expect.Count != nil && res.Len() != *expect.Count {
		result.AddError(fmt.Sprintf("steps[%d]: query %s: expected %d rows, got %d", index, step.Query, *expect.Count, res.Len()))
	}
	for _, name := range slices.Sorted(maps.Keys(expect.Values)) {
		want, err := ir.FromAny(expect.Values[name])
		if err != nil {
			return fmt.Errorf("query %s: expect.values.%s: %w", step.Query, name, err)
		}
		got := ir.List(res.Values(name))
		if !ir.Equal(want, got) {
			result.AddError(fmt.Sprintf("steps[%d]: query %s: %s = %s, want %s", index, step.Query, name, ir.Format(got), ir.Format(want)))
		}
	}
	return nil
}

// snapshot captures the end state the assertions look at.
func (h *Harness) snapshot(result *Result) error {
	names, err := h.session.ControlSetNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		cs, err := h.session.ControlSet(name)
		if err != nil {
			return err
		}
		result.ControlSets[name] = cs.Strings()
	}
	facts, err := h.session.Scan("")
	if err != nil {
		return err
	}
	result.Facts = facts
	result.Fired = h.session.Fired()
	// Assertions see the trace up to this point; session_closed is appended
	// after Close.
	result.Trace = h.rec.Events
	h.rec.Events = nil
	return nil
}
