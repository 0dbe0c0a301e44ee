package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ruleunit/internal/engine"
	"github.com/roach88/ruleunit/internal/ir"
)

// FormatTrace renders a trace as one line per event:
//
//	<seq> <kind> <details>
//
// Facts, bindings and control set values use canonical JSON, so the output
// is byte-stable across runs and platforms.
func FormatTrace(name string, trace []engine.Event) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# scenario %s\n", name)
	for _, ev := range trace {
		line, err := FormatEvent(ev)
		if err != nil {
			return nil, fmt.Errorf("seq %d: %w", ev.Seq, err)
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// FormatEvent renders a single event. The session id is omitted.
func FormatEvent(ev engine.Event) (string, error) {
	head := fmt.Sprintf("%d %s", ev.Seq, ev.Kind)
	switch ev.Kind {
	case engine.EventFactInserted, engine.EventFactRetracted, engine.EventFactUpdated:
		if ev.Fact == nil {
			return head + " " + ev.FactID.String(), nil
		}
		fields, err := ir.MarshalCanonical(ev.Fact.Fields)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s %s", head, ev.FactID, ev.Fact.Type, fields), nil
	case engine.EventActivationCreated, engine.EventRuleFired:
		vars := []byte("{}")
		if ev.Binding != nil {
			var err error
			if vars, err = ir.MarshalCanonical(ev.Binding.Vars); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("%s %s %s %s", head, ev.Rule, formatIDs(ev.Facts), vars), nil
	case engine.EventActivationCancelled:
		return fmt.Sprintf("%s %s %s", head, ev.Rule, formatIDs(ev.Facts)), nil
	case engine.EventActionFailed:
		return fmt.Sprintf("%s %s %s: %s", head, ev.Rule, formatIDs(ev.Facts), ev.Error), nil
	case engine.EventCycleExceeded, engine.EventHalted:
		return head + " " + ev.Rule, nil
	case engine.EventControlSetAdded, engine.EventControlSetRemoved:
		v, err := ir.MarshalCanonical(ev.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", head, ev.Set, v), nil
	default:
		return head, nil
	}
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The scenario must also pass; failures are reported through t.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) error {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	trace, err := FormatTrace(scenarioName, result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, trace)
	return nil
}
