package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ruleunit/internal/engine"
	"github.com/roach88/ruleunit/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the firings so far to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Trace    []engine.Event // Trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	var fired []string
	for _, ev := range e.Trace {
		if ev.Kind == engine.EventRuleFired {
			fired = append(fired, fmt.Sprintf("  [%d] %s %s", ev.Seq, ev.Rule, formatIDs(ev.Facts)))
		}
	}
	if len(fired) > 0 {
		fmt.Fprintf(&buf, "\nFirings:\n%s\n", strings.Join(fired, "\n"))
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertControlSet:
		return assertControlSet(result, a)
	case AssertFired:
		if result.Fired != a.Count {
			return &AssertionError{
				Type:     AssertFired,
				Expected: fmt.Sprintf("%d firings", a.Count),
				Actual:   fmt.Sprintf("%d firings", result.Fired),
				Trace:    result.Trace,
			}
		}
		return nil
	case AssertFactCount:
		return assertFactCount(result, a)
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertControlSet compares members in insertion order. A set that was
// never created is empty.
func assertControlSet(result *Result, a Assertion) error {
	want := make([]string, len(a.Values))
	for i, raw := range a.Values {
		v, err := ir.FromAny(raw)
		if err != nil {
			return fmt.Errorf("control_set %s: values[%d]: %w", a.Set, i, err)
		}
		want[i] = ir.Format(v)
	}
	got := result.ControlSets[a.Set]
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertControlSet,
			Expected: fmt.Sprintf("%s = [%s]", a.Set, strings.Join(want, ", ")),
			Actual:   fmt.Sprintf("%s = [%s]", a.Set, strings.Join(got, ", ")),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertFactCount(result *Result, a Assertion) error {
	n := 0
	for _, sf := range result.Facts {
		if a.FactType == "" || sf.Fact.Type == a.FactType {
			n++
		}
	}
	if n != a.Count {
		what := "facts"
		if a.FactType != "" {
			what = a.FactType + " facts"
		}
		return &AssertionError{
			Type:     AssertFactCount,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d %s", n, what),
			Trace:    result.Trace,
		}
	}
	return nil
}

func matchesEvent(ev engine.Event, a Assertion) bool {
	return string(ev.Kind) == a.Kind && (a.Rule == "" || ev.Rule == a.Rule)
}

func describeEvent(a Assertion) string {
	if a.Rule == "" {
		return a.Kind
	}
	return a.Kind + " of " + a.Rule
}

// assertTraceContains checks that an event of the given kind (and rule)
// was emitted.
func assertTraceContains(trace []engine.Event, a Assertion) error {
	for _, ev := range trace {
		if matchesEvent(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeEvent(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the rules first fired in the given order.
// Other firings may appear in between.
func assertTraceOrder(trace []engine.Event, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if ev.Kind != engine.EventRuleFired {
			continue
		}
		if _, seen := positions[ev.Rule]; !seen {
			positions[ev.Rule] = i + 1
		}
	}

	for _, rule := range a.Rules {
		if positions[rule] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all rules fired: %v", a.Rules),
				Actual:   fmt.Sprintf("rule never fired: %s", rule),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Rules); i++ {
		prev, curr := a.Rules[i-1], a.Rules[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("rules fired in order: %v", a.Rules),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the event appears exactly Count times.
func assertTraceCount(trace []engine.Event, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matchesEvent(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describeEvent(a)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func formatIDs(ids []ir.FactID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
