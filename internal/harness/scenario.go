package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ruleunit/internal/engine"
)

// Scenario defines a rule scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the session id.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules is the directory of CUE rule files.
	// Relative paths are resolved against the scenario file location.
	Rules string `yaml:"rules"`

	// MaxFirings overrides the per-FireAll firing cap when positive.
	MaxFirings int `yaml:"max_firings,omitempty"`

	// Steps run in order against one fresh session.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step, before the session closes.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one session operation. Exactly one of Insert, Retract, Update,
// Fire or Query is set.
type Step struct {
	Insert *FactSpec `yaml:"insert,omitempty"`
	// As names the inserted fact for later retract and update steps.
	As string `yaml:"as,omitempty"`

	Retract string `yaml:"retract,omitempty"`

	Update string `yaml:"update,omitempty"`
	// Fields are merged into the current fact by an update step.
	Fields map[string]any `yaml:"fields,omitempty"`

	Fire *FireStep `yaml:"fire,omitempty"`

	Query  string       `yaml:"query,omitempty"`
	Args   []any        `yaml:"args,omitempty"`
	Expect *QueryExpect `yaml:"expect,omitempty"`
}

// FactSpec is a fact as written in YAML.
type FactSpec struct {
	Type   string         `yaml:"type"`
	Fields map[string]any `yaml:"fields,omitempty"`
}

// FireStep calls FireAll and optionally checks its outcome.
type FireStep struct {
	// Fired is the expected number of firings, if set.
	Fired *int `yaml:"fired,omitempty"`

	// Error is the expected runtime error code (e.g. RULE_CYCLE_EXCEEDED).
	// Empty means FireAll must succeed.
	Error string `yaml:"error,omitempty"`
}

// QueryExpect checks a query result.
type QueryExpect struct {
	Count *int `yaml:"count,omitempty"`

	// Error is the expected runtime error code (e.g. UNKNOWN_QUERY). It
	// cannot be combined with count or values.
	Error string `yaml:"error,omitempty"`

	// Values maps a variable name to its expected value in every row,
	// in row order.
	Values map[string][]any `yaml:"values,omitempty"`
}

// Assertion validates the session after the steps.
type Assertion struct {
	Type string `yaml:"type"`

	// Set is the control set name (control_set).
	Set string `yaml:"set,omitempty"`

	// Values are the expected control set members (control_set).
	Values []any `yaml:"values,omitempty"`

	// FactType restricts fact_count; empty counts every fact.
	FactType string `yaml:"fact_type,omitempty"`

	// Kind is the event kind (trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Rule is the rule name (trace_contains, trace_count).
	Rule string `yaml:"rule,omitempty"`

	// Rules is the expected relative firing order (trace_order).
	Rules []string `yaml:"rules,omitempty"`

	// Count is the expected number (fired, fact_count, trace_count).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertControlSet    = "control_set"
	AssertFired         = "fired"
	AssertFactCount     = "fact_count"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

var knownCodes = map[string]bool{
	string(engine.ErrCodeDuplicateIdentity): true,
	string(engine.ErrCodeSessionClosed):     true,
	string(engine.ErrCodeRuleCycleExceeded): true,
	string(engine.ErrCodeUnknownQuery):      true,
	string(engine.ErrCodeActionFailed):      true,
	string(engine.ErrCodeInvalidRule):       true,
	string(engine.ErrCodeInvalidArgument):   true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative rules directory is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if !filepath.IsAbs(scenario.Rules) {
		scenario.Rules = filepath.Join(filepath.Dir(path), scenario.Rules)
	}
	if _, err := os.Stat(scenario.Rules); os.IsNotExist(err) {
		return nil, fmt.Errorf("invalid scenario: rules directory not found: %s", scenario.Rules)
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML. The rules directory is
// left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Rules == "" {
		return fmt.Errorf("rules directory is required")
	}
	if s.MaxFirings < 0 {
		return fmt.Errorf("max_firings must not be negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	aliases := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, aliases); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks the shape of one step. Aliases must be defined by an
// earlier insert before a retract or update refers to them.
func validateStep(index int, step Step, aliases map[string]bool) error {
	set := 0
	for _, present := range []bool{step.Insert != nil, step.Retract != "", step.Update != "", step.Fire != nil, step.Query != ""} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of insert, retract, update, fire or query is required", index)
	}

	switch {
	case step.Insert != nil:
		if step.Insert.Type == "" {
			return fmt.Errorf("steps[%d]: insert.type is required", index)
		}
		if step.As != "" {
			if aliases[step.As] {
				return fmt.Errorf("steps[%d]: alias %q is already defined", index, step.As)
			}
			aliases[step.As] = true
		}
	case step.Retract != "":
		if !aliases[step.Retract] {
			return fmt.Errorf("steps[%d]: retract refers to unknown alias %q", index, step.Retract)
		}
	case step.Update != "":
		if !aliases[step.Update] {
			return fmt.Errorf("steps[%d]: update refers to unknown alias %q", index, step.Update)
		}
		if len(step.Fields) == 0 {
			return fmt.Errorf("steps[%d]: update requires fields", index)
		}
	case step.Fire != nil:
		if step.Fire.Error != "" && !knownCodes[step.Fire.Error] {
			return fmt.Errorf("steps[%d]: unknown error code %q", index, step.Fire.Error)
		}
	case step.Expect != nil && step.Expect.Error != "":
		if !knownCodes[step.Expect.Error] {
			return fmt.Errorf("steps[%d]: unknown error code %q", index, step.Expect.Error)
		}
		if step.Expect.Count != nil || len(step.Expect.Values) > 0 {
			return fmt.Errorf("steps[%d]: expect.error excludes count and values", index)
		}
	}

	if step.As != "" && step.Insert == nil {
		return fmt.Errorf("steps[%d]: as is only valid on insert", index)
	}
	if len(step.Fields) > 0 && step.Update == "" {
		return fmt.Errorf("steps[%d]: fields is only valid on update", index)
	}
	if (len(step.Args) > 0 || step.Expect != nil) && step.Query == "" {
		return fmt.Errorf("steps[%d]: args and expect are only valid on query", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertControlSet:
		if a.Set == "" {
			return fmt.Errorf("assertions[%d]: set is required for control_set", index)
		}
	case AssertFired, AssertFactCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must not be negative", index)
		}
	case AssertTraceContains, AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for %s", index, a.Type)
		}
		if !slices.Contains(engine.EventKinds, engine.EventKind(a.Kind)) {
			return fmt.Errorf("assertions[%d]: unknown event kind %q", index, a.Kind)
		}
	case AssertTraceOrder:
		if len(a.Rules) == 0 {
			return fmt.Errorf("assertions[%d]: rules list is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
