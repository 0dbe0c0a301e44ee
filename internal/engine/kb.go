package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/ruleunit/internal/ir"
)

// Action is the side effect of a rule. It runs once per fired activation.
// Returning an error stops FireAll with ACTION_FAILED.
type Action func(ctx *ActionContext) error

// Rule pairs a descriptor with an optional Go action.
//
// A rule with no Action gets one compiled from Spec.Then. A rule may not
// carry both, since it would be unclear which one is authoritative.
type Rule struct {
	Spec   ir.RuleSpec
	Action Action
}

type compiledRule struct {
	spec   ir.RuleSpec
	action Action
}

// KnowledgeBase holds validated rules and queries.
//
// Rules keep their registration order; that order does not affect firing
// (the agenda orders by salience and activation sequence) but it fixes the
// order in which rules are evaluated against a mutation, and therefore the
// activation sequence numbers. Sessions copy the rule list when created, so
// rules added later are not seen by existing sessions.
type KnowledgeBase struct {
	rules   []*compiledRule
	names   map[string]bool
	queries map[string]ir.QuerySpec
	qorder  []string
}

// NewKnowledgeBase creates an empty knowledge base.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		names:   make(map[string]bool),
		queries: make(map[string]ir.QuerySpec),
	}
}

// AddRule validates and registers a rule.
func (kb *KnowledgeBase) AddRule(r Rule) error {
	if errs := r.Spec.Validate(); len(errs) > 0 {
		return newInvalidRuleError(r.Spec.Name, errs)
	}
	if kb.names[r.Spec.Name] {
		return &RuntimeError{
			Code:    ErrCodeInvalidRule,
			Message: fmt.Sprintf("duplicate rule name %q", r.Spec.Name),
			Rule:    r.Spec.Name,
		}
	}
	action := r.Action
	if action != nil && len(r.Spec.Then) > 0 {
		return &RuntimeError{
			Code:    ErrCodeInvalidRule,
			Message: "rule has both a Go action and declarative then actions",
			Rule:    r.Spec.Name,
		}
	}
	if action == nil {
		action = compileThen(r.Spec)
	}
	kb.names[r.Spec.Name] = true
	kb.rules = append(kb.rules, &compiledRule{spec: cloneRuleSpec(r.Spec), action: action})
	return nil
}

// AddRules registers several rules, stopping at the first error.
func (kb *KnowledgeBase) AddRules(rules ...Rule) error {
	for _, r := range rules {
		if err := kb.AddRule(r); err != nil {
			return err
		}
	}
	return nil
}

// AddQuery validates and registers a named query.
func (kb *KnowledgeBase) AddQuery(q ir.QuerySpec) error {
	if errs := q.Validate(); len(errs) > 0 {
		return newInvalidRuleError(q.Name, errs)
	}
	if _, ok := kb.queries[q.Name]; ok {
		return &RuntimeError{
			Code:    ErrCodeInvalidRule,
			Message: fmt.Sprintf("duplicate query name %q", q.Name),
			Rule:    q.Name,
		}
	}
	kb.queries[q.Name] = q
	kb.qorder = append(kb.qorder, q.Name)
	return nil
}

// Rules returns the rule descriptors in registration order.
func (kb *KnowledgeBase) Rules() []ir.RuleSpec {
	out := make([]ir.RuleSpec, len(kb.rules))
	for i, r := range kb.rules {
		out[i] = r.spec
	}
	return out
}

// Queries returns the query descriptors in registration order.
func (kb *KnowledgeBase) Queries() []ir.QuerySpec {
	out := make([]ir.QuerySpec, len(kb.qorder))
	for i, name := range kb.qorder {
		out[i] = kb.queries[name]
	}
	return out
}

// Hash identifies the rule set; see ir.RuleSetHash.
func (kb *KnowledgeBase) Hash() string {
	return ir.RuleSetHash(kb.Rules(), kb.Queries())
}

func (kb *KnowledgeBase) snapshot() ([]*compiledRule, map[string]ir.QuerySpec) {
	rules := slices.Clone(kb.rules)
	queries := make(map[string]ir.QuerySpec, len(kb.queries))
	for k, v := range kb.queries {
		queries[k] = v
	}
	return rules, queries
}

// cloneRuleSpec copies the slices a caller could mutate after AddRule.
func cloneRuleSpec(s ir.RuleSpec) ir.RuleSpec {
	s.When = slices.Clone(s.When)
	for i := range s.When {
		s.When[i].Constraints = slices.Clone(s.When[i].Constraints)
	}
	s.Then = slices.Clone(s.Then)
	s.Produces = slices.Clone(s.Produces)
	return s
}
