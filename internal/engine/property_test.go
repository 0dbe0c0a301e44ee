package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/roach88/ruleunit/internal/ir"
)

func propertySession(kb *KnowledgeBase) *Session {
	return NewSession(kb, WithLogger(discardLogger()), WithIDGenerator(NewFixedGenerator("prop")))
}

// TestActivationCountProperty: inserting N facts matched by a join-free rule
// yields exactly N activations before firing.
func TestActivationCountProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("N matching facts give N activations", prop.ForAll(
		func(n, noise int) bool {
			kb := NewKnowledgeBase()
			if err := kb.AddRule(noopRule("each", "Measurement", 0)); err != nil {
				return false
			}
			s := propertySession(kb)
			defer s.Close()
			for i := 0; i < n; i++ {
				if _, err := s.Insert(measurement("k", fmt.Sprint(i))); err != nil {
					return false
				}
			}
			for i := 0; i < noise; i++ {
				if _, err := s.Insert(ir.NewFact("Computer")); err != nil {
					return false
				}
			}
			agenda, err := s.Agenda()
			return err == nil && len(agenda) == n
		},
		gen.IntRange(0, 60),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

// TestFireIdempotenceProperty: every (rule, tuple) fires exactly once no
// matter how often FireAll runs without new facts.
func TestFireIdempotenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated FireAll fires each activation once", prop.ForAll(
		func(n, repeats int) bool {
			counts := map[string]int{}
			kb := NewKnowledgeBase()
			err := kb.AddRule(Rule{
				Spec: ir.RuleSpec{Name: "count", When: []ir.Pattern{ir.Match("Measurement").As("$m")}},
				Action: func(ctx *ActionContext) error {
					counts[ctx.Activation().Key()]++
					return nil
				},
			})
			if err != nil {
				return false
			}
			s := propertySession(kb)
			defer s.Close()
			for i := 0; i < n; i++ {
				if _, err := s.Insert(measurement("k", fmt.Sprint(i))); err != nil {
					return false
				}
			}
			total := 0
			for r := 0; r < repeats; r++ {
				fired, err := s.FireAll(context.Background())
				if err != nil {
					return false
				}
				total += fired
			}
			if total != n || len(counts) != n {
				return false
			}
			for _, c := range counts {
				if c != 1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 40),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

// TestRetractionProperty: after retracting any subset of facts, no pending
// activation references a retracted fact and the survivors are all pending.
func TestRetractionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("retraction cancels dependent activations", prop.ForAll(
		func(mask []bool) bool {
			kb := NewKnowledgeBase()
			if err := kb.AddRule(noopRule("each", "Measurement", 0)); err != nil {
				return false
			}
			s := propertySession(kb)
			defer s.Close()

			ids := make([]ir.FactID, len(mask))
			for i := range mask {
				id, err := s.Insert(measurement("k", fmt.Sprint(i)))
				if err != nil {
					return false
				}
				ids[i] = id
			}
			retracted := map[ir.FactID]bool{}
			for i, drop := range mask {
				if drop {
					if ok, err := s.Retract(ids[i]); err != nil || !ok {
						return false
					}
					retracted[ids[i]] = true
				}
			}
			agenda, err := s.Agenda()
			if err != nil {
				return false
			}
			for _, a := range agenda {
				for _, id := range a.Facts {
					if retracted[id] {
						return false
					}
				}
			}
			return len(agenda) == len(mask)-len(retracted)
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
