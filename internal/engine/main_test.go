package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/ruleunit/internal/ir"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSession creates a session with a fixed id and a silent logger.
func newTestSession(t *testing.T, kb *KnowledgeBase, opts ...SessionOption) *Session {
	t.Helper()
	base := []SessionOption{
		WithIDGenerator(NewFixedGenerator("test-session")),
		WithLogger(discardLogger()),
	}
	s := NewSession(kb, append(base, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newKB(t *testing.T, rules ...Rule) *KnowledgeBase {
	t.Helper()
	kb := NewKnowledgeBase()
	require.NoError(t, kb.AddRules(rules...))
	return kb
}

func measurement(key, value string) ir.Fact {
	return ir.NewFact("Measurement", ir.F("key", ir.String(key)), ir.F("value", ir.String(value)))
}

// collectColorsRule adds the value of every color measurement to controlSet.
func collectColorsRule() Rule {
	v := ir.V("v")
	return Rule{Spec: ir.RuleSpec{
		Name: "collect-colors",
		When: []ir.Pattern{
			ir.Match("Measurement", ir.Eq("key", ir.L(ir.String("color"))), ir.Eq("value", v)).As("$m"),
		},
		Then: []ir.ActionSpec{{Kind: ir.ActionAdd, Set: "controlSet", Value: &v}},
	}}
}

// findColorQuery matches every Measurement as $m.
func findColorQuery() ir.QuerySpec {
	return ir.QuerySpec{
		Name:  "FindColor",
		Match: []ir.Pattern{ir.Match("Measurement").As("$m")},
	}
}

// noopRule matches every fact of typ and does nothing.
func noopRule(name, typ string, salience int) Rule {
	return Rule{
		Spec: ir.RuleSpec{Name: name, Salience: salience, When: []ir.Pattern{ir.Match(typ).As("$f")}},
	}
}

func mustInsert(t *testing.T, s *Session, f ir.Fact) ir.FactID {
	t.Helper()
	id, err := s.Insert(f)
	require.NoError(t, err)
	return id
}

func mustFire(t *testing.T, s *Session) int {
	t.Helper()
	n, err := s.FireAll(context.Background())
	require.NoError(t, err)
	return n
}

func mustAgenda(t *testing.T, s *Session) []Activation {
	t.Helper()
	a, err := s.Agenda()
	require.NoError(t, err)
	return a
}
