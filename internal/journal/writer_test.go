package journal

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleunit/internal/engine"
	"github.com/roach88/ruleunit/internal/ir"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func measurement(key, value string) ir.Fact {
	return ir.NewFact("Measurement", ir.F("key", ir.String(key)), ir.F("value", ir.String(value)))
}

func colorsKB(t *testing.T) *engine.KnowledgeBase {
	t.Helper()
	v := ir.V("v")
	kb := engine.NewKnowledgeBase()
	require.NoError(t, kb.AddRule(engine.Rule{Spec: ir.RuleSpec{
		Name: "collect-colors",
		When: []ir.Pattern{
			ir.Match("Measurement", ir.Eq("key", ir.L(ir.String("color"))), ir.Eq("value", v)).As("$m"),
		},
		Then: []ir.ActionSpec{{Kind: ir.ActionAdd, Set: "controlSet", Value: &v}},
	}}))
	return kb
}

// runColors drives a session through inserts, an update, a retraction and
// a firing, journaling every event. It returns the recorded stream and the
// facts live just before Close.
func runColors(t *testing.T, j *Journal, sessionID string) (*engine.Recorder, []engine.StoredFact) {
	t.Helper()
	ctx := context.Background()
	kb := colorsKB(t)
	rec := &engine.Recorder{}
	w := NewWriter(ctx, j, SessionRecord{RuleSetHash: kb.Hash(), MaxFirings: engine.DefaultMaxFirings, Label: "colors"}, discardLogger())

	s := engine.NewSession(kb,
		engine.WithLogger(discardLogger()),
		engine.WithIDGenerator(engine.NewFixedGenerator(sessionID)),
		engine.WithObserver(rec),
		engine.WithObserver(w),
	)
	red, err := s.Insert(measurement("color", "red"))
	require.NoError(t, err)
	_, err = s.Insert(measurement("size", "small"))
	require.NoError(t, err)
	blue, err := s.Insert(measurement("color", "blue"))
	require.NoError(t, err)

	ok, err := s.Update(red, measurement("color", "green"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Retract(blue)
	require.NoError(t, err)
	require.True(t, ok)

	fired, err := s.FireAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	live, err := s.Scan("")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, w.Err())
	return rec, live
}

func TestWriter_RoundTripsEventStream(t *testing.T) {
	ctx := context.Background()
	j := createTestJournal(t)
	rec, _ := runColors(t, j, "colors-1")

	events, err := j.ReadEvents(ctx, "colors-1")
	require.NoError(t, err)
	if diff := cmp.Diff(rec.Events, events, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("journaled stream mismatch (-recorded +journaled):\n%s", diff)
	}

	sess, err := j.ReadSession(ctx, "colors-1")
	require.NoError(t, err)
	assert.Equal(t, StateClosed, sess.State)
	assert.Equal(t, rec.Events[len(rec.Events)-1].Seq, sess.LastSeq)
	assert.Equal(t, ir.EngineVersion, sess.EngineVersion)
	assert.Equal(t, "colors", sess.Label)
}

func TestReadEvents_FilterByKind(t *testing.T) {
	ctx := context.Background()
	j := createTestJournal(t)
	rec, _ := runColors(t, j, "colors-2")

	fired, err := j.ReadEvents(ctx, "colors-2", engine.EventRuleFired, engine.EventControlSetAdded)
	require.NoError(t, err)
	require.Len(t, fired, 2)
	assert.Equal(t, engine.EventRuleFired, fired[0].Kind)
	assert.Equal(t, "collect-colors", fired[0].Rule)
	assert.Equal(t, engine.EventControlSetAdded, fired[1].Kind)
	assert.Equal(t, ir.String("green"), fired[1].Value)

	counts, err := j.CountEvents(ctx, "colors-2")
	require.NoError(t, err)
	assert.Equal(t, rec.Count(engine.EventFactInserted), counts[engine.EventFactInserted])
	assert.Equal(t, 1, counts[engine.EventFactUpdated])
	assert.Equal(t, 1, counts[engine.EventFactRetracted])

	none, err := j.ReadEvents(ctx, "unknown")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestReplayFacts_MatchesLiveState(t *testing.T) {
	ctx := context.Background()
	j := createTestJournal(t)
	rec, live := runColors(t, j, "colors-3")

	res, err := j.ReplayFacts(ctx, "colors-3", 0)
	require.NoError(t, err)
	assert.Equal(t, live, res.Facts.Scan(""))
	assert.Equal(t, 1, res.Fired)

	// Stop right after the first insert.
	var firstInsert int64
	for _, ev := range rec.Events {
		if ev.Kind == engine.EventFactInserted {
			firstInsert = ev.Seq
			break
		}
	}
	partial, err := j.ReplayFacts(ctx, "colors-3", firstInsert)
	require.NoError(t, err)
	assert.Equal(t, 1, partial.Facts.Len())
	assert.Equal(t, firstInsert, partial.Seq)

	_, err = j.ReplayFacts(ctx, "missing", 0)
	assert.Error(t, err)
}

func TestWriter_StopsAfterFirstError(t *testing.T) {
	j := createTestJournal(t)
	w := NewWriter(context.Background(), j, SessionRecord{RuleSetHash: "h"}, discardLogger())
	require.NoError(t, j.Close())

	w.Observe(engine.Event{Kind: engine.EventSessionOpened, SessionID: "s", Seq: 1})
	first := w.Err()
	require.Error(t, first)
	w.Observe(engine.Event{Kind: engine.EventSessionClosed, SessionID: "s", Seq: 2})
	assert.Equal(t, first, w.Err())
}

func TestPayload_RoundTrip(t *testing.T) {
	fact := ir.NewFact("Computer", ir.F("name", ir.String("caf\u00e9")), ir.F("roles", ir.List{ir.String("DNS"), ir.Int(2)}))
	binding := ir.Binding{Vars: ir.Fields{"n": ir.String("x")}, Facts: map[string]ir.FactID{"$c": 4}}
	ev := engine.Event{
		Kind:    engine.EventActivationCreated,
		Rule:    "r",
		Fact:    &fact,
		Facts:   []ir.FactID{4, 9},
		Binding: &binding,
		Set:     "s",
		Value:   ir.Null{},
		Error:   "boom",
	}
	payload, err := marshalPayload(ev)
	require.NoError(t, err)

	var got engine.Event
	got.Kind, got.Rule = ev.Kind, ev.Rule
	require.NoError(t, unmarshalPayload(payload, &got))
	assert.Equal(t, ev, got)
}

func TestWriter_ClosesSessionAfterCancel(t *testing.T) {
	j := createTestJournal(t)
	ctx, cancel := context.WithCancel(context.Background())
	kb := colorsKB(t)
	w := NewWriter(ctx, j, SessionRecord{RuleSetHash: kb.Hash()}, discardLogger())

	s := engine.NewSession(kb,
		engine.WithLogger(discardLogger()),
		engine.WithIDGenerator(engine.NewFixedGenerator("interrupted")),
		engine.WithObserver(w),
	)
	_, err := s.Insert(measurement("color", "red"))
	require.NoError(t, err)

	cancel()
	_, err = s.FireAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, s.Close())
	require.NoError(t, w.Err())

	got, err := j.ReadSession(context.Background(), "interrupted")
	require.NoError(t, err)
	assert.Equal(t, StateClosed, got.State)
	assert.Positive(t, got.LastSeq)
}
