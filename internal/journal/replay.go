package journal

import (
	"context"
	"fmt"

	"github.com/roach88/ruleunit/internal/engine"
)

// ReplayResult is a session's fact state rebuilt from its journal.
type ReplayResult struct {
	SessionID string
	// Seq is the last event applied.
	Seq   int64
	Facts *engine.FactStore
	// Fired counts rule_fired events up to Seq.
	Fired int
}

// ReplayFacts rebuilds the fact store of a session by applying its fact
// events in seq order, stopping after upTo (0 means the whole stream).
//
// Fact ids are restored exactly, so the result can be compared against a
// live session's Scan. Facts discarded by Close are not retracted: the
// replay shows the working memory as it was just before closing.
func (j *Journal) ReplayFacts(ctx context.Context, sessionID string, upTo int64) (*ReplayResult, error) {
	if _, err := j.ReadSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("replay %s: %w", sessionID, err)
	}
	events, err := j.ReadEvents(ctx, sessionID,
		engine.EventFactInserted, engine.EventFactRetracted, engine.EventFactUpdated, engine.EventRuleFired)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", sessionID, err)
	}

	res := &ReplayResult{SessionID: sessionID, Facts: engine.NewFactStore()}
	for _, ev := range events {
		if upTo > 0 && ev.Seq > upTo {
			break
		}
		switch ev.Kind {
		case engine.EventFactInserted:
			if ev.Fact == nil {
				return nil, fmt.Errorf("replay %s: seq %d: insert without fact", sessionID, ev.Seq)
			}
			if err := res.Facts.InsertWithID(ev.FactID, *ev.Fact); err != nil {
				return nil, fmt.Errorf("replay %s: seq %d: %w", sessionID, ev.Seq, err)
			}
		case engine.EventFactRetracted:
			if !res.Facts.Retract(ev.FactID) {
				return nil, fmt.Errorf("replay %s: seq %d: retract of unknown fact %s", sessionID, ev.Seq, ev.FactID)
			}
		case engine.EventFactUpdated:
			if ev.Fact == nil {
				return nil, fmt.Errorf("replay %s: seq %d: update without fact", sessionID, ev.Seq)
			}
			ok, err := res.Facts.Update(ev.FactID, *ev.Fact)
			if err != nil {
				return nil, fmt.Errorf("replay %s: seq %d: %w", sessionID, ev.Seq, err)
			}
			if !ok {
				return nil, fmt.Errorf("replay %s: seq %d: update of unknown fact %s", sessionID, ev.Seq, ev.FactID)
			}
		case engine.EventRuleFired:
			res.Fired++
		}
		res.Seq = ev.Seq
	}
	return res, nil
}
