package journal

import (
	"context"
	"fmt"

	"github.com/roach88/ruleunit/internal/engine"
)

// Session states recorded in the sessions table.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// SessionRecord describes one journaled session.
type SessionRecord struct {
	ID            string `json:"id"`
	RuleSetHash   string `json:"ruleset_hash"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
	MaxFirings    int    `json:"max_firings"`
	Label         string `json:"label,omitempty"`
	State         string `json:"state"`
	LastSeq       int64  `json:"last_seq"`
}

// WriteSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (j *Journal) WriteSession(ctx context.Context, rec SessionRecord) error {
	state := rec.State
	if state == "" {
		state = StateOpen
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, ruleset_hash, engine_version, ir_version, max_firings, label, state, last_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.RuleSetHash,
		rec.EngineVersion,
		rec.IRVersion,
		rec.MaxFirings,
		rec.Label,
		state,
		rec.LastSeq,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// CloseSession marks a session closed at lastSeq.
func (j *Journal) CloseSession(ctx context.Context, id string, lastSeq int64) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE sessions SET state = ?, last_seq = ? WHERE id = ?
	`, StateClosed, lastSeq, id)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("close session: unknown session %q", id)
	}
	return nil
}

// WriteEvent appends one event. The session row must exist.
// Uses ON CONFLICT DO NOTHING so a replayed stream is idempotent.
func (j *Journal) WriteEvent(ctx context.Context, ev engine.Event) error {
	payload, err := marshalPayload(ev)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO events
		(session_id, seq, kind, rule, fact_id, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ev.SessionID,
		ev.Seq,
		string(ev.Kind),
		ev.Rule,
		int64(ev.FactID),
		payload,
	)
	if err != nil {
		return fmt.Errorf("write event %s#%d: %w", ev.SessionID, ev.Seq, err)
	}
	return nil
}
