package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/ruleunit/internal/engine"
	"github.com/roach88/ruleunit/internal/ir"
)

// ReadSession retrieves a session record by id.
// Returns sql.ErrNoRows if not found.
func (j *Journal) ReadSession(ctx context.Context, id string) (SessionRecord, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, ruleset_hash, engine_version, ir_version, max_firings, label, state, last_seq
		FROM sessions
		WHERE id = ?
	`, id)
	return scanSession(row)
}

// ListSessions returns every journaled session ordered by id.
// Returns an empty slice (not nil) when the journal is empty.
func (j *Journal) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, ruleset_hash, engine_version, ir_version, max_firings, label, state, last_seq
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []SessionRecord{}
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// ReadEvents returns a session's events ordered by seq. When kinds are
// given only those kinds are returned.
// Returns an empty slice (not nil) if no events match.
func (j *Journal) ReadEvents(ctx context.Context, sessionID string, kinds ...engine.EventKind) ([]engine.Event, error) {
	query := `
		SELECT session_id, seq, kind, rule, fact_id, payload
		FROM events
		WHERE session_id = ?`
	args := []any{sessionID}
	if len(kinds) > 0 {
		query += " AND kind IN (?" + strings.Repeat(", ?", len(kinds)-1) + ")"
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query += "\n\t\tORDER BY seq ASC"

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []engine.Event{}
	for rows.Next() {
		var (
			ev      engine.Event
			kind    string
			factID  int64
			payload string
		)
		if err := rows.Scan(&ev.SessionID, &ev.Seq, &kind, &ev.Rule, &factID, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = engine.EventKind(kind)
		ev.FactID = ir.FactID(factID)
		if err := unmarshalPayload(payload, &ev); err != nil {
			return nil, fmt.Errorf("event %s#%d: %w", ev.SessionID, ev.Seq, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// CountEvents returns how many events of each kind a session recorded.
func (j *Journal) CountEvents(ctx context.Context, sessionID string) (map[engine.EventKind]int, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM events
		WHERE session_id = ?
		GROUP BY kind
		ORDER BY kind COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	out := make(map[engine.EventKind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[engine.EventKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (SessionRecord, error) {
	var rec SessionRecord
	err := s.Scan(&rec.ID, &rec.RuleSetHash, &rec.EngineVersion, &rec.IRVersion,
		&rec.MaxFirings, &rec.Label, &rec.State, &rec.LastSeq)
	if err == sql.ErrNoRows {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan session: %w", err)
	}
	return rec, nil
}
