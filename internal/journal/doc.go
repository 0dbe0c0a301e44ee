// Package journal provides SQLite-backed audit storage for session events.
//
// A journal holds two tables:
//   - sessions: one row per session (rule set hash, versions, firing cap)
//   - events: the session's event stream keyed by (session_id, seq)
//
// # Ordering
//
// All ordering uses the session's logical seq, never timestamps. Reads
// always ORDER BY seq ASC, so a trace read back from the journal is the
// event stream the observers saw.
//
// # Payloads
//
// Event payloads are canonical JSON (ir.MarshalCanonical): sorted keys and
// NFC strings, so identical runs produce byte-identical rows.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: events must reference a session row
//   - one open connection: SQLite allows a single writer
package journal
