package journal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/ruleunit/internal/engine"
	"github.com/roach88/ruleunit/internal/ir"
)

// Writer is an engine.Observer that appends every event to a journal.
//
// The session row is written lazily from the first event, using the
// template's metadata with the event's session id. Observers cannot return
// errors, so the first write failure is kept and later events are dropped;
// callers check Err after the run.
type Writer struct {
	ctx      context.Context
	journal  *Journal
	template SessionRecord
	logger   *slog.Logger

	mu     sync.Mutex
	opened map[string]bool
	err    error
}

// NewWriter creates a journal observer. template.ID is ignored.
//
// Rows are written on a context detached from ctx's cancellation, so an
// interrupted run still journals its session_closed event.
func NewWriter(ctx context.Context, j *Journal, template SessionRecord, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if template.EngineVersion == "" {
		template.EngineVersion = ir.EngineVersion
	}
	if template.IRVersion == "" {
		template.IRVersion = ir.IRVersion
	}
	return &Writer{
		ctx:      context.WithoutCancel(ctx),
		journal:  j,
		template: template,
		logger:   logger,
		opened:   make(map[string]bool),
	}
}

// Observe implements engine.Observer.
func (w *Writer) Observe(ev engine.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	if !w.opened[ev.SessionID] {
		rec := w.template
		rec.ID = ev.SessionID
		rec.State = StateOpen
		if err := w.journal.WriteSession(w.ctx, rec); err != nil {
			w.fail(ev, err)
			return
		}
		w.opened[ev.SessionID] = true
	}
	if err := w.journal.WriteEvent(w.ctx, ev); err != nil {
		w.fail(ev, err)
		return
	}
	if ev.Kind == engine.EventSessionClosed {
		if err := w.journal.CloseSession(w.ctx, ev.SessionID, ev.Seq); err != nil {
			w.fail(ev, err)
		}
	}
}

func (w *Writer) fail(ev engine.Event, err error) {
	w.err = err
	w.logger.Error("journal write failed; dropping further events",
		"session", ev.SessionID, "seq", ev.Seq, "kind", ev.Kind, "error", err)
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
