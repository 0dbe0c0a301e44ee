package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/roach88/ruleunit/internal/ir"
)

// SessionState is the lifecycle position of a session.
type SessionState int

const (
	StateCreated SessionState = iota
	StateOpen
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session owns one fact store and one agenda.
//
// State machine: Created -> Open -> Closed. Open happens explicitly through
// Open or implicitly on the first operation. Close is idempotent; every
// operation after it fails with SESSION_CLOSED.
//
// Thread-safety: none. A session is used by one logical caller at a time.
// Independent sessions share no mutable state, so they may run on different
// goroutines against the same KnowledgeBase.
type Session struct {
	id      string
	state   SessionState
	store   *FactStore
	matcher *matcher
	queries map[string]ir.QuerySpec
	rules   int

	sets     map[string]*ControlSet
	setOrder []string

	logger     *slog.Logger
	observers  []Observer
	idGen      IDGenerator
	clock      *Clock
	maxFirings int

	halted bool
	firing bool
	fired  int
}

// SessionOption configures a session.
type SessionOption func(*Session)

// WithMaxFirings sets the firing cap applied to each FireAll.
//
// Default: 10000 firings (DefaultMaxFirings)
// Use WithMaxFirings(10) for testing cycle detection.
func WithMaxFirings(n int) SessionOption {
	return func(s *Session) {
		s.maxFirings = n
	}
}

// WithLogger sets the session logger. Default: slog.Default().
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// WithObserver adds an observer. Observers are called in the order added.
func WithObserver(o Observer) SessionOption {
	return func(s *Session) {
		s.observers = append(s.observers, o)
	}
}

// WithIDGenerator sets the session id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) SessionOption {
	return func(s *Session) {
		s.idGen = g
	}
}

// NewSession creates a session in state Created with an empty fact store.
//
// The knowledge base's rules and queries are copied, so rules added to kb
// afterwards are not visible to this session.
func NewSession(kb *KnowledgeBase, opts ...SessionOption) *Session {
	rules, queries := kb.snapshot()
	s := &Session{
		state:      StateCreated,
		store:      NewFactStore(),
		queries:    queries,
		rules:      len(rules),
		sets:       make(map[string]*ControlSet),
		logger:     slog.Default(),
		idGen:      UUIDv7Generator{},
		clock:      NewClock(),
		maxFirings: DefaultMaxFirings,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.id = s.idGen.Generate()
	s.logger = s.logger.With("session", s.id)
	s.matcher = newMatcher(s.store, rules, s.emit)
	s.store.watch(s)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() SessionState { return s.state }

// Open moves a Created session to Open. Opening an open session is a no-op.
func (s *Session) Open() error {
	return s.ensureOpen("Open")
}

func (s *Session) ensureOpen(op string) error {
	switch s.state {
	case StateClosed:
		return newSessionClosedError(s.id, op)
	case StateCreated:
		s.state = StateOpen
		s.logger.Debug("session opened", "rules", s.rules, "queries", len(s.queries))
		s.emit(Event{Kind: EventSessionOpened})
	}
	return nil
}

// Insert adds a fact under a fresh id.
func (s *Session) Insert(f ir.Fact) (ir.FactID, error) {
	if err := s.ensureOpen("Insert"); err != nil {
		return 0, err
	}
	return s.insert(f), nil
}

// InsertWithID adds a fact under a caller-chosen id.
// Fails with DUPLICATE_IDENTITY if the id is or was in use.
func (s *Session) InsertWithID(id ir.FactID, f ir.Fact) error {
	if err := s.ensureOpen("InsertWithID"); err != nil {
		return err
	}
	if err := s.store.InsertWithID(id, f); err != nil {
		return s.annotate(err)
	}
	return nil
}

// Retract removes a fact and cancels every activation it supports.
// Unknown ids return false without error.
func (s *Session) Retract(id ir.FactID) (bool, error) {
	if err := s.ensureOpen("Retract"); err != nil {
		return false, err
	}
	return s.retract(id), nil
}

// Update replaces a fact's fields under the same id.
// Unknown ids return false without error.
func (s *Session) Update(id ir.FactID, f ir.Fact) (bool, error) {
	if err := s.ensureOpen("Update"); err != nil {
		return false, err
	}
	return s.update(id, f)
}

// Get returns a copy of a live fact.
func (s *Session) Get(id ir.FactID) (ir.Fact, bool, error) {
	if err := s.ensureOpen("Get"); err != nil {
		return ir.Fact{}, false, err
	}
	f, ok := s.store.Get(id)
	return f, ok, nil
}

// Scan returns copies of the facts of a type in ascending id order.
// An empty type returns every fact.
func (s *Session) Scan(typ string) ([]StoredFact, error) {
	if err := s.ensureOpen("Scan"); err != nil {
		return nil, err
	}
	return s.store.Scan(typ), nil
}

// Len returns the number of live facts.
func (s *Session) Len() (int, error) {
	if err := s.ensureOpen("Len"); err != nil {
		return 0, err
	}
	return s.store.Len(), nil
}

// Agenda returns the pending activations in firing order.
func (s *Session) Agenda() ([]Activation, error) {
	if err := s.ensureOpen("Agenda"); err != nil {
		return nil, err
	}
	return s.matcher.agenda.snapshot(), nil
}

// ControlSet returns the named control set, creating it on first use.
func (s *Session) ControlSet(name string) (*ControlSet, error) {
	if err := s.ensureOpen("ControlSet"); err != nil {
		return nil, err
	}
	return s.controlSet(name), nil
}

// ControlSetNames returns the names of the control sets in creation order.
func (s *Session) ControlSetNames() ([]string, error) {
	if err := s.ensureOpen("ControlSetNames"); err != nil {
		return nil, err
	}
	return slices.Clone(s.setOrder), nil
}

// Fired returns the number of activations fired over the session lifetime.
func (s *Session) Fired() int { return s.fired }

// FireAll fires activations until the agenda is empty, an action halts, the
// context is cancelled, or the firing cap is exceeded.
//
// It returns the number of activations fired by this call. The context is
// checked before every firing; an action is never interrupted. Exceeding
// the cap returns RULE_CYCLE_EXCEEDED and leaves the remaining activations
// pending. A failing action returns ACTION_FAILED; the activation counts as
// fired and is not retried.
func (s *Session) FireAll(ctx context.Context) (int, error) {
	if err := s.ensureOpen("FireAll"); err != nil {
		return 0, err
	}
	if s.firing {
		return 0, newInvalidArgumentError(s.id, "FireAll called from inside a rule action")
	}
	s.firing = true
	s.halted = false
	defer func() { s.firing = false }()

	quota := NewFiringQuota(s.maxFirings)
	fired := 0
	for s.matcher.pending() > 0 {
		if err := ctx.Err(); err != nil {
			s.logger.Debug("fireAll cancelled", "fired", fired, "pending", s.matcher.pending())
			return fired, err
		}
		if err := quota.Check(s.id, s.matcher.agenda.peek().Rule); err != nil {
			s.logger.Warn("firing cap exceeded", "max_firings", quota.Max(), "pending", s.matcher.pending())
			s.emit(Event{Kind: EventCycleExceeded, Rule: s.matcher.agenda.peek().Rule, Error: err.Error()})
			return fired, err
		}

		a := s.matcher.next()
		fired++
		s.fired++
		b := a.Binding
		s.emit(Event{Kind: EventRuleFired, Rule: a.Rule, Facts: a.Facts, Binding: &b})
		s.logger.Debug("rule fired", "rule", a.Rule, "facts", a.Facts)

		actx := &ActionContext{ctx: ctx, session: s, act: a.Activation}
		if err := a.node.rule.action(actx); err != nil {
			rerr := newActionError(s.id, a.Rule, err)
			s.emit(Event{Kind: EventActionFailed, Rule: a.Rule, Facts: a.Facts, Error: err.Error()})
			s.logger.Error("rule action failed", "rule", a.Rule, "error", err)
			return fired, rerr
		}
		if s.halted {
			s.emit(Event{Kind: EventHalted, Rule: a.Rule})
			s.logger.Debug("fireAll halted", "rule", a.Rule, "pending", s.matcher.pending())
			break
		}
	}
	s.logger.Debug("fireAll complete", "fired", fired, "facts", s.store.Len())
	return fired, nil
}

// Query runs a registered query against the current facts.
//
// The result is a snapshot: it reflects only facts present at the call and
// never changes afterwards. Query does not fire rules; call FireAll first if
// pending activations should be applied.
func (s *Session) Query(name string, args ...ir.Value) (*QueryResult, error) {
	if err := s.ensureOpen("Query"); err != nil {
		return nil, err
	}
	q, ok := s.queries[name]
	if !ok {
		return nil, newUnknownQueryError(s.id, name)
	}
	rows, err := runQuery(s.store, q, args)
	if err != nil {
		return nil, newInvalidArgumentError(s.id, err.Error())
	}
	return &QueryResult{Query: name, Args: slices.Clone(args), Rows: rows}, nil
}

// Close discards pending activations without firing them, releases all facts
// and control sets, and moves the session to Closed. Closing twice is a no-op.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	pending := s.matcher.pending()
	s.matcher.reset()
	s.store = NewFactStore()
	s.sets = make(map[string]*ControlSet)
	s.setOrder = nil
	s.state = StateClosed
	s.logger.Debug("session closed", "discarded", pending, "fired", s.fired)
	s.emit(Event{Kind: EventSessionClosed})
	return nil
}

func (s *Session) insert(f ir.Fact) ir.FactID {
	return s.store.Insert(f)
}

func (s *Session) retract(id ir.FactID) bool {
	return s.store.Retract(id)
}

func (s *Session) update(id ir.FactID, f ir.Fact) (bool, error) {
	ok, err := s.store.Update(id, f)
	if err != nil {
		return false, s.annotate(err)
	}
	return ok, nil
}

// The session sits between the store and the matcher so that the event for
// a mutation precedes the activation events it causes.

func (s *Session) factInserted(id ir.FactID, f ir.Fact) {
	s.logger.Debug("fact inserted", "fact", id, "type", f.Type)
	fc := f.Clone()
	s.emit(Event{Kind: EventFactInserted, FactID: id, Fact: &fc})
	s.matcher.factInserted(id, f)
}

func (s *Session) factRetracted(id ir.FactID, f ir.Fact) {
	s.logger.Debug("fact retracted", "fact", id, "type", f.Type)
	fc := f.Clone()
	s.emit(Event{Kind: EventFactRetracted, FactID: id, Fact: &fc})
	s.matcher.factRetracted(id, f)
}

func (s *Session) factUpdated(id ir.FactID, old, updated ir.Fact) {
	s.logger.Debug("fact updated", "fact", id, "type", updated.Type)
	fc := updated.Clone()
	s.emit(Event{Kind: EventFactUpdated, FactID: id, Fact: &fc})
	s.matcher.factUpdated(id, old, updated)
}

func (s *Session) controlSet(name string) *ControlSet {
	if cs, ok := s.sets[name]; ok {
		return cs
	}
	cs := newControlSet(name, func(kind EventKind, set string, v ir.Value) {
		s.emit(Event{Kind: kind, Set: set, Value: v})
	})
	s.sets[name] = cs
	s.setOrder = append(s.setOrder, name)
	return cs
}

func (s *Session) emit(e Event) {
	if len(s.observers) == 0 {
		return
	}
	e.SessionID = s.id
	e.Seq = s.clock.Next()
	for _, o := range s.observers {
		o.Observe(e)
	}
}

// annotate stamps the session id on store errors.
func (s *Session) annotate(err error) error {
	var re *RuntimeError
	if errors.As(err, &re) && re.SessionID == "" {
		re.SessionID = s.id
	}
	return err
}
