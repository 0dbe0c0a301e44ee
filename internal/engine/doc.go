// Package engine implements the ruleunit forward-chaining rule engine.
//
// A KnowledgeBase holds validated rules and named queries. A Session
// instantiates it: it owns one FactStore and one agenda, and exposes
// Insert, Retract, Update, FireAll, Query and Close.
//
// ARCHITECTURE:
//
// Incremental matching:
// Every store mutation is forwarded to the matcher, which touches only the
// rules whose patterns reference the mutated fact's type. Each rule keeps an
// alpha memory per pattern (facts passing the literal constraints); a new
// fact is joined against the other memories with its own position fixed.
// Negated patterns are tested after the positive join.
//
// Agenda:
// Activations are ordered by salience descending, then by creation sequence
// ascending. Firing pops the head, records the (rule, tuple) pair in the
// refraction memory and runs the action. FireAll repeats until the agenda is
// empty, an action halts, the context is cancelled, or the firing cap is
// exceeded (RULE_CYCLE_EXCEEDED).
//
// Queries:
// Query runs a registered pattern list against the store's type index. It
// never fires rules and never touches the agenda; the result is a snapshot.
//
// CRITICAL PATTERNS:
//
// Logical clocks: event and activation sequence numbers come from Clock,
// never from wall-clock time, so identical inputs give identical traces.
//
// Single caller: a session has no internal locking. Independent sessions
// share nothing mutable and may run concurrently.
package engine
