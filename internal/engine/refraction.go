package engine

import (
	"github.com/roach88/ruleunit/internal/ir"
)

// refraction remembers which (rule, tuple) pairs have already fired.
//
// An activation whose key is recorded here is never created again, which is
// what makes repeated FireAll calls with no new facts fire nothing. A record
// is forgotten when one of its supporting facts is retracted or updated, or
// when a negated condition starts blocking it, because the match it
// describes no longer exists. If the match later reappears it is a new match
// and may fire again.
//
// Unlike a per-flow cycle detector, refraction alone cannot guarantee
// termination; FiringQuota covers chains of distinct tuples.
type refraction struct {
	fired  map[string]refractionEntry
	byFact map[ir.FactID]map[string]struct{}
	byRule map[string]map[string]struct{}
}

type refractionEntry struct {
	rule    string
	facts   []ir.FactID
	binding ir.Binding
}

func newRefraction() *refraction {
	return &refraction{
		fired:  make(map[string]refractionEntry),
		byFact: make(map[ir.FactID]map[string]struct{}),
		byRule: make(map[string]map[string]struct{}),
	}
}

// has reports whether the tuple key already fired.
func (r *refraction) has(key string) bool {
	_, ok := r.fired[key]
	return ok
}

// record marks an activation as fired. Call it before running the action so
// that the action's own mutations see the pair as fired.
func (r *refraction) record(key, rule string, facts []ir.FactID, b ir.Binding) {
	r.fired[key] = refractionEntry{rule: rule, facts: facts, binding: b}
	for _, id := range facts {
		if r.byFact[id] == nil {
			r.byFact[id] = make(map[string]struct{})
		}
		r.byFact[id][key] = struct{}{}
	}
	if r.byRule[rule] == nil {
		r.byRule[rule] = make(map[string]struct{})
	}
	r.byRule[rule][key] = struct{}{}
}

// forgetFact drops every record supported by id.
func (r *refraction) forgetFact(id ir.FactID) {
	for key := range r.byFact[id] {
		r.forget(key)
	}
	delete(r.byFact, id)
}

// forgetIf drops the records of rule whose binding satisfies pred.
func (r *refraction) forgetIf(rule string, pred func(ir.Binding) bool) {
	for key := range r.byRule[rule] {
		if pred(r.fired[key].binding) {
			r.forget(key)
		}
	}
}

func (r *refraction) forget(key string) {
	e, ok := r.fired[key]
	if !ok {
		return
	}
	delete(r.fired, key)
	for _, id := range e.facts {
		if keys := r.byFact[id]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(r.byFact, id)
			}
		}
	}
	if keys := r.byRule[e.rule]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(r.byRule, e.rule)
		}
	}
}

// size returns the number of fired pairs remembered.
func (r *refraction) size() int {
	return len(r.fired)
}
