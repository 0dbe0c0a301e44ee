package engine

import (
	"cmp"
	"slices"

	"github.com/roach88/ruleunit/internal/ir"
)

// ruleNode holds the incremental state of one rule inside a session.
//
// alpha[i] lists, in ascending id order, the facts that pass the literal
// constraints of pattern i. Variable constraints are left to the join.
type ruleNode struct {
	rule  *compiledRule
	alpha [][]ir.FactID
	join  *joiner
	acts  map[string]*activation
}

// matcher keeps every rule's alpha memories and activations current as the
// fact store changes.
//
// On a mutation only the rules whose patterns reference the fact's type are
// touched. An inserted fact is joined with its position fixed at each
// positive pattern it satisfies; since a fact never fills two positions, the
// tuples from different positions are disjoint. Retracting a fact cancels
// every activation it supports; retracting a fact that sat in a negated
// memory re-derives that rule, since matches it blocked may now exist.
// Update is retract followed by insert under the same id.
type matcher struct {
	nodes      []*ruleNode
	byType     map[string][]*ruleNode
	agenda     *agenda
	refraction *refraction
	byFact     map[ir.FactID]map[string]*activation
	seq        *Clock
	emit       func(Event)
}

func newMatcher(store *FactStore, rules []*compiledRule, emit func(Event)) *matcher {
	m := &matcher{
		byType:     make(map[string][]*ruleNode),
		agenda:     newAgenda(),
		refraction: newRefraction(),
		byFact:     make(map[ir.FactID]map[string]*activation),
		seq:        NewClock(),
		emit:       emit,
	}
	for _, r := range rules {
		n := &ruleNode{
			rule:  r,
			alpha: make([][]ir.FactID, len(r.spec.When)),
			acts:  make(map[string]*activation),
		}
		n.join = newJoiner(r.spec.When, func(i int) []ir.FactID { return n.alpha[i] }, store.fact)
		m.nodes = append(m.nodes, n)
		for _, t := range r.spec.Types() {
			m.byType[t] = append(m.byType[t], n)
		}
	}
	return m
}

func (m *matcher) factInserted(id ir.FactID, f ir.Fact) {
	for _, n := range m.byType[f.Type] {
		var positions []int
		negHit := false
		for i, p := range n.rule.spec.When {
			if !p.AlphaTest(f) {
				continue
			}
			n.alpha[i] = insertSorted(n.alpha[i], id)
			if p.Negated {
				negHit = true
			} else {
				positions = append(positions, i)
			}
		}
		if negHit {
			m.block(n, id, f)
		}
		for _, i := range positions {
			for _, mt := range n.join.run(ir.NewBinding(), i, id) {
				m.activate(n, mt)
			}
		}
	}
}

func (m *matcher) factRetracted(id ir.FactID, f ir.Fact) {
	m.cancelFact(id)
	m.refraction.forgetFact(id)
	for _, n := range m.byType[f.Type] {
		negHit := false
		for i, p := range n.rule.spec.When {
			before := len(n.alpha[i])
			n.alpha[i] = removeSorted(n.alpha[i], id)
			if p.Negated && len(n.alpha[i]) < before {
				negHit = true
			}
		}
		if negHit {
			m.rederive(n)
		}
	}
}

func (m *matcher) factUpdated(id ir.FactID, old, updated ir.Fact) {
	m.factRetracted(id, old)
	m.factInserted(id, updated)
}

// block cancels the activations of n that the newly inserted fact now blocks
// through one of n's negated patterns, and forgets matching refraction
// records so the match may fire again if the blocker goes away.
func (m *matcher) block(n *ruleNode, id ir.FactID, f ir.Fact) {
	blocks := func(b ir.Binding) bool {
		for _, i := range n.join.negated {
			p := n.rule.spec.When[i]
			if !p.AlphaTest(f) {
				continue
			}
			if _, ok := p.Unify(id, f, b); ok {
				return true
			}
		}
		return false
	}
	for _, a := range sortedActivations(n.acts) {
		if blocks(a.Binding) {
			m.cancel(a)
		}
	}
	m.refraction.forgetIf(n.rule.spec.Name, blocks)
}

// rederive runs a full join for n and activates any match that is neither
// pending nor already fired.
func (m *matcher) rederive(n *ruleNode) {
	for _, mt := range n.join.run(ir.NewBinding(), -1, 0) {
		m.activate(n, mt)
	}
}

func (m *matcher) activate(n *ruleNode, mt match) {
	key := ir.TupleKey(n.rule.spec.Name, mt.facts)
	if _, ok := n.acts[key]; ok {
		return
	}
	if m.refraction.has(key) {
		return
	}
	a := &activation{
		Activation: Activation{
			Rule:     n.rule.spec.Name,
			Salience: n.rule.spec.Salience,
			Seq:      m.seq.Next(),
			Facts:    mt.facts,
			Binding:  mt.binding,
		},
		key:  key,
		node: n,
	}
	n.acts[key] = a
	for _, id := range mt.facts {
		if m.byFact[id] == nil {
			m.byFact[id] = make(map[string]*activation)
		}
		m.byFact[id][key] = a
	}
	m.agenda.push(a)
	b := a.Binding
	m.emit(Event{Kind: EventActivationCreated, Rule: a.Rule, Facts: a.Facts, Binding: &b})
}

// cancelFact removes every pending activation supported by id.
func (m *matcher) cancelFact(id ir.FactID) {
	acts := m.byFact[id]
	if len(acts) == 0 {
		return
	}
	for _, a := range sortedActivations(acts) {
		m.cancel(a)
	}
}

func (m *matcher) cancel(a *activation) {
	m.unlink(a)
	m.agenda.remove(a)
	m.emit(Event{Kind: EventActivationCancelled, Rule: a.Rule, Facts: a.Facts})
}

// unlink drops a from the rule and fact indexes without touching the agenda.
func (m *matcher) unlink(a *activation) {
	delete(a.node.acts, a.key)
	for _, id := range a.Facts {
		if acts := m.byFact[id]; acts != nil {
			delete(acts, a.key)
			if len(acts) == 0 {
				delete(m.byFact, id)
			}
		}
	}
}

// next pops the highest priority activation and records it as fired.
// Returns nil when the agenda is empty.
func (m *matcher) next() *activation {
	a := m.agenda.pop()
	if a == nil {
		return nil
	}
	m.unlink(a)
	m.refraction.record(a.key, a.Rule, a.Facts, a.Binding)
	return a
}

// pending returns the number of activations on the agenda.
func (m *matcher) pending() int {
	return m.agenda.Len()
}

// reset discards every activation and memory. Used by Close.
func (m *matcher) reset() {
	m.agenda.clear()
	m.byFact = make(map[ir.FactID]map[string]*activation)
	m.refraction = newRefraction()
	for _, n := range m.nodes {
		n.acts = make(map[string]*activation)
		for i := range n.alpha {
			n.alpha[i] = nil
		}
	}
}

// sortedActivations returns the activations of a map in creation order so
// cancellation events are emitted deterministically.
func sortedActivations(acts map[string]*activation) []*activation {
	out := make([]*activation, 0, len(acts))
	for _, a := range acts {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b *activation) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out
}
