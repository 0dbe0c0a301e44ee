package engine

import (
	"container/heap"
	"slices"

	"github.com/roach88/ruleunit/internal/ir"
)

// Activation is a pending firing of a rule against one fact tuple.
// Facts lists the tuple in the order of the rule's positive patterns.
type Activation struct {
	Rule     string      `json:"rule"`
	Salience int         `json:"salience"`
	Seq      int64       `json:"seq"`
	Facts    []ir.FactID `json:"facts"`
	Binding  ir.Binding  `json:"binding"`
}

// Key returns the activation identity used by the agenda and refraction.
func (a Activation) Key() string {
	return ir.TupleKey(a.Rule, a.Facts)
}

// activation is an agenda entry.
type activation struct {
	Activation
	key   string
	node  *ruleNode
	index int // position in the heap, maintained by agenda
}

// agenda orders pending activations by salience descending, then by
// creation sequence ascending.
//
// It is a container/heap so that cancellation (retraction, blocking
// negations) can remove an arbitrary entry in O(log n).
type agenda struct {
	items []*activation
}

func newAgenda() *agenda {
	return &agenda{}
}

func activationLess(a, b *activation) bool {
	if a.Salience != b.Salience {
		return a.Salience > b.Salience
	}
	return a.Seq < b.Seq
}

// heap.Interface
func (q *agenda) Len() int           { return len(q.items) }
func (q *agenda) Less(i, j int) bool { return activationLess(q.items[i], q.items[j]) }
func (q *agenda) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *agenda) Push(x any) {
	a := x.(*activation)
	a.index = len(q.items)
	q.items = append(q.items, a)
}

func (q *agenda) Pop() any {
	n := len(q.items)
	a := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	a.index = -1
	return a
}

func (q *agenda) push(a *activation) {
	heap.Push(q, a)
}

func (q *agenda) pop() *activation {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(q).(*activation)
}

func (q *agenda) peek() *activation {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *agenda) remove(a *activation) {
	if a.index < 0 || a.index >= len(q.items) || q.items[a.index] != a {
		return
	}
	heap.Remove(q, a.index)
}

// snapshot returns the pending activations in firing order.
func (q *agenda) snapshot() []Activation {
	sorted := slices.Clone(q.items)
	slices.SortFunc(sorted, func(a, b *activation) int {
		switch {
		case activationLess(a, b):
			return -1
		case activationLess(b, a):
			return 1
		}
		return 0
	})
	out := make([]Activation, len(sorted))
	for i, a := range sorted {
		out[i] = Activation{
			Rule:     a.Rule,
			Salience: a.Salience,
			Seq:      a.Seq,
			Facts:    slices.Clone(a.Facts),
			Binding:  a.Binding.Clone(),
		}
	}
	return out
}

func (q *agenda) clear() {
	for _, a := range q.items {
		a.index = -1
	}
	q.items = nil
}
