package engine

import (
	"slices"

	"github.com/roach88/ruleunit/internal/ir"
)

// match is one consistent assignment of facts to a pattern list.
type match struct {
	facts   []ir.FactID // in positive-pattern order
	binding ir.Binding
}

// joiner evaluates a pattern list against candidate facts.
//
// Positive patterns are joined in declaration order; negated patterns are
// tested last against the complete binding. The rule matcher feeds it alpha
// memories, the query engine feeds it the store's type index. Both produce
// tuples in ascending lexicographic order of fact ids because every candidate
// list is sorted.
type joiner struct {
	patterns   []ir.Pattern
	positive   []int
	negated    []int
	candidates func(i int) []ir.FactID
	fact       func(id ir.FactID) (ir.Fact, bool)
}

func newJoiner(patterns []ir.Pattern, candidates func(int) []ir.FactID, fact func(ir.FactID) (ir.Fact, bool)) *joiner {
	j := &joiner{
		patterns:   patterns,
		candidates: candidates,
		fact:       fact,
	}
	for i, p := range patterns {
		if p.Negated {
			j.negated = append(j.negated, i)
		} else {
			j.positive = append(j.positive, i)
		}
	}
	return j
}

// run returns every match extending seed. When fixed is a pattern index,
// that position only considers fixedID; pass fixed < 0 for a full join.
// A fact never fills two positions of one tuple.
func (j *joiner) run(seed ir.Binding, fixed int, fixedID ir.FactID) []match {
	var out []match
	tuple := make([]ir.FactID, 0, len(j.positive))

	var walk func(k int, b ir.Binding)
	walk = func(k int, b ir.Binding) {
		if k == len(j.positive) {
			if j.blocked(b) {
				return
			}
			out = append(out, match{facts: slices.Clone(tuple), binding: b})
			return
		}
		i := j.positive[k]
		cands := j.candidates(i)
		if i == fixed {
			cands = []ir.FactID{fixedID}
		}
		for _, id := range cands {
			if slices.Contains(tuple, id) {
				continue
			}
			f, ok := j.fact(id)
			if !ok {
				continue
			}
			next, ok := j.patterns[i].Unify(id, f, b)
			if !ok {
				continue
			}
			tuple = append(tuple, id)
			walk(k+1, next)
			tuple = tuple[:len(tuple)-1]
		}
	}
	walk(0, seed)
	return out
}

// blocked reports whether some negated pattern matches under b.
func (j *joiner) blocked(b ir.Binding) bool {
	for _, i := range j.negated {
		if j.blockedBy(i, b) {
			return true
		}
	}
	return false
}

func (j *joiner) blockedBy(i int, b ir.Binding) bool {
	for _, id := range j.candidates(i) {
		f, ok := j.fact(id)
		if !ok {
			continue
		}
		if _, ok := j.patterns[i].Unify(id, f, b); ok {
			return true
		}
	}
	return false
}
