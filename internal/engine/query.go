package engine

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ruleunit/internal/ir"
)

// QueryRow is one binding tuple returned by a query.
type QueryRow struct {
	// Tuple lists the matched fact ids in positive-pattern order.
	Tuple []ir.FactID `json:"tuple"`

	// Vars holds every bound variable, parameters included.
	Vars ir.Fields `json:"vars"`

	// Facts holds a snapshot of each fact bound to a fact variable.
	Facts map[string]StoredFact `json:"facts"`
}

// QueryResult is an eagerly computed snapshot. Later session mutations do
// not change it.
type QueryResult struct {
	Query string     `json:"query"`
	Args  []ir.Value `json:"args"`
	Rows  []QueryRow `json:"rows"`
}

// Len returns the number of rows.
func (r *QueryResult) Len() int {
	return len(r.Rows)
}

// Column returns the fact bound to bind in every row, in row order.
// Rows without the binding are skipped.
func (r *QueryResult) Column(bind string) []ir.Fact {
	out := make([]ir.Fact, 0, len(r.Rows))
	for _, row := range r.Rows {
		if sf, ok := row.Facts[bind]; ok {
			out = append(out, sf.Fact)
		}
	}
	return out
}

// Values returns the value of a variable in every row, in row order.
func (r *QueryResult) Values(name string) []ir.Value {
	out := make([]ir.Value, 0, len(r.Rows))
	for _, row := range r.Rows {
		if v, ok := row.Vars[name]; ok {
			out = append(out, v)
		}
	}
	return out
}

// runQuery matches q against the store. It never touches the agenda.
// Without OrderBy, rows come out in ascending lexicographic order of their
// fact tuples.
func runQuery(store *FactStore, q ir.QuerySpec, args []ir.Value) ([]QueryRow, error) {
	if len(args) != len(q.Params) {
		return nil, fmt.Errorf("query %q takes %d argument(s), got %d", q.Name, len(q.Params), len(args))
	}
	seed := ir.NewBinding()
	for i, p := range q.Params {
		v := args[i]
		if v == nil {
			v = ir.Null{}
		}
		seed.Vars[p] = v
	}

	j := newJoiner(q.Match, func(i int) []ir.FactID {
		return store.ids(q.Match[i].Type)
	}, store.fact)

	matches := j.run(seed, -1, 0)
	rows := make([]QueryRow, len(matches))
	for i, mt := range matches {
		row := QueryRow{
			Tuple: mt.facts,
			Vars:  mt.binding.Vars.Clone(),
			Facts: make(map[string]StoredFact, len(mt.binding.Facts)),
		}
		for bind, id := range mt.binding.Facts {
			f, _ := store.Get(id)
			row.Facts[bind] = StoredFact{ID: id, Fact: f}
		}
		rows[i] = row
	}

	if len(q.OrderBy) > 0 {
		slices.SortStableFunc(rows, func(a, b QueryRow) int {
			for _, k := range q.OrderBy {
				c := compareValues(a.Vars[k.Var], b.Vars[k.Var])
				if k.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}
	return rows, nil
}

// compareValues orders any two values: comparable kinds by value, anything
// else by kind and then canonical encoding, so sorting is total.
func compareValues(a, b ir.Value) int {
	if a == nil {
		a = ir.Null{}
	}
	if b == nil {
		b = ir.Null{}
	}
	if c, ok := ir.Compare(a, b); ok {
		return c
	}
	if c := cmp.Compare(a.Kind(), b.Kind()); c != 0 {
		return c
	}
	return strings.Compare(ir.Key(a), ir.Key(b))
}
