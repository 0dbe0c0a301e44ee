package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/ruleunit/internal/ir"
)

// CompileRule parses a CUE rule struct into a RuleSpec.
// The rule name is the struct label:
//
//	rule: collectColors: {
//		when: [{type: "Measurement", fields: {key: "color", value: "?color"}}]
//		then: [{kind: "add", set: "controlSet", value: "?color"}]
//	}
func CompileRule(v cue.Value) (*ir.RuleSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError("rule", err)
	}
	rule := &ir.RuleSpec{Name: labelName(v)}
	prefix := "rule." + rule.Name

	if sal := v.LookupPath(cue.ParsePath("salience")); sal.Exists() {
		n, err := sal.Int64()
		if err != nil {
			return nil, wrongType(prefix+".salience", sal.Pos(), "salience must be an integer")
		}
		rule.Salience = int(n)
	}

	whenVal := v.LookupPath(cue.ParsePath("when"))
	if !whenVal.Exists() {
		return nil, missing(prefix+".when", v.Pos(), "when is required")
	}
	var err error
	rule.When, err = parsePatterns(prefix+".when", whenVal)
	if err != nil {
		return nil, err
	}

	if thenVal := v.LookupPath(cue.ParsePath("then")); thenVal.Exists() {
		rule.Then, err = parseActions(prefix+".then", thenVal)
		if err != nil {
			return nil, err
		}
	}

	rule.Produces, err = lookupStrings(v, "produces", prefix+".produces")
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// CompileQuery parses a CUE query struct into a QuerySpec.
//
//	query: DeadlinesFor: {
//		params: ["host"]
//		match: [{type: "Deadline", bind: "$d", fields: {host: "?host", days: "?days"}}]
//		order_by: ["-days"]
//	}
//
// An order_by entry is a variable name, "-name" for descending, or a
// {var, desc} struct.
func CompileQuery(v cue.Value) (*ir.QuerySpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError("query", err)
	}
	q := &ir.QuerySpec{Name: labelName(v)}
	prefix := "query." + q.Name

	var err error
	q.Params, err = lookupStrings(v, "params", prefix+".params")
	if err != nil {
		return nil, err
	}

	matchVal := v.LookupPath(cue.ParsePath("match"))
	if !matchVal.Exists() {
		return nil, missing(prefix+".match", v.Pos(), "match is required")
	}
	q.Match, err = parsePatterns(prefix+".match", matchVal)
	if err != nil {
		return nil, err
	}

	if orderVal := v.LookupPath(cue.ParsePath("order_by")); orderVal.Exists() {
		q.OrderBy, err = parseOrderBy(prefix+".order_by", orderVal)
		if err != nil {
			return nil, err
		}
	}
	return q, nil
}

func parseOrderBy(field string, v cue.Value) ([]ir.OrderKey, error) {
	iter, err := v.List()
	if err != nil {
		return nil, wrongType(field, v.Pos(), "order_by must be a list")
	}
	var keys []ir.OrderKey
	for i := 0; iter.Next(); i++ {
		ef := fmt.Sprintf("%s[%d]", field, i)
		elem := iter.Value()
		if elem.Kind() == cue.StringKind {
			s, _ := elem.String()
			if name, ok := strings.CutPrefix(s, "-"); ok {
				keys = append(keys, ir.OrderKey{Var: name, Desc: true})
			} else {
				keys = append(keys, ir.OrderKey{Var: s})
			}
			continue
		}
		name, ok, err := lookupString(elem, "var", ef+".var")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, missing(ef+".var", elem.Pos(), "order key requires var")
		}
		key := ir.OrderKey{Var: name}
		if d := elem.LookupPath(cue.ParsePath("desc")); d.Exists() {
			key.Desc, err = d.Bool()
			if err != nil {
				return nil, wrongType(ef+".desc", d.Pos(), "desc must be a boolean")
			}
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// parsePatterns reads a list of pattern structs. Constraints come from
// fields (in declaration order; a scalar or "?var" is equality, an
// {op, value} struct any other comparison) followed by the where list.
func parsePatterns(field string, v cue.Value) ([]ir.Pattern, error) {
	iter, err := v.List()
	if err != nil {
		return nil, wrongType(field, v.Pos(), "expected a list of patterns")
	}
	var out []ir.Pattern
	for i := 0; iter.Next(); i++ {
		p, err := parsePattern(fmt.Sprintf("%s[%d]", field, i), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parsePattern(field string, v cue.Value) (ir.Pattern, error) {
	var p ir.Pattern
	typ, ok, err := lookupString(v, "type", field+".type")
	if err != nil {
		return p, err
	}
	if !ok {
		return p, missing(field+".type", v.Pos(), "pattern requires a fact type")
	}
	p.Type = typ

	if p.Bind, _, err = lookupString(v, "bind", field+".bind"); err != nil {
		return p, err
	}
	if n := v.LookupPath(cue.ParsePath("not")); n.Exists() {
		if p.Negated, err = n.Bool(); err != nil {
			return p, wrongType(field+".not", n.Pos(), "not must be a boolean")
		}
	}

	if fields := v.LookupPath(cue.ParsePath("fields")); fields.Exists() {
		it, err := fields.Fields()
		if err != nil {
			return p, wrongType(field+".fields", fields.Pos(), "fields must be a struct")
		}
		for it.Next() {
			c, err := parseFieldConstraint(field+".fields."+it.Label(), it.Label(), it.Value())
			if err != nil {
				return p, err
			}
			p.Constraints = append(p.Constraints, c)
		}
	}

	if where := v.LookupPath(cue.ParsePath("where")); where.Exists() {
		it, err := where.List()
		if err != nil {
			return p, wrongType(field+".where", where.Pos(), "where must be a list")
		}
		for i := 0; it.Next(); i++ {
			wf := fmt.Sprintf("%s.where[%d]", field, i)
			name, ok, err := lookupString(it.Value(), "field", wf+".field")
			if err != nil {
				return p, err
			}
			if !ok {
				return p, missing(wf+".field", it.Value().Pos(), "constraint requires a field")
			}
			c, err := parseOpConstraint(wf, name, it.Value())
			if err != nil {
				return p, err
			}
			p.Constraints = append(p.Constraints, c)
		}
	}
	return p, nil
}

func parseFieldConstraint(field, name string, v cue.Value) (ir.Constraint, error) {
	if v.Kind() == cue.StructKind {
		return parseOpConstraint(field, name, v)
	}
	arg, err := parseTerm(field, v)
	if err != nil {
		return ir.Constraint{}, err
	}
	return ir.Eq(name, arg), nil
}

func parseOpConstraint(field, name string, v cue.Value) (ir.Constraint, error) {
	op, ok, err := lookupString(v, "op", field+".op")
	if err != nil {
		return ir.Constraint{}, err
	}
	if !ok || !ir.ValidOps[ir.Op(op)] {
		return ir.Constraint{}, &CompileError{
			Field:   field + ".op",
			Message: fmt.Sprintf("invalid operator %q", op),
			Code:    ErrCodeBadOperator,
			Pos:     v.Pos(),
		}
	}
	valVal := v.LookupPath(cue.ParsePath("value"))
	if !valVal.Exists() {
		return ir.Constraint{}, missing(field+".value", v.Pos(), "constraint requires a value")
	}
	arg, err := parseTerm(field+".value", valVal)
	if err != nil {
		return ir.Constraint{}, err
	}
	return ir.Constraint{Field: name, Op: ir.Op(op), Arg: arg}, nil
}

// parseActions reads the declarative then list.
func parseActions(field string, v cue.Value) ([]ir.ActionSpec, error) {
	iter, err := v.List()
	if err != nil {
		return nil, wrongType(field, v.Pos(), "then must be a list of actions")
	}
	var out []ir.ActionSpec
	for i := 0; iter.Next(); i++ {
		a, err := parseAction(fmt.Sprintf("%s[%d]", field, i), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func parseAction(field string, v cue.Value) (ir.ActionSpec, error) {
	var a ir.ActionSpec
	kind, ok, err := lookupString(v, "kind", field+".kind")
	if err != nil {
		return a, err
	}
	if !ok || !ir.ValidActionKinds[ir.ActionKind(kind)] {
		return a, &CompileError{
			Field:   field + ".kind",
			Message: fmt.Sprintf("unknown action kind %q", kind),
			Code:    ErrCodeBadAction,
			Pos:     v.Pos(),
		}
	}
	a.Kind = ir.ActionKind(kind)

	for name, dst := range map[string]*string{
		"set": &a.Set, "type": &a.Type, "target": &a.Target, "message": &a.Message,
	} {
		if *dst, _, err = lookupString(v, name, field+"."+name); err != nil {
			return a, err
		}
	}

	if val := v.LookupPath(cue.ParsePath("value")); val.Exists() {
		t, err := parseTerm(field+".value", val)
		if err != nil {
			return a, err
		}
		a.Value = &t
	}

	if fields := v.LookupPath(cue.ParsePath("fields")); fields.Exists() {
		it, err := fields.Fields()
		if err != nil {
			return a, wrongType(field+".fields", fields.Pos(), "fields must be a struct")
		}
		a.Fields = make(map[string]ir.Term)
		for it.Next() {
			t, err := parseTerm(field+".fields."+it.Label(), it.Value())
			if err != nil {
				return a, err
			}
			a.Fields[it.Label()] = t
		}
	}
	return a, nil
}
