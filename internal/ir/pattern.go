package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Op is a constraint operator.
type Op string

const (
	OpEq       Op = "=="
	OpNe       Op = "!="
	OpLt       Op = "<"
	OpLe       Op = "<="
	OpGt       Op = ">"
	OpGe       Op = ">="
	OpIn       Op = "in"       // field value is an element of a list argument
	OpContains Op = "contains" // string contains substring, or list contains element
	OpPrefix   Op = "prefix"   // string has prefix
)

// ValidOps lists the operators the matcher understands.
var ValidOps = map[Op]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLe: true, OpGt: true, OpGe: true,
	OpIn: true, OpContains: true, OpPrefix: true,
}

// Apply evaluates "field op arg". Missing or mismatched kinds never match.
func (op Op) Apply(field, arg Value) bool {
	switch op {
	case OpEq:
		return Equal(field, arg)
	case OpNe:
		return !Equal(field, arg)
	case OpLt, OpLe, OpGt, OpGe:
		c, ok := Compare(field, arg)
		if !ok {
			return false
		}
		switch op {
		case OpLt:
			return c < 0
		case OpLe:
			return c <= 0
		case OpGt:
			return c > 0
		default:
			return c >= 0
		}
	case OpIn:
		list, ok := arg.(List)
		if !ok {
			return false
		}
		for _, elem := range list {
			if Equal(field, elem) {
				return true
			}
		}
		return false
	case OpContains:
		switch fv := field.(type) {
		case String:
			s, ok := arg.(String)
			return ok && strings.Contains(fv.NFC(), s.NFC())
		case List:
			for _, elem := range fv {
				if Equal(elem, arg) {
					return true
				}
			}
		}
		return false
	case OpPrefix:
		fv, ok := field.(String)
		if !ok {
			return false
		}
		s, ok := arg.(String)
		return ok && strings.HasPrefix(fv.NFC(), s.NFC())
	default:
		return false
	}
}

// Term is either a literal value or a reference to a pattern variable.
type Term struct {
	Var   string `json:"var,omitempty"`
	Value Value  `json:"value,omitempty"`
}

// V references variable name.
func V(name string) Term { return Term{Var: name} }

// L wraps a literal.
func L(v Value) Term { return Term{Value: v} }

// IsVar reports whether the term is a variable reference.
func (t Term) IsVar() bool { return t.Var != "" }

// Resolve returns the term's value under a binding.
func (t Term) Resolve(b Binding) (Value, bool) {
	if !t.IsVar() {
		if t.Value == nil {
			return Null{}, true
		}
		return t.Value, true
	}
	return b.Var(t.Var)
}

// UnmarshalJSON restores the literal value, which encodes as a plain JSON
// scalar or list.
func (t *Term) UnmarshalJSON(data []byte) error {
	var raw struct {
		Var   string `json:"var"`
		Value any    `json:"value"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	t.Var = raw.Var
	t.Value = nil
	if raw.Var != "" || raw.Value == nil {
		return nil
	}
	v, err := FromAny(raw.Value)
	if err != nil {
		return fmt.Errorf("term value: %w", err)
	}
	t.Value = v
	return nil
}

func (t Term) String() string {
	if t.IsVar() {
		return "?" + t.Var
	}
	return Format(t.Value)
}

// Constraint tests one field of a fact.
// An OpEq constraint against an unbound variable binds the variable.
type Constraint struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Arg   Term   `json:"arg"`
}

func (c Constraint) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Op, c.Arg)
}

// Literal reports whether the constraint can be tested on a fact alone.
func (c Constraint) Literal() bool { return !c.Arg.IsVar() }

// Eq builds field == arg.
func Eq(field string, arg Term) Constraint { return Constraint{Field: field, Op: OpEq, Arg: arg} }

// Ne builds field != arg.
func Ne(field string, arg Term) Constraint { return Constraint{Field: field, Op: OpNe, Arg: arg} }

// Lt builds field < arg.
func Lt(field string, arg Term) Constraint { return Constraint{Field: field, Op: OpLt, Arg: arg} }

// Le builds field <= arg.
func Le(field string, arg Term) Constraint { return Constraint{Field: field, Op: OpLe, Arg: arg} }

// Gt builds field > arg.
func Gt(field string, arg Term) Constraint { return Constraint{Field: field, Op: OpGt, Arg: arg} }

// Ge builds field >= arg.
func Ge(field string, arg Term) Constraint { return Constraint{Field: field, Op: OpGe, Arg: arg} }

// In builds field in arg.
func In(field string, arg Term) Constraint { return Constraint{Field: field, Op: OpIn, Arg: arg} }

// Pattern matches facts of one type.
//
// Bind names a fact variable (conventionally "$m") that receives the matched
// fact's identity. A Negated pattern matches when no fact satisfies it under
// the binding built by the positive patterns; its own variables stay local.
type Pattern struct {
	Type        string       `json:"type"`
	Bind        string       `json:"bind,omitempty"`
	Constraints []Constraint `json:"constraints,omitempty"`
	Negated     bool         `json:"negated,omitempty"`
}

// Match builds a positive pattern.
func Match(typ string, cs ...Constraint) Pattern {
	return Pattern{Type: typ, Constraints: cs}
}

// As returns the pattern with a fact variable.
func (p Pattern) As(bind string) Pattern {
	p.Bind = bind
	return p
}

// Not returns the negated form of p.
func Not(p Pattern) Pattern {
	p.Negated = true
	return p
}

// AlphaTest evaluates only the literal constraints of p against f.
func (p Pattern) AlphaTest(f Fact) bool {
	if f.Type != p.Type {
		return false
	}
	for _, c := range p.Constraints {
		if !c.Literal() {
			continue
		}
		v, ok := f.Get(c.Field)
		if !ok {
			return false
		}
		if !c.Op.Apply(v, c.Arg.Value) {
			return false
		}
	}
	return true
}

// Unify evaluates every constraint of p against f under b. On success it
// returns b extended with any newly bound variables and the fact variable.
// b itself is never modified.
func (p Pattern) Unify(id FactID, f Fact, b Binding) (Binding, bool) {
	if f.Type != p.Type {
		return b, false
	}
	out := b
	cloned := false
	for _, c := range p.Constraints {
		v, ok := f.Get(c.Field)
		if !ok {
			return b, false
		}
		if !c.Arg.IsVar() {
			if !c.Op.Apply(v, c.Arg.Value) {
				return b, false
			}
			continue
		}
		bound, isBound := out.Var(c.Arg.Var)
		if !isBound {
			if c.Op != OpEq {
				return b, false
			}
			if !cloned {
				out = b.Clone()
				cloned = true
			}
			out.Vars[c.Arg.Var] = v
			continue
		}
		if !c.Op.Apply(v, bound) {
			return b, false
		}
	}
	if p.Bind != "" {
		if existing, ok := out.Facts[p.Bind]; ok {
			if existing != id {
				return b, false
			}
		} else {
			if !cloned {
				out = b.Clone()
			}
			out.Facts[p.Bind] = id
		}
	}
	return out, true
}
