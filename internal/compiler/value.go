package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/ruleunit/internal/ir"
)

// VarPrefix marks a variable reference in a CUE string: "?color".
// A doubled prefix escapes a literal string that starts with '?'.
const VarPrefix = "?"

// parseValue converts a concrete CUE value into an ir.Value.
func parseValue(field string, v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		return ir.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		return ir.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		return ir.Bool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(field, err)
		}
		list := ir.List{}
		for i := 0; iter.Next(); i++ {
			elem, err := parseValue(fmt.Sprintf("%s[%d]", field, i), iter.Value())
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		return list, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: "fractional numbers are not supported",
			Code:    ErrCodeBadValue,
			Pos:     v.Pos(),
		}
	case cue.BottomKind:
		if err := v.Err(); err != nil {
			return nil, formatCUEError(field, err)
		}
		return nil, &CompileError{
			Field:   field,
			Message: "value must be concrete",
			Code:    ErrCodeBadValue,
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported %s value", v.Kind()),
			Code:    ErrCodeBadValue,
			Pos:     v.Pos(),
		}
	}
}

// parseTerm reads a literal or a "?var" reference.
func parseTerm(field string, v cue.Value) (ir.Term, error) {
	if v.Kind() == cue.StringKind {
		s, err := v.String()
		if err != nil {
			return ir.Term{}, formatCUEError(field, err)
		}
		if name, ok := varName(s); ok {
			return ir.V(name), nil
		}
		return ir.L(ir.String(unescapeLiteral(s))), nil
	}
	val, err := parseValue(field, v)
	if err != nil {
		return ir.Term{}, err
	}
	return ir.L(val), nil
}

func varName(s string) (string, bool) {
	if strings.HasPrefix(s, VarPrefix+VarPrefix) || len(s) <= len(VarPrefix) {
		return "", false
	}
	if strings.HasPrefix(s, VarPrefix) {
		return s[len(VarPrefix):], true
	}
	return "", false
}

func unescapeLiteral(s string) string {
	if strings.HasPrefix(s, VarPrefix+VarPrefix) {
		return s[len(VarPrefix):]
	}
	return s
}

// lookupString returns an optional string field. ok is false when absent.
func lookupString(v cue.Value, name, field string) (s string, ok bool, err error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return "", false, nil
	}
	s, err = f.String()
	if err != nil {
		return "", true, wrongType(field, f.Pos(), fmt.Sprintf("%s must be a string", name))
	}
	return s, true, nil
}

// lookupStrings returns an optional list of strings.
func lookupStrings(v cue.Value, name, field string) ([]string, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return nil, nil
	}
	iter, err := f.List()
	if err != nil {
		return nil, wrongType(field, f.Pos(), fmt.Sprintf("%s must be a list of strings", name))
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, wrongType(field, iter.Value().Pos(), fmt.Sprintf("%s must be a list of strings", name))
		}
		out = append(out, s)
	}
	return out, nil
}

// labelName returns the unquoted last selector of v's path.
func labelName(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return strings.Trim(sels[len(sels)-1].String(), `"`)
}
