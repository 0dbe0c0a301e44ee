package compiler

import (
	"fmt"

	"github.com/roach88/ruleunit/internal/ir"
)

// ValidationError is a descriptor error located in the rule set source.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks every rule and query in the set.
// Returns all errors found (does not fail-fast).
func Validate(rs *RuleSet) []ValidationError {
	var errs []ValidationError
	for _, r := range rs.Rules {
		path := "rule." + r.Name
		errs = append(errs, locate(rs, path, r.Validate())...)
	}
	for _, q := range rs.Queries {
		path := "query." + q.Name
		errs = append(errs, locate(rs, path, q.Validate())...)
	}
	return errs
}

func locate(rs *RuleSet, path string, errs []ir.ValidationError) []ValidationError {
	if len(errs) == 0 {
		return nil
	}
	pos := rs.Pos(path)
	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		ve := ValidationError{
			Field:   path + "." + e.Field,
			Message: e.Message,
			Code:    e.Code,
		}
		if pos.IsValid() {
			ve.File = pos.Filename()
			ve.Line = pos.Line()
		}
		out = append(out, ve)
	}
	return out
}
