package ir

import "fmt"

// Validation error codes (E100-E199).
const (
	ErrNameEmpty         = "E101" // rule or query name is required
	ErrNoConditions      = "E102" // at least one positive pattern required
	ErrPatternType       = "E103" // pattern type is required
	ErrInvalidOperator   = "E104" // unknown constraint operator
	ErrDuplicateFactVar  = "E105" // fact variable bound twice
	ErrUnboundVariable   = "E106" // variable used before it is bound
	ErrInvalidAction     = "E107" // malformed declarative action
	ErrUnknownTarget     = "E108" // action targets an unknown fact variable
	ErrUnknownOrderVar   = "E109" // order_by references an unbound variable
	ErrDuplicateParam    = "E110" // query parameter declared twice
	ErrFieldEmpty        = "E111" // constraint field is required
	ErrNegatedBindEscape = "E112" // negated pattern fact variable used outside it
)

// ValidationError is one problem found in a descriptor.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a rule descriptor.
// Returns all errors (not fail-fast).
func (r RuleSpec) Validate() []ValidationError {
	var errs []ValidationError
	if r.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "rule name is required", Code: ErrNameEmpty})
	}
	if len(r.Positive()) == 0 {
		errs = append(errs, ValidationError{Field: "when", Message: "at least one non-negated pattern is required", Code: ErrNoConditions})
	}

	scope := newVarScope(nil)
	errs = append(errs, scope.checkPatterns("when", r.When)...)

	for i, a := range r.Then {
		errs = append(errs, validateAction(fmt.Sprintf("then[%d]", i), a, scope)...)
	}
	return errs
}

// Validate checks a query descriptor.
func (q QuerySpec) Validate() []ValidationError {
	var errs []ValidationError
	if q.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "query name is required", Code: ErrNameEmpty})
	}
	if len(positiveIndices(q.Match)) == 0 {
		errs = append(errs, ValidationError{Field: "match", Message: "at least one non-negated pattern is required", Code: ErrNoConditions})
	}

	seen := make(map[string]bool)
	for i, p := range q.Params {
		if seen[p] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("params[%d]", i),
				Message: fmt.Sprintf("duplicate parameter %q", p),
				Code:    ErrDuplicateParam,
			})
		}
		seen[p] = true
	}

	scope := newVarScope(q.Params)
	errs = append(errs, scope.checkPatterns("match", q.Match)...)

	for i, k := range q.OrderBy {
		if !scope.vars[k.Var] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("order_by[%d]", i),
				Message: fmt.Sprintf("variable %q is not bound by the query", k.Var),
				Code:    ErrUnknownOrderVar,
			})
		}
	}
	return errs
}

// varScope tracks which variables a pattern list binds, in evaluation order.
type varScope struct {
	vars    map[string]bool
	facts   map[string]bool
	negated map[string]bool
}

func newVarScope(params []string) *varScope {
	s := &varScope{
		vars:    make(map[string]bool),
		facts:   make(map[string]bool),
		negated: make(map[string]bool),
	}
	for _, p := range params {
		s.vars[p] = true
	}
	return s
}

// checkPatterns walks positive patterns in order, then negated ones, which is
// the order the matcher evaluates them in.
func (s *varScope) checkPatterns(field string, ps []Pattern) []ValidationError {
	var errs []ValidationError
	for i, p := range ps {
		if p.Negated {
			continue
		}
		errs = append(errs, s.checkPattern(fmt.Sprintf("%s[%d]", field, i), p, s.vars)...)
		if p.Bind != "" {
			if s.facts[p.Bind] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s[%d].bind", field, i),
					Message: fmt.Sprintf("fact variable %q is bound twice", p.Bind),
					Code:    ErrDuplicateFactVar,
				})
			}
			s.facts[p.Bind] = true
		}
	}
	for i, p := range ps {
		if !p.Negated {
			continue
		}
		// Variables bound inside a negation are existential: copy the scope.
		local := make(map[string]bool, len(s.vars))
		for k := range s.vars {
			local[k] = true
		}
		errs = append(errs, s.checkPattern(fmt.Sprintf("%s[%d]", field, i), p, local)...)
		if p.Bind != "" {
			s.negated[p.Bind] = true
		}
	}
	return errs
}

func (s *varScope) checkPattern(field string, p Pattern, vars map[string]bool) []ValidationError {
	var errs []ValidationError
	if p.Type == "" {
		errs = append(errs, ValidationError{Field: field + ".type", Message: "pattern type is required", Code: ErrPatternType})
	}
	for j, c := range p.Constraints {
		cf := fmt.Sprintf("%s.constraints[%d]", field, j)
		if c.Field == "" {
			errs = append(errs, ValidationError{Field: cf, Message: "constraint field is required", Code: ErrFieldEmpty})
		}
		if !ValidOps[c.Op] {
			errs = append(errs, ValidationError{
				Field:   cf,
				Message: fmt.Sprintf("invalid operator %q", c.Op),
				Code:    ErrInvalidOperator,
			})
			continue
		}
		if !c.Arg.IsVar() || vars[c.Arg.Var] {
			continue
		}
		if c.Op == OpEq {
			vars[c.Arg.Var] = true
			continue
		}
		errs = append(errs, ValidationError{
			Field:   cf,
			Message: fmt.Sprintf("variable %q is used with %q before it is bound", c.Arg.Var, c.Op),
			Code:    ErrUnboundVariable,
		})
	}
	return errs
}

func validateAction(field string, a ActionSpec, scope *varScope) []ValidationError {
	var errs []ValidationError
	invalid := func(msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg, Code: ErrInvalidAction})
	}
	checkTerm := func(name string, t Term) {
		if t.IsVar() && !scope.vars[t.Var] {
			errs = append(errs, ValidationError{
				Field:   field + "." + name,
				Message: fmt.Sprintf("variable %q is not bound by the rule conditions", t.Var),
				Code:    ErrUnboundVariable,
			})
		}
	}
	checkTarget := func() {
		if a.Target == "" {
			invalid(fmt.Sprintf("%s requires a target fact variable", a.Kind))
			return
		}
		if scope.negated[a.Target] {
			errs = append(errs, ValidationError{
				Field:   field + ".target",
				Message: fmt.Sprintf("fact variable %q is bound inside a negated pattern", a.Target),
				Code:    ErrNegatedBindEscape,
			})
			return
		}
		if !scope.facts[a.Target] {
			errs = append(errs, ValidationError{
				Field:   field + ".target",
				Message: fmt.Sprintf("unknown fact variable %q", a.Target),
				Code:    ErrUnknownTarget,
			})
		}
	}

	if !ValidActionKinds[a.Kind] {
		invalid(fmt.Sprintf("unknown action kind %q", a.Kind))
		return errs
	}
	switch a.Kind {
	case ActionAdd, ActionRemove:
		if a.Set == "" {
			invalid(fmt.Sprintf("%s requires a control set name", a.Kind))
		}
		if a.Value == nil {
			invalid(fmt.Sprintf("%s requires a value", a.Kind))
		} else {
			checkTerm("value", *a.Value)
		}
	case ActionInsert:
		if a.Type == "" {
			invalid("insert requires a fact type")
		}
		for name, t := range a.Fields {
			checkTerm("fields."+name, t)
		}
	case ActionRetract:
		checkTarget()
	case ActionUpdate:
		checkTarget()
		if len(a.Fields) == 0 {
			invalid("update requires at least one field")
		}
		for name, t := range a.Fields {
			checkTerm("fields."+name, t)
		}
	case ActionLog:
		if a.Message == "" {
			invalid("log requires a message")
		}
	}
	return errs
}
