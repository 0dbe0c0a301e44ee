package ir

import "slices"

// RuleSpec is a compiled production rule (when/then).
//
// When holds the conditions in declaration order; Then holds declarative
// actions used when no Go action is supplied. Produces lists fact types the
// rule's action may insert, for static cycle analysis of Go actions whose
// effects cannot be read from Then.
type RuleSpec struct {
	Name     string       `json:"name"`
	Salience int          `json:"salience"`
	When     []Pattern    `json:"when"`
	Then     []ActionSpec `json:"then,omitempty"`
	Produces []string     `json:"produces,omitempty"`
}

// ActionKind identifies a declarative action.
type ActionKind string

const (
	ActionAdd     ActionKind = "add"     // add Value to control set Set
	ActionRemove  ActionKind = "remove"  // remove Value from control set Set
	ActionInsert  ActionKind = "insert"  // insert a fact of Type with Fields
	ActionRetract ActionKind = "retract" // retract the fact bound to Target
	ActionUpdate  ActionKind = "update"  // overwrite Fields on the fact bound to Target
	ActionLog     ActionKind = "log"     // log Message with the binding
	ActionHalt    ActionKind = "halt"    // stop the running fireAll
)

// ValidActionKinds lists the declarative actions.
var ValidActionKinds = map[ActionKind]bool{
	ActionAdd: true, ActionRemove: true, ActionInsert: true, ActionRetract: true,
	ActionUpdate: true, ActionLog: true, ActionHalt: true,
}

// ActionSpec is one declarative action step.
type ActionSpec struct {
	Kind    ActionKind      `json:"kind"`
	Set     string          `json:"set,omitempty"`
	Value   *Term           `json:"value,omitempty"`
	Type    string          `json:"type,omitempty"`
	Fields  map[string]Term `json:"fields,omitempty"`
	Target  string          `json:"target,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Positive returns the indices of the non-negated patterns.
func (r RuleSpec) Positive() []int {
	return positiveIndices(r.When)
}

// Types returns the distinct fact types the rule's conditions reference.
func (r RuleSpec) Types() []string {
	return patternTypes(r.When)
}

// InsertedTypes returns the fact types the rule may insert or update,
// combining declarative insert/update actions with Produces.
func (r RuleSpec) InsertedTypes() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range r.Produces {
		add(t)
	}
	for _, a := range r.Then {
		switch a.Kind {
		case ActionInsert:
			add(a.Type)
		case ActionUpdate:
			for _, p := range r.When {
				if p.Bind == a.Target && !p.Negated {
					add(p.Type)
				}
			}
		}
	}
	slices.Sort(out)
	return out
}

// OrderKey orders query rows by a variable.
type OrderKey struct {
	Var  string `json:"var"`
	Desc bool   `json:"desc,omitempty"`
}

// QuerySpec is a named, read-only pattern query.
// Params are variables bound positionally from the query arguments.
type QuerySpec struct {
	Name    string     `json:"name"`
	Params  []string   `json:"params,omitempty"`
	Match   []Pattern  `json:"match"`
	OrderBy []OrderKey `json:"order_by,omitempty"`
}

// Types returns the distinct fact types the query references.
func (q QuerySpec) Types() []string {
	return patternTypes(q.Match)
}

func positiveIndices(ps []Pattern) []int {
	var out []int
	for i, p := range ps {
		if !p.Negated {
			out = append(out, i)
		}
	}
	return out
}

func patternTypes(ps []Pattern) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range ps {
		if !seen[p.Type] {
			seen[p.Type] = true
			out = append(out, p.Type)
		}
	}
	return out
}
