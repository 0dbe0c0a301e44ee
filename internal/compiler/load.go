package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/ruleunit/internal/engine"
	"github.com/roach88/ruleunit/internal/ir"
)

//go:embed schema.cue
var schemaCUE []byte

// Load error codes (E002-E006).
const (
	ErrCodeScan     = "E002" // directory scan error
	ErrCodeNoFiles  = "E003" // no CUE files found
	ErrCodeLoad     = "E004" // CUE load failed
	ErrCodeNotFound = "E005" // path not found
	ErrCodeBuild    = "E006" // CUE build failed
	ErrCodeEmpty    = "E007" // no rules or queries defined
)

// Mode controls how errors are handled while compiling a rule set.
type Mode int

const (
	// FailFast stops on the first error encountered.
	FailFast Mode = iota
	// CollectAll collects all errors before returning.
	CollectAll
)

// RuleSet is a compiled set of rules and queries.
type RuleSet struct {
	Rules   []ir.RuleSpec  `json:"rules"`
	Queries []ir.QuerySpec `json:"queries"`
	Files   int            `json:"-"`

	pos map[string]token.Pos
}

// Hash identifies the rule set by rule names, salience and query names.
func (rs *RuleSet) Hash() string {
	return ir.RuleSetHash(rs.Rules, rs.Queries)
}

// Pos returns the source position of a rule ("rule.x") or query ("query.x").
func (rs *RuleSet) Pos(path string) token.Pos {
	if rs.pos == nil {
		return token.NoPos
	}
	return rs.pos[path]
}

// KnowledgeBase registers every rule and query. Rule actions are compiled
// from their declarative then lists.
func (rs *RuleSet) KnowledgeBase() (*engine.KnowledgeBase, error) {
	kb := engine.NewKnowledgeBase()
	for _, r := range rs.Rules {
		if err := kb.AddRule(engine.Rule{Spec: r}); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Name, err)
		}
	}
	for _, q := range rs.Queries {
		if err := kb.AddQuery(q); err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Name, err)
		}
	}
	return kb, nil
}

// CompileValue compiles every rule and query under v, after unifying v
// with the rule set schema.
func CompileValue(v cue.Value, mode Mode) (*RuleSet, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError("cue", err)}
	}
	schema := v.Context().CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, []error{formatCUEError("schema", err)}
	}
	v = schema.Unify(v)
	if err := v.Validate(); err != nil {
		return nil, []error{formatCUEError("cue", err)}
	}

	rs := &RuleSet{pos: make(map[string]token.Pos)}
	var errs []error
	fail := func(err error) bool {
		errs = append(errs, err)
		return mode == FailFast
	}

	if rules := v.LookupPath(cue.ParsePath("rule")); rules.Exists() {
		iter, err := rules.Fields()
		if err != nil && fail(formatCUEError("rule", err)) {
			return rs, errs
		}
		for err == nil && iter.Next() {
			r, cerr := CompileRule(iter.Value())
			if cerr != nil {
				if fail(cerr) {
					return rs, errs
				}
				continue
			}
			rs.pos["rule."+r.Name] = iter.Value().Pos()
			rs.Rules = append(rs.Rules, *r)
		}
	}

	if queries := v.LookupPath(cue.ParsePath("query")); queries.Exists() {
		iter, err := queries.Fields()
		if err != nil && fail(formatCUEError("query", err)) {
			return rs, errs
		}
		for err == nil && iter.Next() {
			q, cerr := CompileQuery(iter.Value())
			if cerr != nil {
				if fail(cerr) {
					return rs, errs
				}
				continue
			}
			rs.pos["query."+q.Name] = iter.Value().Pos()
			rs.Queries = append(rs.Queries, *q)
		}
	}

	if len(rs.Rules) == 0 && len(rs.Queries) == 0 && len(errs) == 0 {
		errs = append(errs, &CompileError{Field: "cue", Message: "no rules or queries found", Code: ErrCodeEmpty})
	}
	return rs, errs
}

// CompileString compiles CUE source text. Used by tests and embedded rule sets.
func CompileString(src string, mode Mode) (*RuleSet, []error) {
	v := cuecontext.New().CompileString(src, cue.Filename("inline.cue"))
	return CompileValue(v, mode)
}

// Load loads every .cue file in dir as one CUE package and compiles it.
func Load(dir string, mode Mode) (*RuleSet, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&CompileError{Field: "dir", Message: fmt.Sprintf("rules directory not found: %s", dir), Code: ErrCodeNotFound}}
	}
	if err != nil {
		return nil, []error{&CompileError{Field: "dir", Message: fmt.Sprintf("error accessing rules directory: %v", err), Code: ErrCodeNotFound}}
	}
	if !info.IsDir() {
		return nil, []error{&CompileError{Field: "dir", Message: fmt.Sprintf("not a directory: %s", dir), Code: ErrCodeNotFound}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&CompileError{Field: "dir", Message: fmt.Sprintf("error scanning directory: %v", err), Code: ErrCodeScan}}
	}
	if len(files) == 0 {
		return nil, []error{&CompileError{Field: "dir", Message: fmt.Sprintf("no CUE files found in %s", dir), Code: ErrCodeNoFiles}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&CompileError{Field: "dir", Message: "no CUE instances loaded", Code: ErrCodeLoad}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&CompileError{Field: "dir", Message: fmt.Sprintf("loading CUE files: %v", inst.Err), Code: ErrCodeLoad}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		ce := formatCUEError("cue", err)
		if c, ok := ce.(*CompileError); ok {
			c.Code = ErrCodeBuild
		}
		return nil, []error{ce}
	}

	rs, errs := CompileValue(value, mode)
	if rs != nil {
		rs.Files = len(files)
	}
	return rs, errs
}

// FindCUEFiles returns the .cue files directly inside dir, sorted.
// Subdirectories are not part of the package and are skipped.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
