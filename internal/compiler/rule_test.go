package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleunit/internal/ir"
)

const colorsCUE = `
rule: collectColors: {
	when: [{type: "Measurement", bind: "$m", fields: {key: "color", value: "?color"}}]
	then: [{kind: "add", set: "controlSet", value: "?color"}]
}

query: FindColor: {
	match: [{type: "Measurement", bind: "$m"}]
}
`

func TestCompileString_RuleAndQuery(t *testing.T) {
	rs, errs := CompileString(colorsCUE, CollectAll)
	require.Empty(t, errs)
	require.Len(t, rs.Rules, 1)
	require.Len(t, rs.Queries, 1)

	color := ir.V("color")
	wantRule := ir.RuleSpec{
		Name: "collectColors",
		When: []ir.Pattern{
			ir.Match("Measurement",
				ir.Eq("key", ir.L(ir.String("color"))),
				ir.Eq("value", color),
			).As("$m"),
		},
		Then: []ir.ActionSpec{{Kind: ir.ActionAdd, Set: "controlSet", Value: &color}},
	}
	if diff := cmp.Diff(wantRule, rs.Rules[0]); diff != "" {
		t.Errorf("rule mismatch (-want +got):\n%s", diff)
	}

	wantQuery := ir.QuerySpec{
		Name:  "FindColor",
		Match: []ir.Pattern{ir.Match("Measurement").As("$m")},
	}
	if diff := cmp.Diff(wantQuery, rs.Queries[0]); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
	assert.NotEmpty(t, rs.Hash())
}

func TestCompileRule_OperatorsAndWhere(t *testing.T) {
	rs, errs := CompileString(`
rule: late: {
	salience: 5
	when: [
		{type: "Deadline", bind: "$d", fields: {host: "?h", days: {op: ">", value: 3}}, where: [{field: "days", op: "<=", value: 12}]},
		{type: "Computer", not: true, fields: {name: "?h", role: {op: "in", value: ["DNS", "router"]}}},
	]
	then: [{kind: "log", message: "late deadline"}]
}
`, FailFast)
	require.Empty(t, errs)
	r := rs.Rules[0]
	assert.Equal(t, 5, r.Salience)
	require.Len(t, r.When, 2)

	assert.Equal(t, []ir.Constraint{
		ir.Eq("host", ir.V("h")),
		{Field: "days", Op: ir.OpGt, Arg: ir.L(ir.Int(3))},
		{Field: "days", Op: ir.OpLe, Arg: ir.L(ir.Int(12))},
	}, r.When[0].Constraints)

	neg := r.When[1]
	assert.True(t, neg.Negated)
	assert.Equal(t, ir.OpIn, neg.Constraints[1].Op)
	assert.Equal(t, ir.L(ir.List{ir.String("DNS"), ir.String("router")}), neg.Constraints[1].Arg)
}

func TestCompileRule_Actions(t *testing.T) {
	rs, errs := CompileString(`
rule: schedule: {
	when: [{type: "Computer", bind: "$c", fields: {name: "?name"}}]
	then: [
		{kind: "insert", type: "Deadline", fields: {host: "?name", days: 3, tag: "??literal"}},
		{kind: "update", target: "$c", fields: {scheduled: true}},
		{kind: "retract", target: "$c"},
		{kind: "remove", set: "hosts", value: "?name"},
		{kind: "halt"},
	]
	produces: ["Deadline"]
}
`, FailFast)
	require.Empty(t, errs)
	then := rs.Rules[0].Then
	require.Len(t, then, 5)

	assert.Equal(t, ir.ActionInsert, then[0].Kind)
	assert.Equal(t, "Deadline", then[0].Type)
	assert.Equal(t, ir.V("name"), then[0].Fields["host"])
	assert.Equal(t, ir.L(ir.Int(3)), then[0].Fields["days"])
	assert.Equal(t, ir.L(ir.String("?literal")), then[0].Fields["tag"], "doubled prefix escapes a literal")

	assert.Equal(t, "$c", then[1].Target)
	assert.Equal(t, ir.L(ir.Bool(true)), then[1].Fields["scheduled"])
	assert.Equal(t, ir.ActionRetract, then[2].Kind)
	assert.Equal(t, "hosts", then[3].Set)
	assert.Equal(t, ir.ActionHalt, then[4].Kind)
	assert.Equal(t, []string{"Deadline"}, rs.Rules[0].Produces)
}

func TestCompileQuery_OrderBy(t *testing.T) {
	rs, errs := CompileString(`
query: DeadlinesFor: {
	params: ["host"]
	match: [{type: "Deadline", fields: {host: "?host", days: "?days", label: "?label"}}]
	order_by: ["-days", {var: "label"}, {var: "host", desc: true}]
}
`, FailFast)
	require.Empty(t, errs)
	q := rs.Queries[0]
	assert.Equal(t, []string{"host"}, q.Params)
	assert.Equal(t, []ir.OrderKey{
		{Var: "days", Desc: true},
		{Var: "label"},
		{Var: "host", Desc: true},
	}, q.OrderBy)
}

func TestCompileString_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"unknown rule field", `rule: r: {whn: []}`, ErrCodeSyntax},
		{"fractional salience", `rule: r: {salience: 1.5, when: [{type: "A"}]}`, ErrCodeSyntax},
		{"unknown operator", `rule: r: {when: [{type: "A", where: [{field: "x", op: "~", value: 1}]}]}`, ErrCodeSyntax},
		{"unknown action kind", `rule: r: {when: [{type: "A"}], then: [{kind: "explode"}]}`, ErrCodeSyntax},
		{"fractional field value", `rule: r: {when: [{type: "A", fields: {x: 1.5}}]}`, ErrCodeBadValue},
		{"empty", `other: 1`, ErrCodeEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := CompileString(tt.src, FailFast)
			require.Len(t, errs, 1)
			var ce *CompileError
			require.ErrorAs(t, errs[0], &ce)
			assert.Equal(t, tt.code, ce.Code, ce.Error())
		})
	}
}

func TestCompileString_CollectAll(t *testing.T) {
	src := `
rule: a: {when: [{type: "A", fields: {x: 1.5}}]}
rule: b: {when: [{type: "B", fields: {y: 2.5}}]}
rule: c: {when: [{type: "C"}]}
`
	rs, errs := CompileString(src, CollectAll)
	assert.Len(t, errs, 2)
	require.Len(t, rs.Rules, 1)
	assert.Equal(t, "c", rs.Rules[0].Name)

	_, errs = CompileString(src, FailFast)
	assert.Len(t, errs, 1)
}

func TestCompileRule_WithoutSchema(t *testing.T) {
	v := cuecontext.New().CompileString(`
rule: r: {when: [{type: "A", fields: {x: {op: "~", value: 1}}}]}
rule: s: {salience: 1}
`)
	require.NoError(t, v.Err())

	_, err := CompileRule(v.LookupPath(cue.ParsePath("rule.r")))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeBadOperator, ce.Code)
	assert.Equal(t, "rule.r.when[0].fields.x.op", ce.Field)

	_, err = CompileRule(v.LookupPath(cue.ParsePath("rule.s")))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeMissing, ce.Code)
}

func TestVarName(t *testing.T) {
	tests := []struct {
		in    string
		name  string
		isVar bool
	}{
		{"?color", "color", true},
		{"color", "", false},
		{"?", "", false},
		{"??x", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		name, ok := varName(tt.in)
		assert.Equal(t, tt.isVar, ok, tt.in)
		assert.Equal(t, tt.name, name, tt.in)
	}
	assert.Equal(t, "?x", unescapeLiteral("??x"))
	assert.Equal(t, "x", unescapeLiteral("x"))
}
