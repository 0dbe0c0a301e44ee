package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleunit/internal/ir"
)

func TestValidate_Valid(t *testing.T) {
	rs, errs := CompileString(colorsCUE, FailFast)
	require.Empty(t, errs)
	assert.Empty(t, Validate(rs))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	rs, errs := CompileString(`
rule: unbound: {
	when: [{type: "Deadline", fields: {days: {op: ">", value: "?limit"}}}]
}
rule: onlyNegated: {
	when: [{type: "Computer", not: true}]
}
rule: badTarget: {
	when: [{type: "Computer", bind: "$c"}]
	then: [{kind: "retract", target: "$x"}]
}
query: badOrder: {
	match: [{type: "Computer", fields: {name: "?n"}}]
	order_by: ["missing"]
}
`, CollectAll)
	require.Empty(t, errs)

	verrs := Validate(rs)
	codes := map[string]string{}
	for _, e := range verrs {
		codes[strings.SplitN(e.Field, ".", 3)[1]] = e.Code
	}
	assert.Equal(t, map[string]string{
		"unbound":     ir.ErrUnboundVariable,
		"onlyNegated": ir.ErrNoConditions,
		"badTarget":   ir.ErrUnknownTarget,
		"badOrder":    ir.ErrUnknownOrderVar,
	}, codes)

	for _, e := range verrs {
		assert.True(t, strings.HasPrefix(e.Field, "rule.") || strings.HasPrefix(e.Field, "query."), e.Field)
		assert.Contains(t, e.Error(), e.Code)
	}
}

func TestValidationError_Format(t *testing.T) {
	e := ValidationError{Field: "rule.r.when", Message: "boom", Code: "E102"}
	assert.Equal(t, "[E102] rule.r.when: boom", e.Error())
	e.Line = 7
	assert.Equal(t, "[E102] line 7: rule.r.when: boom", e.Error())
}
