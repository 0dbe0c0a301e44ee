package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/ruleunit/internal/ir"
)

func TestControlSet_AddRemove(t *testing.T) {
	var events []EventKind
	cs := newControlSet("controlSet", func(k EventKind, set string, v ir.Value) {
		events = append(events, k)
	})

	assert.True(t, cs.Add(ir.String("red")))
	assert.True(t, cs.Add(ir.String("green")))
	assert.False(t, cs.Add(ir.String("red")), "duplicates are ignored")
	assert.True(t, cs.Add(ir.Int(1)))
	assert.False(t, cs.Contains(ir.String("1")), "membership respects kind")

	assert.Equal(t, []string{"red", "green", "1"}, cs.Strings())

	assert.True(t, cs.Remove(ir.String("red")))
	assert.False(t, cs.Remove(ir.String("red")))
	assert.Equal(t, []string{"green", "1"}, cs.Strings())
	assert.True(t, cs.Contains(ir.Int(1)))
	assert.Equal(t, 2, cs.Len())

	// Index stays consistent after a removal shifts members.
	assert.True(t, cs.Remove(ir.Int(1)))
	assert.Equal(t, []ir.Value{ir.String("green")}, cs.Values())

	assert.Equal(t, []EventKind{
		EventControlSetAdded, EventControlSetAdded, EventControlSetAdded,
		EventControlSetRemoved, EventControlSetRemoved,
	}, events)
}

func TestControlSet_NilIsNull(t *testing.T) {
	cs := newControlSet("s", nil)
	assert.True(t, cs.Add(nil))
	assert.True(t, cs.Contains(ir.Null{}))
	assert.Equal(t, "s", cs.Name())
}
