package engine

import (
	"slices"

	"github.com/roach88/ruleunit/internal/ir"
)

// ControlSet is a named set of values owned by a session.
//
// Rule actions receive it through ActionContext.ControlSet and mutate it
// explicitly; there is no package-level shared state. Members keep the order
// in which they were first added. Membership uses ir.Key, so two values are
// the same member exactly when ir.Equal reports true.
type ControlSet struct {
	name   string
	items  []ir.Value
	index  map[string]int
	notify func(kind EventKind, set string, v ir.Value)
}

func newControlSet(name string, notify func(EventKind, string, ir.Value)) *ControlSet {
	return &ControlSet{
		name:   name,
		index:  make(map[string]int),
		notify: notify,
	}
}

// Name returns the set name.
func (c *ControlSet) Name() string { return c.name }

// Add inserts v and reports whether it was new.
func (c *ControlSet) Add(v ir.Value) bool {
	if v == nil {
		v = ir.Null{}
	}
	k := ir.Key(v)
	if _, ok := c.index[k]; ok {
		return false
	}
	c.index[k] = len(c.items)
	c.items = append(c.items, v)
	if c.notify != nil {
		c.notify(EventControlSetAdded, c.name, v)
	}
	return true
}

// Remove deletes v and reports whether it was present.
func (c *ControlSet) Remove(v ir.Value) bool {
	if v == nil {
		v = ir.Null{}
	}
	k := ir.Key(v)
	i, ok := c.index[k]
	if !ok {
		return false
	}
	c.items = slices.Delete(c.items, i, i+1)
	delete(c.index, k)
	for j := i; j < len(c.items); j++ {
		c.index[ir.Key(c.items[j])] = j
	}
	if c.notify != nil {
		c.notify(EventControlSetRemoved, c.name, v)
	}
	return true
}

// Contains reports membership.
func (c *ControlSet) Contains(v ir.Value) bool {
	if v == nil {
		v = ir.Null{}
	}
	_, ok := c.index[ir.Key(v)]
	return ok
}

// Len returns the number of members.
func (c *ControlSet) Len() int { return len(c.items) }

// Values returns the members in insertion order.
func (c *ControlSet) Values() []ir.Value {
	return slices.Clone(c.items)
}

// Strings formats every member with ir.Format.
func (c *ControlSet) Strings() []string {
	out := make([]string, len(c.items))
	for i, v := range c.items {
		out[i] = ir.Format(v)
	}
	return out
}
