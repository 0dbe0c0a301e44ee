package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/ruleunit/internal/ir"
)

// ActionContext is what a firing rule action can see and change.
//
// It is only valid for the duration of the action call. Mutations go through
// the owning session, so they notify the matcher and observers exactly like
// caller mutations do.
type ActionContext struct {
	ctx     context.Context
	session *Session
	act     Activation
}

// Context returns the context passed to FireAll.
func (c *ActionContext) Context() context.Context { return c.ctx }

// Rule returns the name of the firing rule.
func (c *ActionContext) Rule() string { return c.act.Rule }

// Activation returns the activation being fired.
func (c *ActionContext) Activation() Activation { return c.act }

// Binding returns a copy of the activation's binding.
func (c *ActionContext) Binding() ir.Binding { return c.act.Binding.Clone() }

// Var looks up a bound variable.
func (c *ActionContext) Var(name string) (ir.Value, bool) {
	return c.act.Binding.Var(name)
}

// FactID returns the id bound to a fact variable such as "$m".
func (c *ActionContext) FactID(bind string) (ir.FactID, bool) {
	id, ok := c.act.Binding.Facts[bind]
	return id, ok
}

// Fact returns the current state of the fact bound to a fact variable.
// It reports false if the fact has been retracted since activation.
func (c *ActionContext) Fact(bind string) (ir.Fact, bool) {
	id, ok := c.FactID(bind)
	if !ok {
		return ir.Fact{}, false
	}
	return c.session.store.Get(id)
}

// Insert adds a fact to the session.
func (c *ActionContext) Insert(f ir.Fact) ir.FactID {
	return c.session.insert(f)
}

// Retract removes a fact from the session.
func (c *ActionContext) Retract(id ir.FactID) bool {
	return c.session.retract(id)
}

// Update replaces a fact's fields, keeping its id.
func (c *ActionContext) Update(id ir.FactID, f ir.Fact) (bool, error) {
	return c.session.update(id, f)
}

// ControlSet returns the named control set, creating it on first use.
func (c *ActionContext) ControlSet(name string) *ControlSet {
	return c.session.controlSet(name)
}

// Halt stops FireAll after this action returns. Pending activations stay on
// the agenda for the next FireAll.
func (c *ActionContext) Halt() {
	c.session.halted = true
}

// Logger returns the session logger annotated with the rule name.
func (c *ActionContext) Logger() *slog.Logger {
	return c.session.logger.With("rule", c.act.Rule)
}

// compileThen builds an Action from declarative steps. Steps run in order;
// the first failing step aborts the action.
func compileThen(spec ir.RuleSpec) Action {
	steps := append([]ir.ActionSpec(nil), spec.Then...)
	return func(ctx *ActionContext) error {
		for i, step := range steps {
			if err := runStep(ctx, step); err != nil {
				return fmt.Errorf("then[%d] %s: %w", i, step.Kind, err)
			}
		}
		return nil
	}
}

func runStep(ctx *ActionContext, step ir.ActionSpec) error {
	b := ctx.act.Binding
	switch step.Kind {
	case ir.ActionAdd, ir.ActionRemove:
		v, ok := step.Value.Resolve(b)
		if !ok {
			return fmt.Errorf("variable %q is unbound", step.Value.Var)
		}
		set := ctx.ControlSet(step.Set)
		if step.Kind == ir.ActionAdd {
			set.Add(v)
		} else {
			set.Remove(v)
		}
	case ir.ActionInsert:
		fields, err := resolveFields(step.Fields, b)
		if err != nil {
			return err
		}
		ctx.Insert(ir.Fact{Type: step.Type, Fields: fields})
	case ir.ActionRetract:
		id, ok := ctx.FactID(step.Target)
		if !ok {
			return fmt.Errorf("fact variable %q is unbound", step.Target)
		}
		ctx.Retract(id)
	case ir.ActionUpdate:
		id, ok := ctx.FactID(step.Target)
		if !ok {
			return fmt.Errorf("fact variable %q is unbound", step.Target)
		}
		current, ok := ctx.Fact(step.Target)
		if !ok {
			// Retracted by an earlier step; nothing to update.
			return nil
		}
		fields, err := resolveFields(step.Fields, b)
		if err != nil {
			return err
		}
		for k, v := range fields {
			current.Fields[k] = v
		}
		if _, err := ctx.Update(id, current); err != nil {
			return err
		}
	case ir.ActionLog:
		args := []any{"facts", ctx.act.Facts}
		for _, k := range b.Vars.SortedKeys() {
			args = append(args, k, ir.Format(b.Vars[k]))
		}
		ctx.Logger().Info(step.Message, args...)
	case ir.ActionHalt:
		ctx.Halt()
	default:
		return fmt.Errorf("unknown action kind %q", step.Kind)
	}
	return nil
}

func resolveFields(terms map[string]ir.Term, b ir.Binding) (ir.Fields, error) {
	out := make(ir.Fields, len(terms))
	for name, t := range terms {
		v, ok := t.Resolve(b)
		if !ok {
			return nil, fmt.Errorf("field %q: variable %q is unbound", name, t.Var)
		}
		out[name] = v
	}
	return out, nil
}
