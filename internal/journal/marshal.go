package journal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/ruleunit/internal/engine"
	"github.com/roach88/ruleunit/internal/ir"
)

// marshalPayload serializes the kind-specific parts of an event to
// canonical JSON. Kind, seq, rule and fact id live in their own columns.
func marshalPayload(ev engine.Event) (string, error) {
	m := map[string]any{}
	if ev.Fact != nil {
		m["fact"] = map[string]any{"type": ev.Fact.Type, "fields": ev.Fact.Fields}
	}
	if len(ev.Facts) > 0 {
		ids := make([]any, len(ev.Facts))
		for i, id := range ev.Facts {
			ids[i] = id
		}
		m["facts"] = ids
	}
	if ev.Binding != nil {
		m["binding"] = map[string]any{"vars": ev.Binding.Vars, "facts": ev.Binding.Facts}
	}
	if ev.Set != "" {
		m["set"] = ev.Set
		m["value"] = ev.Value
	}
	if ev.Error != "" {
		m["error"] = ev.Error
	}
	b, err := ir.MarshalCanonical(m)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", ev.Kind, err)
	}
	return string(b), nil
}

// unmarshalPayload fills the kind-specific fields of ev from a payload.
func unmarshalPayload(payload string, ev *engine.Event) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if raw, ok := m["fact"].(map[string]any); ok {
		typ, _ := raw["type"].(string)
		fields, err := fieldsFrom(raw["fields"])
		if err != nil {
			return fmt.Errorf("unmarshal fact: %w", err)
		}
		ev.Fact = &ir.Fact{Type: typ, Fields: fields}
	}
	if raw, ok := m["facts"].([]any); ok {
		ev.Facts = make([]ir.FactID, len(raw))
		for i, elem := range raw {
			id, err := factID(elem)
			if err != nil {
				return fmt.Errorf("unmarshal facts[%d]: %w", i, err)
			}
			ev.Facts[i] = id
		}
	}
	if raw, ok := m["binding"].(map[string]any); ok {
		vars, err := fieldsFrom(raw["vars"])
		if err != nil {
			return fmt.Errorf("unmarshal binding: %w", err)
		}
		b := ir.Binding{Vars: vars, Facts: map[string]ir.FactID{}}
		if facts, ok := raw["facts"].(map[string]any); ok {
			for name, elem := range facts {
				id, err := factID(elem)
				if err != nil {
					return fmt.Errorf("unmarshal binding fact %s: %w", name, err)
				}
				b.Facts[name] = id
			}
		}
		ev.Binding = &b
	}
	if set, ok := m["set"].(string); ok {
		ev.Set = set
		v, err := ir.FromAny(m["value"])
		if err != nil {
			return fmt.Errorf("unmarshal value: %w", err)
		}
		ev.Value = v
	}
	if msg, ok := m["error"].(string); ok {
		ev.Error = msg
	}
	return nil
}

func fieldsFrom(raw any) (ir.Fields, error) {
	if raw == nil {
		return ir.Fields{}, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", raw)
	}
	return ir.FieldsFromMap(obj)
}

func factID(raw any) (ir.FactID, error) {
	n, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
	i, err := n.Int64()
	if err != nil {
		return 0, err
	}
	return ir.FactID(i), nil
}
