// Package harness runs rule scenarios against real sessions.
//
// A scenario names a directory of CUE rules, a list of steps that mutate a
// fresh session, and assertions checked once the steps are done.
//
// # Scenario Format
//
//	name: colors
//	description: "collect every color measurement"
//	rules: ../rules            # relative to the scenario file
//	max_firings: 100           # optional, default engine.DefaultMaxFirings
//	steps:
//	  - insert: {type: Measurement, fields: {key: color, value: red}}
//	    as: red
//	  - update: red
//	    fields: {value: green}
//	  - retract: red
//	  - fire: {fired: 1}
//	  - fire: {error: RULE_CYCLE_EXCEEDED}
//	  - query: FindColorValue
//	    args: [green]
//	    expect: {count: 1, values: {color: [green]}}
//	assertions:
//	  - type: control_set
//	    set: controlSet
//	    values: [green]
//	  - type: fired
//	    count: 1
//	  - type: fact_count
//	    fact_type: Measurement
//	    count: 0
//
// Every step holds exactly one of insert, retract, update, fire or query.
// Aliases given with `as` are resolved by retract and update.
//
// # Assertion Types
//
//   - control_set: the named set holds exactly values, in insertion order
//   - fired: the session fired count activations in total
//   - fact_count: count live facts of fact_type (all facts when empty)
//   - trace_contains: an event of kind (and rule, when given) was emitted
//   - trace_order: the rules fired in this relative order
//   - trace_count: an event of kind (and rule) was emitted count times
//
// # Deterministic Testing
//
// The session id is the scenario name and every event carries a logical
// sequence number, so two runs of the same scenario produce byte-identical
// traces. FormatTrace renders a trace for golden comparison:
//
//	err := harness.RunWithGolden(t, scenario)
package harness
