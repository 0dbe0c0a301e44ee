package ir

// Version constants for the rule descriptor schema and the engine.
const (
	// IRVersion is the descriptor schema version emitted by `ruleunit compile`.
	IRVersion = "1"

	// EngineVersion is the ruleunit engine version.
	EngineVersion = "0.1.0"
)
