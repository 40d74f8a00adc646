package ir

// Version constants for persisted drafts and the engine.
const (
	// IRVersion is the draft snapshot schema version.
	IRVersion = "1"

	// EngineVersion is the formsync engine version.
	EngineVersion = "0.1.0"
)
