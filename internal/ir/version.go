package ir

// Version constants for audit records and the engine.
const (
	// RecordVersion is the audit record schema version.
	RecordVersion = "1"

	// EngineVersion is the hydroexec engine version.
	EngineVersion = "0.1.0"
)
