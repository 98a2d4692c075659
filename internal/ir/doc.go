// Package ir holds the shared domain types of the executive decision core:
// telemetry samples, sensor verdicts, decisions, outbound events, and the
// canonical JSON and content-addressed identity used by the audit log.
//
// This package imports nothing internal. Every sub-engine and runtime package
// imports ir, which keeps the type layer free of dependency cycles.
//
// Key design constraints:
//   - Closed enums (Mode, PermissionTier, Winner, TurbineFamily) replace
//     free-form strings; callers switch on the variant, never on substrings
//   - Turbine-family telemetry is a tagged union (FamilyReading)
//   - All JSON tags use snake_case; CBOR encoding reuses the JSON tags
//   - Cycles are ordered by a logical seq; wall-clock time is only consulted
//     by the liveness check
package ir
