// Package harness runs conformance scenarios against the executive.
//
// A scenario names a CUE plant, a base telemetry sample and a list of
// steps. Each step feeds one sample to its unit's Executive on a
// deterministic wall clock, checks the step's expectations, and writes the
// audit record to a fresh in-memory store. Assertions then run against the
// decision trace and the audit log.
//
// # Scenario Format
//
//	name: vibration_throttle
//	description: "A running unit is derated when vibration exceeds the ceiling"
//	plant: plants/alpine.cue
//	tier: advisory
//	base: &calm
//	  comm_status: GOOD
//	  vibration_mm_s: 0.05
//	  sensor_a: {value: 100}
//	  sensor_b: {value: 100}
//	  speed_pct: 100
//	  grid_frequency_hz: 50
//	  market: {price_eur_per_mwh: 50, demand: MED}
//	  turbine:
//	    francis: {gate_opening_pct: 85, draft_tube_vortex_amplitude: 0.05, vortex_frequency_hz: 3}
//	steps:
//	  - unit: U1
//	    at: 0s
//	    telemetry: *calm
//	    expect: {mode: RUN, target_load_mw: 70}
//	  - unit: U1
//	    at: 1s
//	    telemetry: {<<: *calm, vibration_mm_s: 5.0}
//	    expect: {mode: RUN_THROTTLED, protections: [VIBRATION_CAP]}
//	assertions:
//	  - type: mode_sequence
//	    unit: U1
//	    modes: [RUN, RUN_THROTTLED]
//	  - type: audit_count
//	    where: {mode: RUN_THROTTLED}
//	    count: 1
//
// A step's sample is stamped at scenario start plus `at`; the unit decides
// it `lag` later (100ms when omitted). A telemetry timestamp written in the
// file wins over `at`, which is how regression scenarios are expressed.
//
// # Assertion Types
//
//   - mode_sequence: the modes decided for one unit, in order
//   - emergency_count: emergency stops, optionally for one unit or reason
//   - event_count: outbound events of one kind, optionally for one unit
//   - protection_count: decisions raising a protection code
//   - audit_count: audit log rows matching a filter, counted through the
//     store's query path
//
// # Golden Traces
//
// RunWithGolden compares the decision trace against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
