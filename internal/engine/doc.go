// Package engine implements the hydroexec executive decision core.
//
// An Executive runs one synchronous cycle per telemetry sample:
//
//	liveness -> truth -> integrity/chemistry -> physics -> strategy
//	         -> safety overlay -> fleet -> permission gate -> settlement
//
// and returns an ExecutiveDecision plus the outbound events of the cycle.
// A stale sample (outside replay) or a physics breach short-circuits to
// the emergency decision: zero load, mode STOP, tier READ_ONLY.
//
// The Engine wraps one Executive per unit behind a bounded queue and a
// single worker, publishes unit status to a fleet.Board, and hands events
// to a Dispatcher that delivers them to the audit store, notifier,
// control adapter, archive, and metrics. Collaborator failures are logged
// and never influence a decision.
//
// Replay re-executes recorded telemetry twice and verifies the decision
// digests match.
package engine
