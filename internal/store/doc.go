// Package store provides SQLite-backed durable storage for the decision
// audit log.
//
// The log has two tables:
//   - runs: one row per engine run, created by its first decision
//   - decisions: one write-once row per executive decision, with the
//     telemetry, tier and fleet snapshot the cycle saw
//
// # Invariants
//
// Write-once records:
//   - UNIQUE(run_id, unit_id, seq) with ON CONFLICT DO NOTHING
//   - Re-delivering an audit event is a no-op
//
// Logical ordering:
//   - Reads order by seq, never by wall-clock columns
//   - Ties break on unit_id and run_id with COLLATE BINARY
//
// Canonical payloads:
//   - decision, telemetry, fleet and protections are canonical JSON
//   - digest is ir.DecisionDigest of the stored decision
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: decisions reference runs
//
// Filtered reads go through internal/queryir and are compiled to SQL by
// internal/querysql.
package store
