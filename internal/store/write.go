package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/hydroexec/internal/ir"
)

// RecordDecision appends one audit record for runID.
//
// The run row is created on first use. Records are write-once: a second
// record for the same (run, unit, seq) is silently ignored, so re-delivering
// an event after a restart is safe. Stored JSON is canonical so equal
// decisions produce equal bytes.
//
// RecordDecision satisfies engine.AuditSink.
func (s *Store) RecordDecision(ctx context.Context, runID string, rec ir.AuditRecord) error {
	if s.readOnly {
		return fmt.Errorf("record decision %s/%d: %w", rec.Decision.UnitID, rec.Decision.Seq, ErrReadOnly)
	}
	row, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("record decision %s/%d: %w", rec.Decision.UnitID, rec.Decision.Seq, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record decision: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, engine_version, record_version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`, runID, row.evaluatedAt, ir.EngineVersion, ir.RecordVersion)
	if err != nil {
		return fmt.Errorf("record decision: write run: %w", err)
	}

	d := rec.Decision
	_, err = tx.ExecContext(ctx, `
		INSERT INTO decisions
		(run_id, unit_id, seq, cycle_id, sample_time, evaluated_at, mode, tier,
		 target_load_mw, master_health, emergency, emergency_reason,
		 protections, digest, decision, telemetry, fleet, nonfinite)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, unit_id, seq) DO NOTHING
	`,
		runID,
		d.UnitID,
		d.Seq,
		d.CycleID,
		formatTime(d.SampleTime),
		row.evaluatedAt,
		string(d.Mode()),
		string(rec.Tier.Normalize()),
		d.TargetLoadMw,
		d.MasterHealthScore,
		d.IsEmergency(),
		row.reason,
		row.protections,
		row.digest,
		row.decision,
		row.telemetry,
		row.fleet,
		row.nonfinite,
	)
	if err != nil {
		return fmt.Errorf("record decision: write decision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record decision: commit: %w", err)
	}
	return nil
}

type encodedRecord struct {
	evaluatedAt string
	reason      string
	protections string
	digest      string
	decision    string
	telemetry   string
	fleet       string
	nonfinite   string
}

func encodeRecord(rec ir.AuditRecord) (encodedRecord, error) {
	var out encodedRecord
	var err error

	if out.protections, err = canonicalText(protectionCodes(rec.Decision.ActiveProtections)); err != nil {
		return out, fmt.Errorf("marshal protections: %w", err)
	}

	fleet := rec.Fleet
	if fleet == nil {
		fleet = []ir.UnitStatus{}
	}
	if out.fleet, err = canonicalText(fleet); err != nil {
		return out, fmt.Errorf("marshal fleet: %w", err)
	}
	if out.decision, err = canonicalText(rec.Decision); err != nil {
		return out, fmt.Errorf("marshal decision: %w", err)
	}
	telemetry, replaced := ir.FiniteTelemetry(rec.Telemetry)
	if out.telemetry, err = canonicalText(telemetry); err != nil {
		return out, fmt.Errorf("marshal telemetry: %w", err)
	}
	if out.nonfinite, err = encodeNonFinite(replaced); err != nil {
		return out, err
	}
	if len(replaced) > 0 {
		slog.Warn("non-finite telemetry stored as zero",
			"unit", rec.Decision.UnitID, "seq", rec.Decision.Seq, "fields", len(replaced))
	}
	if out.digest, err = ir.DecisionDigest(rec.Decision); err != nil {
		return out, err
	}

	if rec.Decision.Emergency != nil {
		out.reason = string(rec.Decision.Emergency.Reason)
	}
	out.evaluatedAt = formatTime(rec.EvaluatedAt)
	return out, nil
}

// protectionCodes strips the detail from "CODE: detail" entries so filters
// can match on the code alone.
func protectionCodes(active []string) []string {
	codes := make([]string, 0, len(active))
	for _, p := range active {
		code, _, _ := strings.Cut(p, ":")
		codes = append(codes, strings.TrimSpace(code))
	}
	return codes
}

// encodeNonFinite keeps replaced values as strconv text ("NaN", "+Inf",
// "-Inf"), which JSON numbers cannot hold.
func encodeNonFinite(replaced map[string]float64) (string, error) {
	text := make(map[string]string, len(replaced))
	for path, v := range replaced {
		text[path] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	out, err := canonicalText(text)
	if err != nil {
		return "", fmt.Errorf("marshal nonfinite: %w", err)
	}
	return out, nil
}

func decodeNonFinite(s string) (map[string]float64, error) {
	var text map[string]string
	if err := json.Unmarshal([]byte(s), &text); err != nil {
		return nil, fmt.Errorf("unmarshal nonfinite: %w", err)
	}
	if len(text) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(text))
	for path, v := range text {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("unmarshal nonfinite %s: %w", path, err)
		}
		out[path] = f
	}
	return out, nil
}

func canonicalText(v any) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
