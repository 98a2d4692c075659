package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/hydroexec/internal/ir"
	"github.com/roach88/hydroexec/internal/queryir"
	"github.com/roach88/hydroexec/internal/querysql"
)

// Entry is one stored audit record and the run that produced it.
type Entry struct {
	RunID  string
	Record ir.AuditRecord
}

// Run summarises one engine run.
type Run struct {
	RunID         string
	StartedAt     time.Time
	EngineVersion string
	Decisions     int
}

// QueryDecisions returns the records matching q.
// Results are ordered by seq, then unit and run, byte-wise.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) QueryDecisions(ctx context.Context, q queryir.Query) ([]Entry, error) {
	query, params, err := querysql.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	return s.readEntries(ctx, query, params...)
}

// ReplayTelemetry returns the records of one unit in one run in seq order,
// ready to be fed back through engine.Replay.
func (s *Store) ReplayTelemetry(ctx context.Context, runID, unitID string) ([]ir.AuditRecord, error) {
	entries, err := s.QueryDecisions(ctx, queryir.Select{
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: queryir.FieldRun, Value: runID},
			queryir.Equals{Field: queryir.FieldUnit, Value: unitID},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("replay telemetry: %w", err)
	}

	records := make([]ir.AuditRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, e.Record)
	}
	return records, nil
}

// LatestPerUnit returns the highest-seq record of every unit in runID,
// ordered by unit ID. An empty runID selects the most recent run.
func (s *Store) LatestPerUnit(ctx context.Context, runID string) ([]Entry, error) {
	if runID == "" {
		latest, err := s.latestRun(ctx)
		if err != nil {
			return nil, fmt.Errorf("latest per unit: %w", err)
		}
		if latest == "" {
			return []Entry{}, nil
		}
		runID = latest
	}

	query := `SELECT ` + strings.Join(querysql.Columns, ", ") + `
		FROM decisions d
		WHERE d.run_id = ?
		  AND d.seq = (
			SELECT MAX(seq) FROM decisions
			WHERE run_id = d.run_id AND unit_id = d.unit_id
		  )
		ORDER BY d.unit_id COLLATE BINARY ASC`
	entries, err := s.readEntries(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("latest per unit: %w", err)
	}
	return entries, nil
}

// Runs lists the recorded runs in the order they were first written.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.started_at, r.engine_version, COUNT(d.id)
		FROM runs r
		LEFT JOIN decisions d ON d.run_id = r.run_id
		GROUP BY r.rowid
		ORDER BY r.rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var started string
		if err := rows.Scan(&r.RunID, &started, &r.EngineVersion, &r.Decisions); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("scan run %s: %w", r.RunID, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func (s *Store) latestRun(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id FROM runs ORDER BY rowid DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return runID, nil
}

func (s *Store) readEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}

	// Return empty slice instead of nil
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// scanEntry reads one row in querysql.Columns order.
func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                                               Entry
		decision, telemetry, tier, fleet, at, nonfinite string
	)
	if err := rows.Scan(&e.RunID, &decision, &telemetry, &tier, &fleet, &at, &nonfinite); err != nil {
		return Entry{}, fmt.Errorf("scan decision: %w", err)
	}

	rec := &e.Record
	if err := json.Unmarshal([]byte(decision), &rec.Decision); err != nil {
		return Entry{}, fmt.Errorf("unmarshal decision: %w", err)
	}
	if err := json.Unmarshal([]byte(telemetry), &rec.Telemetry); err != nil {
		return Entry{}, fmt.Errorf("unmarshal telemetry: %w", err)
	}
	replaced, err := decodeNonFinite(nonfinite)
	if err != nil {
		return Entry{}, err
	}
	rec.Telemetry = ir.RestoreNonFinite(rec.Telemetry, replaced)
	if err := json.Unmarshal([]byte(fleet), &rec.Fleet); err != nil {
		return Entry{}, fmt.Errorf("unmarshal fleet: %w", err)
	}
	if len(rec.Fleet) == 0 {
		rec.Fleet = nil
	}
	rec.Tier = ir.PermissionTier(tier)

	evaluated, err := parseTime(at)
	if err != nil {
		return Entry{}, err
	}
	rec.EvaluatedAt = evaluated
	return e, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
