package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/hydroexec/internal/engine"
	"github.com/roach88/hydroexec/internal/ir"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func francisUnit(id string) ir.UnitSpec {
	return ir.UnitSpec{ID: id, Family: ir.FamilyFrancis, MaxCapacityMw: 100}
}

// createTestSample is a healthy Francis sample at best efficiency.
func createTestSample(unit string, at time.Time, vibration float64) ir.Telemetry {
	return ir.Telemetry{
		UnitID:          unit,
		Timestamp:       at,
		CommStatus:      ir.CommGood,
		VibrationMmS:    vibration,
		SensorA:         ir.SensorReading{Value: 100, Timestamp: at},
		SensorB:         ir.SensorReading{Value: 100, Timestamp: at},
		SpeedPct:        100,
		GridFrequencyHz: 50,
		Market:          ir.MarketSignals{PriceEurPerMwh: 50, Demand: ir.DemandMed},
		Turbine: ir.TurbineTelemetry{Reading: ir.FrancisReading{
			GateOpeningPct:           85,
			DraftTubeVortexAmplitude: 0.05,
			VortexFrequencyHz:        3,
		}},
	}
}

// liveRecords runs samples through a live executive and returns the audit
// records it emitted, one per sample.
func liveRecords(t *testing.T, unit ir.UnitSpec, samples ...ir.Telemetry) []ir.AuditRecord {
	t.Helper()
	now := t0.Add(time.Second)
	x := engine.NewExecutive(unit, 0, engine.DefaultSettings(),
		engine.WithNow(func() time.Time { return now }))

	recs := make([]ir.AuditRecord, 0, len(samples))
	for _, s := range samples {
		out := x.ExecuteCycle(s, ir.Metadata{})
		var found bool
		for _, ev := range out.Events {
			if ev.Kind == ir.EventAudit {
				recs = append(recs, *ev.Audit)
				found = true
			}
		}
		require.True(t, found, "cycle emitted no audit event")
	}
	return recs
}

// recordAll writes recs under runID.
func recordAll(t *testing.T, s *Store, runID string, recs []ir.AuditRecord) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, s.RecordDecision(context.Background(), runID, r))
	}
}
