package archive

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hydroexec/internal/engine"
	"github.com/roach88/hydroexec/internal/ir"
)

var _ engine.Recorder = (*Writer)(nil)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func unit() ir.UnitSpec {
	return ir.UnitSpec{ID: "U1", Family: ir.FamilyFrancis, MaxCapacityMw: 100}
}

func sample(at time.Time, vibration float64) ir.Telemetry {
	return ir.Telemetry{
		UnitID:          "U1",
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

// liveRecords runs three cycles (calm, shaky, e-stop) and returns their
// audit records.
func liveRecords(t *testing.T) []ir.AuditRecord {
	t.Helper()
	now := t0.Add(time.Second)
	x := engine.NewExecutive(unit(), 0, engine.DefaultSettings(),
		engine.WithNow(func() time.Time { return now }))

	stop := sample(t0.Add(200*time.Millisecond), 0.05)
	stop.EStop = true
	var recs []ir.AuditRecord
	for _, s := range []ir.Telemetry{sample(t0, 0.05), sample(t0.Add(100*time.Millisecond), 5.0), stop} {
		for _, ev := range x.ExecuteCycle(s, ir.Metadata{}).Events {
			if ev.Kind == ir.EventAudit {
				recs = append(recs, *ev.Audit)
			}
		}
	}
	require.Len(t, recs, 3)
	return recs
}

func writeArchive(t *testing.T, recs []ir.AuditRecord) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, w.Append(r))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func readArchive(t *testing.T, data []byte) []ir.AuditRecord {
	t.Helper()
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()
	recs, err := ReadAll(r)
	require.NoError(t, err)
	return recs
}

func TestArchive_RoundTrip(t *testing.T) {
	recs := liveRecords(t)

	got := readArchive(t, writeArchive(t, recs))

	require.Len(t, got, len(recs))
	for i := range recs {
		assert.Equal(t, recs[i].Decision, got[i].Decision)
		assert.Equal(t, recs[i].Telemetry, got[i].Telemetry)
		assert.Equal(t, recs[i].Tier, got[i].Tier)
		assert.True(t, recs[i].EvaluatedAt.Equal(got[i].EvaluatedAt))
	}
	assert.True(t, got[2].Decision.IsEmergency())
}

func TestArchive_PreservesSubMillisecondTimes(t *testing.T) {
	rec := ir.AuditRecord{
		Decision:    ir.ExecutiveDecision{UnitID: "U1", Seq: 1},
		Telemetry:   sample(t0.Add(123456789*time.Nanosecond), 0.05),
		EvaluatedAt: t0.Add(987654321 * time.Nanosecond),
	}

	got := readArchive(t, writeArchive(t, []ir.AuditRecord{rec}))

	require.Len(t, got, 1)
	assert.True(t, rec.Telemetry.Timestamp.Equal(got[0].Telemetry.Timestamp))
	assert.True(t, rec.EvaluatedAt.Equal(got[0].EvaluatedAt))
}

func TestArchive_NaNSurvives(t *testing.T) {
	s := sample(t0, math.NaN())
	rec := ir.AuditRecord{Decision: ir.ExecutiveDecision{UnitID: "U1", Seq: 1}, Telemetry: s}

	got := readArchive(t, writeArchive(t, []ir.AuditRecord{rec}))

	require.Len(t, got, 1)
	assert.True(t, math.IsNaN(got[0].Telemetry.VibrationMmS))
}

func TestArchive_Deterministic(t *testing.T) {
	recs := liveRecords(t)

	assert.Equal(t, writeArchive(t, recs), writeArchive(t, recs))
}

func TestArchive_Empty(t *testing.T) {
	data := writeArchive(t, nil)

	got := readArchive(t, data)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestWriter_CountAndClose(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	recs := liveRecords(t)
	for _, r := range recs {
		require.NoError(t, w.Append(r))
	}
	assert.Equal(t, 3, w.Count())

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	err = w.Append(recs[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append after close")
}

func TestReader_BadHeader(t *testing.T) {
	valid := writeArchive(t, nil)
	wrongVersion := append([]byte{}, valid...)
	wrongVersion[len(magic)] = FormatVersion + 1

	tests := []struct {
		name string
		data []byte
		msg  string
	}{
		{"empty", nil, "truncated"},
		{"short", []byte("HYD"), "truncated"},
		{"wrong magic", []byte("NOTARCH\x01rest"), "not an archive"},
		{"wrong version", wrongVersion, "unsupported version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBadHeader)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestReader_TruncatedStream(t *testing.T) {
	data := writeArchive(t, liveRecords(t))
	cut := data[:headerLen+(len(data)-headerLen)/2]

	r, err := NewReader(bytes.NewReader(cut))
	require.NoError(t, err)
	defer r.Close()

	_, err = ReadAll(r)
	assert.Error(t, err)
}

func TestReadFile_FeedsReplay(t *testing.T) {
	recs := liveRecords(t)[:2]
	path := filepath.Join(t.TempDir(), "u1.hxa")
	require.NoError(t, os.WriteFile(path, writeArchive(t, recs), 0o644))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	replay := make([]engine.ReplayRecord, 0, len(got))
	for _, r := range got {
		rr, err := engine.RecordFromAudit(r)
		require.NoError(t, err)
		replay = append(replay, rr)
	}
	res, err := engine.Replay(unit(), 0, engine.DefaultSettings(), replay)
	require.NoError(t, err)
	assert.True(t, res.Deterministic)
	assert.Equal(t, 2, res.Matched)
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.hxa"))
	assert.Error(t, err)
}
