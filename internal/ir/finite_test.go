package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiniteTelemetry(t *testing.T) {
	pred := math.Inf(-1)
	raw := Telemetry{
		UnitID:       "U1",
		VibrationMmS: math.NaN(),
		SensorA:      SensorReading{Value: 100},
		SensorB:      SensorReading{Value: math.Inf(1)},
		Predicted:    &pred,
		Chemistry:    Chemistry{PH: math.NaN()},
		Turbine:      TurbineTelemetry{Reading: &KaplanReading{BladeAngleDeg: math.Inf(1), GateOpeningPct: 60}},
	}

	fin, replaced := FiniteTelemetry(raw)

	assert.Len(t, replaced, 5)
	assert.True(t, math.IsNaN(replaced["vibration_mm_s"]))
	assert.True(t, math.IsInf(replaced["sensor_b.value"], 1))
	assert.True(t, math.IsInf(replaced["predicted"], -1))
	assert.True(t, math.IsNaN(replaced["chemistry.ph"]))
	assert.True(t, math.IsInf(replaced["turbine.kaplan.blade_angle_deg"], 1))

	_, err := MarshalCanonical(fin)
	require.NoError(t, err, "the finite copy encodes canonically")
	assert.Equal(t, 100.0, fin.SensorA.Value)
	assert.Equal(t, 60.0, fin.Turbine.Reading.(KaplanReading).GateOpeningPct)

	// The caller's sample is untouched.
	assert.True(t, math.IsNaN(raw.VibrationMmS))
	assert.True(t, math.IsInf(*raw.Predicted, -1))
	assert.True(t, math.IsInf(raw.Turbine.Reading.(*KaplanReading).BladeAngleDeg, 1))

	back := RestoreNonFinite(fin, replaced)
	assert.True(t, math.IsNaN(back.VibrationMmS))
	assert.True(t, math.IsInf(back.SensorB.Value, 1))
	assert.True(t, math.IsInf(*back.Predicted, -1))
	assert.True(t, math.IsInf(back.Turbine.Reading.(KaplanReading).BladeAngleDeg, 1))
	assert.Equal(t, 0.0, fin.VibrationMmS, "restore works on a copy")
}

func TestFiniteTelemetry_AlreadyFinite(t *testing.T) {
	raw := Telemetry{UnitID: "U1", VibrationMmS: 0.5, Turbine: TurbineTelemetry{Reading: PeltonReading{ActiveNozzles: 4}}}
	fin, replaced := FiniteTelemetry(raw)
	assert.Nil(t, replaced)
	assert.Equal(t, raw, fin)
	assert.Equal(t, raw, RestoreNonFinite(raw, nil))
}
