package ir

import "math"

// FiniteTelemetry returns a copy of t with every NaN or infinite float set
// to 0, plus the replaced values keyed by JSON path. The map is nil when t
// was already finite.
//
// Decisions are taken on the raw sample; the finite copy exists so the
// sample can be encoded as canonical JSON. RestoreNonFinite reverses it.
func FiniteTelemetry(t Telemetry) (Telemetry, map[string]float64) {
	var replaced map[string]float64
	t = t.visitFloats(func(path string, v *float64) {
		if !math.IsNaN(*v) && !math.IsInf(*v, 0) {
			return
		}
		if replaced == nil {
			replaced = make(map[string]float64)
		}
		replaced[path] = *v
		*v = 0
	})
	return t, replaced
}

// RestoreNonFinite writes the values FiniteTelemetry replaced back into a
// copy of t. Unknown paths are ignored.
func RestoreNonFinite(t Telemetry, replaced map[string]float64) Telemetry {
	if len(replaced) == 0 {
		return t
	}
	return t.visitFloats(func(path string, v *float64) {
		if orig, ok := replaced[path]; ok {
			*v = orig
		}
	})
}

// visitFloats calls fn for every float field of a copy of t and returns the
// copy. Pointer fields and the family reading are copied before fn sees
// them, so the caller's sample is never mutated.
func (t Telemetry) visitFloats(fn func(path string, v *float64)) Telemetry {
	fn("vibration_mm_s", &t.VibrationMmS)
	fn("sensor_a.value", &t.SensorA.Value)
	fn("sensor_b.value", &t.SensorB.Value)
	if t.Predicted != nil {
		p := *t.Predicted
		fn("predicted", &p)
		t.Predicted = &p
	}
	fn("operating_hours", &t.OperatingHours)
	fn("window_hours", &t.WindowHours)
	fn("speed_pct", &t.SpeedPct)
	fn("grid_frequency_hz", &t.GridFrequencyHz)

	fn("market.price_eur_per_mwh", &t.Market.PriceEurPerMwh)
	fn("market.fcr_price_eur_per_mw", &t.Market.FcrPriceEurPerMw)
	fn("market.carbon_credit_eur", &t.Market.CarbonCreditEur)
	fn("market.environmental_ceiling", &t.Market.EnvironmentalCeiling)

	fn("chemistry.erosion.sediment_ppm", &t.Chemistry.Erosion.SedimentPPM)
	fn("chemistry.ph", &t.Chemistry.PH)

	switch r := t.Turbine.Reading.(type) {
	case FrancisReading:
		t.Turbine.Reading = r.visitFloats(fn)
	case *FrancisReading:
		if r != nil {
			t.Turbine.Reading = r.visitFloats(fn)
		}
	case KaplanReading:
		t.Turbine.Reading = r.visitFloats(fn)
	case *KaplanReading:
		if r != nil {
			t.Turbine.Reading = r.visitFloats(fn)
		}
	case PeltonReading:
		t.Turbine.Reading = r.visitFloats(fn)
	case *PeltonReading:
		if r != nil {
			t.Turbine.Reading = r.visitFloats(fn)
		}
	}
	return t
}

func (r FrancisReading) visitFloats(fn func(string, *float64)) FrancisReading {
	fn("turbine.francis.gate_opening_pct", &r.GateOpeningPct)
	fn("turbine.francis.draft_tube_vortex_amplitude", &r.DraftTubeVortexAmplitude)
	fn("turbine.francis.vortex_frequency_hz", &r.VortexFrequencyHz)
	return r
}

func (r KaplanReading) visitFloats(fn func(string, *float64)) KaplanReading {
	fn("turbine.kaplan.gate_opening_pct", &r.GateOpeningPct)
	fn("turbine.kaplan.blade_angle_deg", &r.BladeAngleDeg)
	fn("turbine.kaplan.hub_oil_pressure_bar", &r.HubOilPressureBar)
	fn("turbine.kaplan.tailwater_level_m", &r.TailwaterLevelM)
	return r
}

func (r PeltonReading) visitFloats(fn func(string, *float64)) PeltonReading {
	fn("turbine.pelton.jet_pressure_bar", &r.JetPressureBar)
	fn("turbine.pelton.needle_position_pct", &r.NeedlePositionPct)
	fn("turbine.pelton.shell_vibration_mm_s", &r.ShellVibrationMmS)
	fn("turbine.pelton.bucket_hours", &r.BucketHours)
	fn("turbine.pelton.jet_rate_change_pct_s", &r.JetRateChangePctS)
	return r
}
