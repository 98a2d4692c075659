package ir

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// CommStatus is the SCADA link quality reported with a sample.
// The zero value is treated as CommGood.
type CommStatus string

const (
	CommGood    CommStatus = "GOOD"
	CommBad     CommStatus = "BAD"
	CommUnknown CommStatus = "UNKNOWN"
)

// DemandLevel is the grid demand signal.
type DemandLevel string

const (
	DemandLow  DemandLevel = "LOW"
	DemandMed  DemandLevel = "MED"
	DemandHigh DemandLevel = "HIGH"
)

// MarketSignals carries prices and grid requests for the current window.
type MarketSignals struct {
	PriceEurPerMwh       float64     `json:"price_eur_per_mwh" yaml:"price_eur_per_mwh"`
	Demand               DemandLevel `json:"demand,omitempty" yaml:"demand,omitempty"`
	FcrPriceEurPerMw     float64     `json:"fcr_price_eur_per_mw,omitempty" yaml:"fcr_price_eur_per_mw,omitempty"`
	CarbonCreditEur      float64     `json:"carbon_credit_eur,omitempty" yaml:"carbon_credit_eur,omitempty"`
	GridSupportRequested bool        `json:"grid_support_requested,omitempty" yaml:"grid_support_requested,omitempty"`
	// EnvironmentalCeiling caps output as a fraction of capacity. Values
	// outside (0, 1) mean no ceiling.
	EnvironmentalCeiling float64 `json:"environmental_ceiling,omitempty" yaml:"environmental_ceiling,omitempty"`
}

// ErosionSeverity grades sediment-driven erosion.
type ErosionSeverity string

const (
	ErosionNone     ErosionSeverity = "NONE"
	ErosionLow      ErosionSeverity = "LOW"
	ErosionModerate ErosionSeverity = "MODERATE"
	ErosionHigh     ErosionSeverity = "HIGH"
	ErosionExtreme  ErosionSeverity = "EXTREME"
)

// ErosionStatus is the sediment monitor output.
type ErosionStatus struct {
	Severity    ErosionSeverity `json:"severity,omitempty" yaml:"severity,omitempty"`
	SedimentPPM float64         `json:"sediment_ppm,omitempty" yaml:"sediment_ppm,omitempty"`
}

// Chemistry is the water-chemistry part of a sample. A PH of 0 means the
// probe reported nothing.
type Chemistry struct {
	Erosion ErosionStatus `json:"erosion" yaml:"erosion"`
	PH      float64       `json:"ph,omitempty" yaml:"ph,omitempty"`
}

// Telemetry is one sample for one unit.
type Telemetry struct {
	UnitID     string     `json:"unit_id" yaml:"unit_id"`
	Timestamp  time.Time  `json:"timestamp" yaml:"timestamp"`
	CommStatus CommStatus `json:"comm_status,omitempty" yaml:"comm_status,omitempty"`

	// VibrationMmS is the bearing vibration velocity in mm/s.
	VibrationMmS float64 `json:"vibration_mm_s" yaml:"vibration_mm_s"`

	SensorA   SensorReading `json:"sensor_a" yaml:"sensor_a"`
	SensorB   SensorReading `json:"sensor_b" yaml:"sensor_b"`
	Predicted *float64      `json:"predicted,omitempty" yaml:"predicted,omitempty"`

	OperatingHours  float64 `json:"operating_hours,omitempty" yaml:"operating_hours,omitempty"`
	WindowHours     float64 `json:"window_hours,omitempty" yaml:"window_hours,omitempty"`
	SpeedPct        float64 `json:"speed_pct,omitempty" yaml:"speed_pct,omitempty"`
	EStop           bool    `json:"e_stop,omitempty" yaml:"e_stop,omitempty"`
	GridFrequencyHz float64 `json:"grid_frequency_hz,omitempty" yaml:"grid_frequency_hz,omitempty"`

	Market    MarketSignals    `json:"market" yaml:"market"`
	Chemistry Chemistry        `json:"chemistry" yaml:"chemistry"`
	Turbine   TurbineTelemetry `json:"turbine" yaml:"turbine"`
}

// Metadata carries the per-cycle context that is not part of the sample.
type Metadata struct {
	IsReplay bool           `json:"is_replay,omitempty" yaml:"is_replay,omitempty"`
	Tier     PermissionTier `json:"tier,omitempty" yaml:"tier,omitempty"`
	// SimulationTime, when set, replaces the wall clock as "now" for the
	// liveness check.
	SimulationTime time.Time `json:"simulation_time,omitempty" yaml:"simulation_time,omitempty"`
	// Fleet is the sibling snapshot visible to this cycle.
	Fleet []UnitStatus `json:"fleet,omitempty" yaml:"fleet,omitempty"`
}

// FamilyReading is the turbine-family specific part of a sample.
// Implemented by FrancisReading, KaplanReading and PeltonReading.
type FamilyReading interface {
	Family() TurbineFamily
	isFamilyReading()
}

// FrancisReading carries guide-vane and draft-tube measurements.
type FrancisReading struct {
	GateOpeningPct           float64 `json:"gate_opening_pct" yaml:"gate_opening_pct"`
	DraftTubeVortexAmplitude float64 `json:"draft_tube_vortex_amplitude" yaml:"draft_tube_vortex_amplitude"`
	VortexFrequencyHz        float64 `json:"vortex_frequency_hz" yaml:"vortex_frequency_hz"`
}

// KaplanReading carries blade, gate and hub seal measurements.
type KaplanReading struct {
	GateOpeningPct    float64 `json:"gate_opening_pct" yaml:"gate_opening_pct"`
	BladeAngleDeg     float64 `json:"blade_angle_deg" yaml:"blade_angle_deg"`
	HubOilPressureBar float64 `json:"hub_oil_pressure_bar" yaml:"hub_oil_pressure_bar"`
	// TailwaterLevelM of 0 means not reported.
	TailwaterLevelM float64 `json:"tailwater_level_m,omitempty" yaml:"tailwater_level_m,omitempty"`
}

// PeltonReading carries jet and nozzle measurements.
type PeltonReading struct {
	JetPressureBar    float64 `json:"jet_pressure_bar" yaml:"jet_pressure_bar"`
	NeedlePositionPct float64 `json:"needle_position_pct" yaml:"needle_position_pct"`
	ActiveNozzles     int     `json:"active_nozzles" yaml:"active_nozzles"`
	ShellVibrationMmS float64 `json:"shell_vibration_mm_s,omitempty" yaml:"shell_vibration_mm_s,omitempty"`
	BucketHours       float64 `json:"bucket_hours,omitempty" yaml:"bucket_hours,omitempty"`
	JetRateChangePctS float64 `json:"jet_rate_change_pct_s,omitempty" yaml:"jet_rate_change_pct_s,omitempty"`
}

func (FrancisReading) Family() TurbineFamily { return FamilyFrancis }
func (KaplanReading) Family() TurbineFamily  { return FamilyKaplan }
func (PeltonReading) Family() TurbineFamily  { return FamilyPelton }

func (FrancisReading) isFamilyReading() {}
func (KaplanReading) isFamilyReading()  {}
func (PeltonReading) isFamilyReading()  {}

// TurbineTelemetry wraps the family reading. On the wire it is an object
// with exactly one of "francis", "kaplan" or "pelton"; the key names the
// family.
type TurbineTelemetry struct {
	Reading FamilyReading
}

// Family returns the family of the wrapped reading, or "" when absent.
func (t TurbineTelemetry) Family() TurbineFamily {
	if t.Reading == nil {
		return ""
	}
	return t.Reading.Family()
}

type turbineWire struct {
	Francis *FrancisReading `json:"francis,omitempty" yaml:"francis,omitempty" cbor:"francis,omitempty"`
	Kaplan  *KaplanReading  `json:"kaplan,omitempty" yaml:"kaplan,omitempty" cbor:"kaplan,omitempty"`
	Pelton  *PeltonReading  `json:"pelton,omitempty" yaml:"pelton,omitempty" cbor:"pelton,omitempty"`
}

func (t TurbineTelemetry) wire() turbineWire {
	var w turbineWire
	switch r := t.Reading.(type) {
	case FrancisReading:
		w.Francis = &r
	case *FrancisReading:
		w.Francis = r
	case KaplanReading:
		w.Kaplan = &r
	case *KaplanReading:
		w.Kaplan = r
	case PeltonReading:
		w.Pelton = &r
	case *PeltonReading:
		w.Pelton = r
	}
	return w
}

func (w turbineWire) reading() (FamilyReading, error) {
	var out FamilyReading
	n := 0
	if w.Francis != nil {
		out = *w.Francis
		n++
	}
	if w.Kaplan != nil {
		out = *w.Kaplan
		n++
	}
	if w.Pelton != nil {
		out = *w.Pelton
		n++
	}
	if n > 1 {
		return nil, fmt.Errorf("turbine telemetry carries %d family blocks, want at most one", n)
	}
	return out, nil
}

func (t TurbineTelemetry) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.wire())
}

func (t *TurbineTelemetry) UnmarshalJSON(data []byte) error {
	var w turbineWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r, err := w.reading()
	if err != nil {
		return err
	}
	t.Reading = r
	return nil
}

func (t TurbineTelemetry) MarshalYAML() (any, error) {
	return t.wire(), nil
}

func (t *TurbineTelemetry) UnmarshalYAML(node *yaml.Node) error {
	var w turbineWire
	if err := node.Decode(&w); err != nil {
		return err
	}
	r, err := w.reading()
	if err != nil {
		return err
	}
	t.Reading = r
	return nil
}

func (t TurbineTelemetry) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(t.wire())
}

func (t *TurbineTelemetry) UnmarshalCBOR(data []byte) error {
	var w turbineWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	r, err := w.reading()
	if err != nil {
		return err
	}
	t.Reading = r
	return nil
}
