package engine

import (
	"time"

	"github.com/roach88/hydroexec/internal/config"
	"github.com/roach88/hydroexec/internal/fleet"
	"github.com/roach88/hydroexec/internal/integrity"
	"github.com/roach88/hydroexec/internal/ir"
	"github.com/roach88/hydroexec/internal/market"
	"github.com/roach88/hydroexec/internal/physics"
	"github.com/roach88/hydroexec/internal/safety"
)

// Settings carries every tunable the cycle reads. An Executive holds one
// Settings value and swaps it only between cycles.
type Settings struct {
	Tier            ir.PermissionTier
	QueueDepth      int
	MaxTelemetryAge time.Duration
	SensorTolerance float64
	BaselineAlpha   float64
	DefaultWindow   time.Duration

	Integrity  integrity.Params
	Thresholds integrity.Thresholds
	LowHealth  float64

	Overlay safety.Overlay
	Physics physics.Params
	Market  market.Params
	Fleet   fleet.Params

	WearRateEur       float64
	ChemistryBaseline float64
}

// DefaultSettings returns the settings of config.Default.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.Default())
}

// SettingsFromConfig maps the YAML runtime configuration onto the
// sub-engine parameter structs.
func SettingsFromConfig(cfg *config.Config) Settings {
	th := cfg.Thresholds

	ph := physics.DefaultParams()
	ph.Interlocks.OverspeedPct = th.OverspeedPct
	ph.Interlocks.VibrationTripMmS = th.VibrationTripMmS

	mk := market.Params{
		GridSupportFraction:   cfg.Market.GridSupportFraction,
		ConservationIntegrity: cfg.Market.ConservationIntegrity,
		ConservationPrice:     cfg.Market.ConservationPrice,
		MaxPriceThreshold:     cfg.Market.MaxPriceThreshold,
		BalancedFraction:      cfg.Market.BalancedFraction,
		SettlementHours:       cfg.Finance.SettlementHours,
	}

	return Settings{
		Tier:            cfg.Tier(),
		QueueDepth:      cfg.Engine.QueueDepth,
		MaxTelemetryAge: cfg.Engine.MaxTelemetryAge,
		SensorTolerance: cfg.Engine.SensorTolerance,
		BaselineAlpha:   cfg.Engine.BaselineAlpha,
		DefaultWindow:   cfg.Engine.DefaultWindow,

		Integrity: integrity.DefaultParams(),
		Thresholds: integrity.Thresholds{
			Rebalance:   th.RebalanceIntegrity,
			PartRequest: th.PartRequestIntegrity,
			Floor:       th.FloorIntegrity,
		},
		LowHealth: th.LowHealth,

		Overlay: safety.Overlay{
			VibrationCeilingMmS: th.VibrationCeilingMmS,
			Derate:              th.Derate,
		},
		Physics: ph,
		Market:  mk,
		Fleet: fleet.Params{
			Threshold:     th.RebalanceIntegrity,
			DegradeFactor: th.FleetDegradeFactor,
		},

		WearRateEur:       cfg.Finance.WearRateEur,
		ChemistryBaseline: th.ChemistryBaseline,
	}
}

func (s Settings) settlementHours() float64 {
	if s.Market.SettlementHours <= 0 {
		return 1
	}
	return s.Market.SettlementHours
}
