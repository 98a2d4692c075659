// Package config loads the runtime configuration of hydroexec from YAML.
//
// The plant layout (units, families, capacities) lives in the CUE plant
// spec; this file holds the tunable thresholds and collaborator settings
// that operators change at runtime. See Watch for hot reload.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hydroexec/internal/ir"
)

// Default values for the runtime configuration.
const (
	DefaultQueueDepth      = 64
	DefaultMaxTelemetryAge = 2 * time.Second
	DefaultWindow          = time.Second
	DefaultNotifyTimeout   = 10 * time.Second
)

// Config is the root of hydroexec.yaml.
type Config struct {
	Engine     EngineConfig    `yaml:"engine"`
	Thresholds ThresholdConfig `yaml:"thresholds"`
	Market     MarketConfig    `yaml:"market"`
	Finance    FinanceConfig   `yaml:"finance"`
	Audit      AuditConfig     `yaml:"audit"`
	Notify     NotifyConfig    `yaml:"notify"`
	Control    ControlConfig   `yaml:"control"`
}

// EngineConfig controls the cycle runtime.
type EngineConfig struct {
	// QueueDepth bounds each unit's pending sample queue.
	QueueDepth int `yaml:"queue_depth"`

	// MaxTelemetryAge is the dead-man switch limit.
	MaxTelemetryAge time.Duration `yaml:"max_telemetry_age"`

	// Tier is the default permission tier: read-only | advisory | autonomous.
	Tier string `yaml:"tier"`

	// SensorTolerance is the truth judge agreement band.
	SensorTolerance float64 `yaml:"sensor_tolerance"`

	// BaselineAlpha smooths the learned sensor baseline.
	BaselineAlpha float64 `yaml:"baseline_alpha"`

	// DefaultWindow is the stress window of a unit's first sample when
	// telemetry carries no window.
	DefaultWindow time.Duration `yaml:"default_window"`
}

// ThresholdConfig holds the protective limits.
type ThresholdConfig struct {
	RebalanceIntegrity   float64 `yaml:"rebalance_integrity"`
	PartRequestIntegrity float64 `yaml:"part_request_integrity"`
	FloorIntegrity       float64 `yaml:"floor_integrity"`
	LowHealth            float64 `yaml:"low_health"`
	VibrationCeilingMmS  float64 `yaml:"vibration_ceiling_mm_s"`
	VibrationTripMmS     float64 `yaml:"vibration_trip_mm_s"`
	OverspeedPct         float64 `yaml:"overspeed_pct"`
	Derate               float64 `yaml:"derate"`
	FleetDegradeFactor   float64 `yaml:"fleet_degrade_factor"`
	ChemistryBaseline    float64 `yaml:"chemistry_baseline"`
}

// MarketConfig holds the strategy rule table.
type MarketConfig struct {
	GridSupportFraction   float64 `yaml:"grid_support_fraction"`
	ConservationIntegrity float64 `yaml:"conservation_integrity"`
	ConservationPrice     float64 `yaml:"conservation_price"`
	MaxPriceThreshold     float64 `yaml:"max_price_threshold"`
	BalancedFraction      float64 `yaml:"balanced_fraction"`
}

// FinanceConfig holds the settlement constants.
type FinanceConfig struct {
	WearRateEur     float64 `yaml:"wear_rate_eur"`
	SettlementHours float64 `yaml:"settlement_hours"`
}

// AuditConfig locates the audit sinks. Empty paths disable a sink.
// Durable syncs the decision log on every commit.
type AuditConfig struct {
	DBPath      string `yaml:"db_path"`
	ArchivePath string `yaml:"archive_path"`
	Durable     bool   `yaml:"durable"`
}

// NotifyConfig holds webhook delivery targets.
type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Timeout  time.Duration   `yaml:"timeout"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the URL.
	URLEnv string `yaml:"url_env"`

	// URL is used when URLEnv is empty.
	URL string `yaml:"url"`
}

// ResolveURL returns the webhook URL, preferring the environment.
func (w WebhookConfig) ResolveURL() string {
	if w.URLEnv != "" {
		return os.Getenv(w.URLEnv)
	}
	return w.URL
}

// ControlConfig holds the live stability limits the control adapter
// re-validates before forwarding a setpoint.
type ControlConfig struct {
	MaxVibrationMmS    float64 `yaml:"max_vibration_mm_s"`
	NominalFrequencyHz float64 `yaml:"nominal_frequency_hz"`
	FrequencyBandHz    float64 `yaml:"frequency_band_hz"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			QueueDepth:      DefaultQueueDepth,
			MaxTelemetryAge: DefaultMaxTelemetryAge,
			Tier:            "advisory",
			SensorTolerance: 5,
			BaselineAlpha:   0.2,
			DefaultWindow:   DefaultWindow,
		},
		Thresholds: ThresholdConfig{
			RebalanceIntegrity:   80,
			PartRequestIntegrity: 60,
			FloorIntegrity:       40,
			LowHealth:            70,
			VibrationCeilingMmS:  2.0,
			VibrationTripMmS:     8.0,
			OverspeedPct:         115,
			Derate:               0.8,
			FleetDegradeFactor:   0.7,
			ChemistryBaseline:    0.05,
		},
		Market: MarketConfig{
			GridSupportFraction:   0.8,
			ConservationIntegrity: 60,
			ConservationPrice:     30,
			MaxPriceThreshold:     80,
			BalancedFraction:      0.7,
		},
		Finance: FinanceConfig{
			WearRateEur:     50,
			SettlementHours: 1,
		},
		Notify: NotifyConfig{
			Timeout: DefaultNotifyTimeout,
		},
		Control: ControlConfig{
			MaxVibrationMmS:    1.5,
			NominalFrequencyHz: 50,
			FrequencyBandHz:    0.2,
		},
	}
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Tier returns the parsed default permission tier.
func (c *Config) Tier() ir.PermissionTier {
	t, err := ir.ParseTier(c.Engine.Tier)
	if err != nil {
		return ir.TierAdvisory
	}
	return t
}

// Validate checks structural constraints on a configuration.
func Validate(cfg *Config) error {
	if cfg.Engine.QueueDepth <= 0 {
		return fmt.Errorf("engine.queue_depth must be positive, got %d", cfg.Engine.QueueDepth)
	}
	if cfg.Engine.MaxTelemetryAge <= 0 {
		return fmt.Errorf("engine.max_telemetry_age must be positive")
	}
	if _, err := ir.ParseTier(cfg.Engine.Tier); err != nil {
		return fmt.Errorf("engine.tier: %w", err)
	}
	if cfg.Engine.SensorTolerance < 0 {
		return fmt.Errorf("engine.sensor_tolerance must not be negative")
	}
	if a := cfg.Engine.BaselineAlpha; a <= 0 || a > 1 {
		return fmt.Errorf("engine.baseline_alpha %v is out of range (0, 1]", a)
	}
	if d := cfg.Thresholds.Derate; d <= 0 || d > 1 {
		return fmt.Errorf("thresholds.derate %v is out of range (0, 1]", d)
	}
	if f := cfg.Thresholds.FleetDegradeFactor; f < 0 || f > 1 {
		return fmt.Errorf("thresholds.fleet_degrade_factor %v is out of range [0, 1]", f)
	}
	for _, name := range []struct {
		key string
		v   float64
	}{
		{"market.grid_support_fraction", cfg.Market.GridSupportFraction},
		{"market.balanced_fraction", cfg.Market.BalancedFraction},
	} {
		if name.v < 0 || name.v > 1 {
			return fmt.Errorf("%s %v is out of range [0, 1]", name.key, name.v)
		}
	}
	if cfg.Finance.SettlementHours <= 0 {
		return fmt.Errorf("finance.settlement_hours must be positive")
	}
	if cfg.Finance.WearRateEur < 0 {
		return fmt.Errorf("finance.wear_rate_eur must not be negative")
	}
	for i, wh := range cfg.Notify.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("notify.webhooks[%d].type %q unknown: want slack|teams|http", i, wh.Type)
		}
	}
	return nil
}
