package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"

	"github.com/dpup/locfudge/internal/lib/fudger"
)

// EnvPrefix selects environment overrides, e.g.
// LOCFUDGE__ENGINE__DISTANCE_KM=25 sets engine.distance_km.
const EnvPrefix = "LOCFUDGE__"

// Config represents the complete configuration
type Config struct {
	Engine   EngineConfig   `koanf:"engine"`
	Settings SettingsConfig `koanf:"settings"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// EngineConfig holds obfuscation engine tunables
type EngineConfig struct {
	// Strategy used when no settings store picks one: "distance" or "geodp"
	Strategy string `koanf:"strategy"`

	DistanceKm              int           `koanf:"distance_km"`
	DistanceRefreshInterval time.Duration `koanf:"distance_refresh_interval"`
	OffsetScope             string        `koanf:"offset_scope"`

	AccuracyMeters       float64       `koanf:"accuracy_m"`
	MinAccuracyMeters    float64       `koanf:"min_accuracy_m"`
	NoiseRefreshInterval time.Duration `koanf:"noise_refresh_interval"`

	// MemoEntries bounds the per-strategy coarse fix memo; 0 disables it
	MemoEntries int `koanf:"memo_entries"`
}

// SettingsConfig holds the settings store location and poll cadence
type SettingsConfig struct {
	Path         string        `koanf:"path"`
	PollInterval time.Duration `koanf:"poll_interval"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Strategy:                string(fudger.KindGeoDP),
			DistanceKm:              fudger.DefaultDistanceKm,
			DistanceRefreshInterval: fudger.DefaultDistanceRefreshInterval,
			OffsetScope:             string(fudger.ScopeInstance),
			AccuracyMeters:          fudger.MinAccuracyMeters,
			MinAccuracyMeters:       fudger.MinAccuracyMeters,
			NoiseRefreshInterval:    fudger.DefaultNoiseRefreshInterval,
			MemoEntries:             0,
		},
		Settings: SettingsConfig{
			Path:         "locfudge.db",
			PollInterval: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load layers defaults, the optional YAML file at path, LOCFUDGE__
// environment variables and then overrides (dotted keys such as
// "engine.distance_km").
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can coerce. Magnitudes are not
// checked here; the engine coerces those itself.
func (c *Config) Validate() error {
	if _, err := fudger.ParseKind(c.Engine.Strategy); err != nil {
		return fmt.Errorf("engine.strategy: %w", err)
	}
	if _, err := fudger.ParseScope(c.Engine.OffsetScope); err != nil {
		return fmt.Errorf("engine.offset_scope: %w", err)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Settings.PollInterval <= 0 {
		return fmt.Errorf("settings.poll_interval must be positive, got %v", c.Settings.PollInterval)
	}
	return nil
}
