// Package config loads the typed settings record Cortex's components run
// against, from .cortex/config.toml, with defaults for everything the file
// omits.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ConsolidationConfig holds the [consolidation] section of config.toml.
type ConsolidationConfig struct {
	AutoMicroThreshold int           `mapstructure:"auto_micro_threshold"`
	DecayThreshold     float64       `mapstructure:"decay_threshold"`
	Model              string        `mapstructure:"model"`
	StaleHorizon       time.Duration `mapstructure:"stale_horizon"`
	BatchMax           int           `mapstructure:"batch_max"`
}

// Config is the complete typed settings record.
type Config struct {
	Consolidation ConsolidationConfig `mapstructure:"consolidation"`
}

// DefaultConfig returns the defaults for every recognized option.
func DefaultConfig() *Config {
	return &Config{
		Consolidation: ConsolidationConfig{
			AutoMicroThreshold: 10,
			DecayThreshold:     0.1,
			Model:              "claude-haiku-4-5",
			StaleHorizon:       30 * 24 * time.Hour,
			BatchMax:           100,
		},
	}
}

// Load reads .cortex/config.toml under dir, falling back to defaults for
// anything the file doesn't set or if the file doesn't exist at all.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("consolidation.auto_micro_threshold", d.Consolidation.AutoMicroThreshold)
	v.SetDefault("consolidation.decay_threshold", d.Consolidation.DecayThreshold)
	v.SetDefault("consolidation.model", d.Consolidation.Model)
	v.SetDefault("consolidation.stale_horizon", d.Consolidation.StaleHorizon.String())
	v.SetDefault("consolidation.batch_max", d.Consolidation.BatchMax)
}

// Validate rejects settings that would make the consolidation passes
// misbehave rather than letting them silently do the wrong thing.
func (c *Config) Validate() error {
	if c.Consolidation.AutoMicroThreshold < 0 {
		return fmt.Errorf("consolidation.auto_micro_threshold must be >= 0")
	}
	if c.Consolidation.DecayThreshold < 0 || c.Consolidation.DecayThreshold > 1 {
		return fmt.Errorf("consolidation.decay_threshold must be in [0,1]")
	}
	if c.Consolidation.Model == "" {
		return fmt.Errorf("consolidation.model must not be empty")
	}
	if c.Consolidation.StaleHorizon <= 0 {
		return fmt.Errorf("consolidation.stale_horizon must be positive")
	}
	if c.Consolidation.BatchMax <= 0 {
		return fmt.Errorf("consolidation.batch_max must be positive")
	}
	return nil
}
