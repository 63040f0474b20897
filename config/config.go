package config

import (
	"os"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasmosis/errors"
)

// EnvPrefix prefixes every environment variable, e.g.
// WASMOSIS_KERNEL_MAX_CALL_DEPTH.
const EnvPrefix = "WASMOSIS"

// maxPages is the wasm32 address space in 64KiB pages.
const maxPages = 65536

// Config holds all runtime configuration.
type Config struct {
	Kernel  KernelConfig  `yaml:"kernel"`
	Engine  EngineConfig  `yaml:"engine"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// KernelConfig bounds the capability kernel.
type KernelConfig struct {
	MaxCallDepth  int `split_words:"true" yaml:"max_call_depth"`
	MaxTableSlots int `split_words:"true" yaml:"max_table_slots"`
}

// EngineConfig configures the wazero engine.
type EngineConfig struct {
	// MemoryLimitPages caps each guest's memory. 0 leaves wazero's default.
	MemoryLimitPages uint32 `split_words:"true" yaml:"memory_limit_pages"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `split_words:"true" yaml:"level"`
	Development bool   `split_words:"true" yaml:"development"`
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Enabled   bool   `split_words:"true" yaml:"enabled"`
	Namespace string `split_words:"true" yaml:"namespace"`
	Addr      string `split_words:"true" yaml:"addr"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Kernel: KernelConfig{
			MaxCallDepth: 64,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Namespace: "wasmosis",
			Addr:      ":9090",
		},
	}
}

// Load builds configuration from defaults, then the YAML file at path (if
// path is non-empty), then WASMOSIS_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse config file")
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "load environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var err error
	if c.Kernel.MaxCallDepth <= 0 {
		err = multierr.Append(err, errors.InvalidInput(errors.PhaseConfig, "kernel.max_call_depth must be positive"))
	}
	if c.Kernel.MaxTableSlots < 0 {
		err = multierr.Append(err, errors.InvalidInput(errors.PhaseConfig, "kernel.max_table_slots must not be negative"))
	}
	if c.Engine.MemoryLimitPages > maxPages {
		err = multierr.Append(err, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("engine.memory_limit_pages %d exceeds %d", c.Engine.MemoryLimitPages, maxPages).Build())
	}
	if _, lerr := zapcore.ParseLevel(c.Log.Level); lerr != nil {
		err = multierr.Append(err, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, lerr, "log.level"))
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		err = multierr.Append(err, errors.InvalidInput(errors.PhaseConfig, "metrics.namespace is required when metrics are enabled"))
	}
	return err
}
