package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmosis/errors"
)

func TestDefault_Valid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("WASMOSIS_KERNEL_MAX_CALL_DEPTH", "12")
	t.Setenv("WASMOSIS_ENGINE_MEMORY_LIMIT_PAGES", "256")
	t.Setenv("WASMOSIS_LOG_LEVEL", "debug")
	t.Setenv("WASMOSIS_METRICS_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 12, cfg.Kernel.MaxCallDepth)
	require.Equal(t, uint32(256), cfg.Engine.MemoryLimitPages)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "wasmosis", cfg.Metrics.Namespace, "defaults kept")
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wasmosis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kernel:
  max_call_depth: 8
  max_table_slots: 1024
log:
  level: warn
  development: true
metrics:
  addr: 127.0.0.1:9999
`), 0o600))
	t.Setenv("WASMOSIS_KERNEL_MAX_TABLE_SLOTS", "32")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Kernel.MaxCallDepth)
	require.Equal(t, 32, cfg.Kernel.MaxTableSlots, "environment wins over file")
	require.Equal(t, "warn", cfg.Log.Level)
	require.True(t, cfg.Log.Development)
	require.Equal(t, "127.0.0.1:9999", cfg.Metrics.Addr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.True(t, errors.IsKind(err, errors.KindNotFound))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("kernel: [1, 2"), 0o600))
	_, err = Load(bad)
	require.True(t, errors.IsKind(err, errors.KindInvalidInput))

	t.Setenv("WASMOSIS_KERNEL_MAX_CALL_DEPTH", "deep")
	_, err = Load("")
	require.True(t, errors.IsKind(err, errors.KindInvalidInput))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"default", func(*Config) {}, true},
		{"zero depth", func(c *Config) { c.Kernel.MaxCallDepth = 0 }, false},
		{"negative slots", func(c *Config) { c.Kernel.MaxTableSlots = -1 }, false},
		{"too many pages", func(c *Config) { c.Engine.MemoryLimitPages = maxPages + 1 }, false},
		{"max pages", func(c *Config) { c.Engine.MemoryLimitPages = maxPages }, true},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, false},
		{"metrics without namespace", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Namespace = "" }, false},
		{"namespace unused", func(c *Config) { c.Metrics.Namespace = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
