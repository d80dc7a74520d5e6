package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultLoggingConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, "logs", cfg.Dir)
	assert.Equal(t, 50, cfg.Rotation.MaxSize)
	assert.True(t, cfg.Rotation.Compress)
	assert.True(t, cfg.Console.Enabled)
	assert.False(t, cfg.File.Enabled)
}

func TestLoggingConfigYAMLParsing(t *testing.T) {
	yamlData := `
level: "debug"
format: "json"
dir: "/var/log/kinsync"
rotation:
  max_size: 10
console:
  enabled: false
  format: text
file:
  enabled: true
  level: "warn"
`
	var cfg LoggingConfig
	assert.NoError(t, yaml.Unmarshal([]byte(yamlData), &cfg))
	cfg.ApplyDefaults()

	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "/var/log/kinsync", cfg.Dir)
	assert.Equal(t, 10, cfg.Rotation.MaxSize)
	assert.Equal(t, 5, cfg.Rotation.MaxBackups)
	assert.False(t, cfg.Console.Enabled, "a non-empty console section keeps its enabled flag")
	assert.Equal(t, "warn", cfg.File.Level)
	assert.Equal(t, "json", cfg.File.Format)
}

func TestLoggingConfigApplyDefaults(t *testing.T) {
	cfg := &LoggingConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "text", cfg.Format)
	assert.True(t, cfg.Console.Enabled)
	assert.Equal(t, "info", cfg.Console.Level)
	assert.False(t, cfg.File.Enabled)
	assert.Equal(t, "text", cfg.File.Format)
}

func TestLoggingConfigEnvOverride(t *testing.T) {
	t.Setenv("KINSYNC_LOG_LEVEL", "DEBUG")
	cfg := DefaultLoggingConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "debug", cfg.Console.Level)
	assert.Equal(t, "debug", cfg.File.Level)
}

func TestLoggingConfigResolvePaths(t *testing.T) {
	tests := []struct {
		name     string
		dir      string
		expected string
	}{
		{"relative next to config dir", "logs", filepath.Join("/app", "logs")},
		{"absolute unchanged", "/var/log/kinsync", "/var/log/kinsync"},
		{"parent relative to config dir", "../out", filepath.Join("/app", "out")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &LoggingConfig{Dir: tt.dir}
			cfg.ResolvePaths("/app/config")
			assert.Equal(t, tt.expected, cfg.Dir)
		})
	}
}

func TestLoggingConfigValidate(t *testing.T) {
	valid := DefaultLoggingConfig()
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*LoggingConfig)
		errMsg string
	}{
		{"level", func(c *LoggingConfig) { c.Level = "trace" }, "invalid log level"},
		{"format", func(c *LoggingConfig) { c.Format = "xml" }, "invalid log format"},
		{"dir", func(c *LoggingConfig) { c.Dir = "" }, "log directory"},
		{"console level", func(c *LoggingConfig) { c.Console.Level = "loud" }, "invalid console log level"},
		{"file format", func(c *LoggingConfig) { c.File.Enabled = true; c.File.Format = "csv" }, "invalid file log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLoggingConfig()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}

	disabled := DefaultLoggingConfig()
	disabled.File.Format = "csv"
	assert.NoError(t, disabled.Validate(), "disabled sinks are not validated")
}
