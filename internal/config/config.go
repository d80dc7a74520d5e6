package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where LoadConfig looks when no path is given.
const DefaultPath = "config/config.yml"

// Config holds the application configuration
type Config struct {
	App     AppConfig     `yaml:"app"`
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Upload  UploadConfig  `yaml:"upload"`
	Live    LiveConfig    `yaml:"live"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns a configuration with every section at its defaults.
func Default() *Config {
	cfg := &Config{Logging: DefaultLoggingConfig()}
	for _, s := range cfg.sections() {
		s.ApplyDefaults()
	}
	return cfg
}

// LoadConfig loads configuration from path and its ".local" sibling.
// Order: defaults -> config.yml -> config.local.yml -> ApplyEnvOverrides -> ResolvePaths -> Validate
// Missing files are skipped; unreadable or malformed files are errors.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := Default()

	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	if err := loadFile(localPath(path), cfg); err != nil {
		return nil, err
	}

	if err := ApplyServiceConfigs(filepath.Dir(path), cfg.sections()...); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func (c *Config) sections() []ServiceConfig {
	return []ServiceConfig{&c.App, &c.Storage, &c.HTTP, &c.Upload, &c.Live, &c.Logging}
}

// localPath turns config/config.yml into config/config.local.yml.
func localPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

func loadFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	return nil
}
