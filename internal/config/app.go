package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Storage kinds accepted in StorageConfig.Precedence.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StoragePebble = "pebble"
)

// AppConfig identifies the backend application and its credentials.
type AppConfig struct {
	AppKey       string `yaml:"app_key" validate:"excludes=."`
	AppSecret    string `yaml:"app_secret"`
	MasterSecret string `yaml:"master_secret"`
	BaseURL      string `yaml:"base_url" validate:"required,url"`
	APIVersion   int    `yaml:"api_version" validate:"gte=1"`
}

func (c *AppConfig) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://baas.kinvey.com"
	}
	if c.APIVersion == 0 {
		c.APIVersion = 4
	}
}

func (c *AppConfig) ApplyEnvOverrides() {
	overrideString(&c.AppKey, "KINSYNC_APP_KEY")
	overrideString(&c.AppSecret, "KINSYNC_APP_SECRET")
	overrideString(&c.MasterSecret, "KINSYNC_MASTER_SECRET")
	overrideString(&c.BaseURL, "KINSYNC_BASE_URL")
}

func (c *AppConfig) ResolvePaths(string) {}

func (c *AppConfig) Validate() error {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// StorageConfig selects the local persister. The first kind in Precedence
// that opens successfully is used.
type StorageConfig struct {
	Precedence []string `yaml:"precedence" validate:"min=1,dive,oneof=memory sqlite pebble"`
	Path       string   `yaml:"path"`
}

func (c *StorageConfig) ApplyDefaults() {
	if len(c.Precedence) == 0 {
		c.Precedence = []string{StorageSQLite, StorageMemory}
	}
	if c.Path == "" {
		c.Path = "data"
	}
}

// ApplyEnvOverrides reads KINSYNC_STORAGE as a comma separated precedence list.
func (c *StorageConfig) ApplyEnvOverrides() {
	v := os.Getenv("KINSYNC_STORAGE")
	if v == "" {
		return
	}
	var kinds []string
	for _, k := range strings.Split(v, ",") {
		if k = strings.TrimSpace(strings.ToLower(k)); k != "" {
			kinds = append(kinds, k)
		}
	}
	c.Precedence = kinds
}

func (c *StorageConfig) ResolvePaths(configDir string) {
	if c.Path != "" && !filepath.IsAbs(c.Path) {
		c.Path = filepath.Clean(filepath.Join(filepath.Dir(configDir), c.Path))
	}
}

func (c *StorageConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}

// HTTPConfig tunes the request transport.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

func (c *HTTPConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "kinsync"
	}
}

func (c *HTTPConfig) ApplyEnvOverrides() {}
func (c *HTTPConfig) ResolvePaths(string) {}

func (c *HTTPConfig) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("http: timeout must not be negative")
	}
	return nil
}

// UploadConfig tunes the resumable upload protocol.
type UploadConfig struct {
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

func (c *UploadConfig) ApplyDefaults() {
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 32 * time.Second
	}
}

func (c *UploadConfig) ApplyEnvOverrides() {}
func (c *UploadConfig) ResolvePaths(string) {}

func (c *UploadConfig) Validate() error {
	if c.MaxBackoff <= 0 {
		return fmt.Errorf("upload: max_backoff must be positive")
	}
	return nil
}

// LiveConfig configures publication of collection change events.
type LiveConfig struct {
	Enabled       bool   `yaml:"enabled"`
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

func (c *LiveConfig) ApplyDefaults() {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "kinsync"
	}
}

func (c *LiveConfig) ApplyEnvOverrides() {
	if v := os.Getenv("KINSYNC_NATS_URL"); v != "" {
		c.NATSURL = v
		c.Enabled = true
	}
}

func (c *LiveConfig) ResolvePaths(string) {}

func (c *LiveConfig) Validate() error {
	if strings.ContainsAny(c.SubjectPrefix, " *>") {
		return fmt.Errorf("live: invalid subject prefix %q", c.SubjectPrefix)
	}
	return nil
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
