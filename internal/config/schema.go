package config

import (
	"time"

	"configctx/internal/resolver"
)

// Config is the root configuration structure
type Config struct {
	Version  int                  `yaml:"version"`
	Server   ServerConfig         `yaml:"server"`
	Database DatabaseConfig       `yaml:"database"`
	Merge    resolver.MergePolicy `yaml:"merge"`
	Sync     SyncConfig           `yaml:"sync"`
	Cache    CacheConfig          `yaml:"cache"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout,omitempty"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig points at a directory of context documents kept in an
// external repository checkout
type SyncConfig struct {
	Directory string   `yaml:"directory,omitempty"`
	Watch     bool     `yaml:"watch"`
	Debounce  Duration `yaml:"debounce,omitempty"`
}

// Enabled reports whether a sync directory is configured
func (s SyncConfig) Enabled() bool {
	return s.Directory != ""
}

// CacheConfig sizes the resolution cache. A negative size disables caching.
type CacheConfig struct {
	Size int `yaml:"size"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
