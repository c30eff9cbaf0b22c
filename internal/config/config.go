// Package config provides configuration management for configctx.
//
// The config file holds how the server runs and how contexts merge. The
// context records themselves live in the database or in a synced directory.
//
// Config file locations (priority order):
//  1. $CONFIGCTX_CONFIG
//  2. ./configctx.yaml
//  3. <user config dir>/configctx/config.yaml
//  4. /etc/configctx/config.yaml
//
// A few settings can be overridden from the environment, which is how the
// server is usually configured inside a container.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"configctx/internal/resolver"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr            = ":3000"
	DefaultDatabasePath    = "./configctx.db"
	DefaultCacheSize       = 1024
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSyncDebounce    = 500 * time.Millisecond
)

// Load finds and loads the config file, or returns defaults if none found.
// Environment overrides are applied in both cases.
func Load() (*Config, string, error) {
	path := FindConfigPath()

	var cfg *Config
	if path == "" {
		cfg = DefaultConfig()
	} else {
		var err error
		cfg, path, err = LoadFromPath(path)
		if err != nil {
			return nil, path, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, path, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.normalizeMerge(); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{Version: 1}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Merge.Lists == "" {
		c.Merge.Lists = resolver.ListOverwrite
	}
	if c.Sync.Debounce == 0 {
		c.Sync.Debounce = Duration(DefaultSyncDebounce)
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = DefaultCacheSize
	}
}

// normalizeMerge accepts the strategy aliases ParseListStrategy knows
func (c *Config) normalizeMerge() error {
	lists, err := resolver.ParseListStrategy(string(c.Merge.Lists))
	if err != nil {
		return fmt.Errorf("merge.lists: %w", err)
	}
	c.Merge.Lists = lists

	for path, s := range c.Merge.Overrides {
		parsed, err := resolver.ParseListStrategy(string(s))
		if err != nil {
			return fmt.Errorf("merge.overrides.%s: %w", path, err)
		}
		c.Merge.Overrides[path] = parsed
	}
	return nil
}

// Validate checks settings that would otherwise fail later at startup
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if err := c.Merge.Validate(); err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	return nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Listen: %s, Database: %s\n", c.Server.Addr, c.Database.Path)
	fmt.Fprintf(&b, "Lists: %s, Overrides: %d, Cache: %d", c.Merge.ListStrategyFor(nil), len(c.Merge.Overrides), c.Cache.Size)
	if c.Sync.Enabled() {
		fmt.Fprintf(&b, "\nSync: %s (watch=%t)", c.Sync.Directory, c.Sync.Watch)
	}
	return b.String()
}
