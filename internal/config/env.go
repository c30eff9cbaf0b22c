package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/united-manufacturing-hub/umh-utils/env"
)

// Environment variables read by the server
const (
	EnvConfigPath = "CONFIGCTX_CONFIG"
	EnvAddr       = "CONFIGCTX_ADDR"
	EnvDatabase   = "CONFIGCTX_DB"
	EnvSyncDir    = "CONFIGCTX_SYNC_DIR"
	EnvCacheSize  = "CONFIGCTX_CACHE_SIZE"
)

const (
	// ConfigFileName is looked up in the working directory
	ConfigFileName = "configctx.yaml"

	appDir        = "configctx"
	appConfigFile = "config.yaml"
)

// SearchPaths lists the config file candidates in priority order. An unset
// $CONFIGCTX_CONFIG or an unknown user config dir leaves its entry out.
func SearchPaths() []string {
	var paths []string

	if explicit, err := env.GetAsString(EnvConfigPath, false, ""); err == nil && explicit != "" {
		paths = append(paths, explicit)
	}

	local := ConfigFileName
	if abs, err := filepath.Abs(local); err == nil {
		local = abs
	}
	paths = append(paths, local)

	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, appDir, appConfigFile))
	}

	return append(paths, filepath.Join("/etc", appDir, appConfigFile))
}

// FindConfigPath returns the first search path holding a regular file, or
// an empty string when none does
func FindConfigPath() string {
	for _, path := range SearchPaths() {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// EnsureConfigDir creates the directory that will hold configPath
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

// ApplyEnv overrides file settings with environment variables that are set
func (c *Config) ApplyEnv() error {
	addr, err := env.GetAsString(EnvAddr, false, c.Server.Addr)
	if err != nil {
		return err
	}
	c.Server.Addr = addr

	dbPath, err := env.GetAsString(EnvDatabase, false, c.Database.Path)
	if err != nil {
		return err
	}
	c.Database.Path = dbPath

	syncDir, err := env.GetAsString(EnvSyncDir, false, c.Sync.Directory)
	if err != nil {
		return err
	}
	c.Sync.Directory = syncDir

	size, err := env.GetAsInt(EnvCacheSize, false, c.Cache.Size)
	if err != nil {
		return fmt.Errorf("%s: %w", EnvCacheSize, err)
	}
	c.Cache.Size = size

	return nil
}
