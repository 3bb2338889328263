// Package config implements two layers of configuration: mxlctl's own
// CLI preferences (~/.mxl/config.toml) and a domain's options.json,
// which is a property of the domain itself and never overridden by CLI
// flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config represents mxlctl's own ~/.mxl/config.toml — CLI-side
// preferences, distinct from a domain's options.json.
type Config struct {
	DefaultDomain string `toml:"default_domain,omitempty" json:"default_domain"`
	Output        string `toml:"output,omitempty" json:"output"`
}

// configDirOverride is set by the --config-dir flag or MXL_HOME env var.
var configDirOverride string

// SetConfigDir allows the CLI to pass in the --config-dir / MXL_HOME value.
func SetConfigDir(dir string) {
	configDirOverride = dir
}

// MXLHome returns the CLI config directory. Precedence: --config-dir
// flag / SetConfigDir > MXL_HOME env > ~/.mxl.
func MXLHome() string {
	if configDirOverride != "" {
		return configDirOverride
	}
	if v := os.Getenv("MXL_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".mxl")
	}
	return filepath.Join(home, ".mxl")
}

// ConfigPath returns the full path to mxlctl's config.toml.
func ConfigPath() string {
	return filepath.Join(MXLHome(), "config.toml")
}

// EnsureDir creates the MXL home directory if it does not exist.
func EnsureDir() error {
	return os.MkdirAll(MXLHome(), 0o755)
}

// Load reads config.toml and returns a Config. A missing file is not an
// error; it yields a zero-value Config (all defaults).
func Load() (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}
	return cfg, nil
}

// Save writes cfg back to config.toml.
func Save(cfg *Config) error {
	if err := EnsureDir(); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0o644)
}

// validKeys lists the keys usable with Get/Set.
var validKeys = map[string]bool{
	"default_domain": true,
	"output":         true,
}

// Get retrieves a single config value by key.
func Get(key string) (string, error) {
	if !validKeys[key] {
		return "", fmt.Errorf("unknown config key: %s", key)
	}
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	switch key {
	case "default_domain":
		return cfg.DefaultDomain, nil
	case "output":
		return cfg.Output, nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// Set sets a single config value by key and persists it.
func Set(key, value string) error {
	if !validKeys[key] {
		return fmt.Errorf("unknown config key: %s", key)
	}
	cfg, err := Load()
	if err != nil {
		return err
	}
	switch key {
	case "default_domain":
		cfg.DefaultDomain = value
	case "output":
		cfg.Output = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return Save(cfg)
}
