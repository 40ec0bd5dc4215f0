// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete titanbot client configuration.
type Config struct {
	// API settings
	API APIConfig `toml:"api"`

	// Chat settings
	Chat ChatConfig `toml:"chat"`

	// Storage settings
	Storage StorageConfig `toml:"storage"`

	// Log settings
	Log LogConfig `toml:"log"`
}

// APIConfig contains backend connection configuration.
type APIConfig struct {
	// BaseURL is the backend API base URL, including the /api prefix.
	BaseURL string `toml:"base_url"`
	// TimeoutSecs is the non-streaming request timeout in seconds.
	TimeoutSecs int `toml:"timeout_secs"`
	// AuthRatePerMin caps authentication attempts per minute.
	AuthRatePerMin int `toml:"auth_rate_per_min"`
}

// ChatConfig contains conversation configuration.
type ChatConfig struct {
	// Model is the model identifier sent with every exchange.
	Model string `toml:"model"`
}

// StorageConfig contains local persistence configuration.
type StorageConfig struct {
	// DataDir holds the credential database and sealing key.
	// Empty means the default config directory.
	DataDir string `toml:"data_dir"`
}

// LogConfig contains structured logging configuration.
type LogConfig struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string `toml:"level"`
	// Path is the log file path. Empty disables file logging.
	Path string `toml:"path"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://127.0.0.1:8000/api",
			TimeoutSecs:    30,
			AuthRatePerMin: 10,
		},
		Chat: ChatConfig{
			Model: "gemini-pro",
		},
		Storage: StorageConfig{
			DataDir: "",
		},
		Log: LogConfig{
			Level: "info",
			Path:  "",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the titanbot configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".titanbot"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// DataDir resolves the storage directory, falling back to the config
// directory when unset.
func (c *Config) DataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir, nil
	}
	return ConfigDir()
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only).
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back to
// defaults when the file does not exist. Environment overrides are applied
// last, then the result is validated.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file with full
// validation.
// SECURITY: Checks and fixes file permissions on load.
func LoadFromPath(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems; warn and continue.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.API.BaseURL == "" {
		c.API.BaseURL = defaults.API.BaseURL
	}
	if c.API.TimeoutSecs == 0 {
		c.API.TimeoutSecs = defaults.API.TimeoutSecs
	}
	if c.API.AuthRatePerMin == 0 {
		c.API.AuthRatePerMin = defaults.API.AuthRatePerMin
	}
	if c.Chat.Model == "" {
		c.Chat.Model = defaults.Chat.Model
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
// Environment always wins over file contents.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TITANBOT_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("TITANBOT_MODEL"); v != "" {
		c.Chat.Model = v
	}
	if v := os.Getenv("TITANBOT_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("TITANBOT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("api.base_url has no host: %q", c.API.BaseURL)
	}

	if c.API.TimeoutSecs < 0 {
		return fmt.Errorf("api.timeout_secs must not be negative, got %d", c.API.TimeoutSecs)
	}
	if c.API.AuthRatePerMin < 0 {
		return fmt.Errorf("api.auth_rate_per_min must not be negative, got %d", c.API.AuthRatePerMin)
	}

	if strings.TrimSpace(c.Chat.Model) == "" {
		return fmt.Errorf("chat.model must not be empty")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}

	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// Permissions can drift if the file already existed.
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# titanbot configuration file")
	fmt.Fprintln(file, "# Generated by titanbot - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
