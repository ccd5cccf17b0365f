// Package config handles configuration and persisted settings for chatsync.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/diogo/chatsync/internal/models"
)

// MarkdownConfig configures markdown rendering options
type MarkdownConfig struct {
	Style string `json:"style"` // "dark", "light", "notty" or path to JSON theme
	Width int    `json:"width"` // 0 = terminal width
}

// Config represents the user configuration
type Config struct {
	// BaseURL is the root of the backend API. ${VAR} references are expanded.
	BaseURL      string `json:"base_url"`
	DefaultModel string `json:"default_model"`
	HistoryLimit int    `json:"history_limit"`
	// RequestTimeout bounds every REST call, in seconds.
	RequestTimeout int `json:"request_timeout"`
	// StreamIdleTimeout is the maximum silence, in seconds, tolerated on an
	// open chat stream before it is abandoned. 0 waits forever.
	StreamIdleTimeout int `json:"stream_idle_timeout"`
	// AutosaveInterval is how often, in seconds, settings are persisted.
	AutosaveInterval int            `json:"autosave_interval"`
	StorageBackend   string         `json:"storage_backend"` // "file" or "sqlite"
	LogLevel         string         `json:"log_level"`       // debug, info, warn, error
	CopyToClipboard  bool           `json:"copy_to_clipboard"`
	Markdown         MarkdownConfig `json:"markdown"`
}

// DefaultMarkdownConfig returns the default markdown configuration
func DefaultMarkdownConfig() MarkdownConfig {
	return MarkdownConfig{
		Style: "dark",
		Width: 0,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://localhost:8080/api",
		DefaultModel:      models.DefaultModelName,
		HistoryLimit:      models.DefaultHistoryLimit,
		RequestTimeout:    30,
		StreamIdleTimeout: 120,
		AutosaveInterval:  30,
		StorageBackend:    "file",
		LogLevel:          "info",
		CopyToClipboard:   false,
		Markdown:          DefaultMarkdownConfig(),
	}
}

// ResolvedBaseURL returns BaseURL with environment variables expanded and
// without a trailing slash
func (c Config) ResolvedBaseURL() string {
	return strings.TrimRight(os.ExpandEnv(c.BaseURL), "/")
}

// RequestTimeoutDuration returns RequestTimeout as a duration
func (c Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// StreamIdleTimeoutDuration returns StreamIdleTimeout as a duration
func (c Config) StreamIdleTimeoutDuration() time.Duration {
	return time.Duration(c.StreamIdleTimeout) * time.Second
}

// AutosaveIntervalDuration returns AutosaveInterval as a duration, never below one second
func (c Config) AutosaveIntervalDuration() time.Duration {
	if c.AutosaveInterval < 1 {
		return time.Second
	}
	return time.Duration(c.AutosaveInterval) * time.Second
}

// configDirOverride is set by tests and the --config-dir flag
var configDirOverride string

// SetConfigDir overrides the configuration directory
func SetConfigDir(dir string) {
	configDirOverride = dir
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	if env := os.Getenv("CHATSYNC_HOME"); env != "" {
		return env, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".chatsync"), nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// LoadConfig loads the configuration from disk
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	configPath, err := GetConfigPath()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to disk
func SaveConfig(cfg Config) error {
	configDir, err := EnsureConfigDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.json")

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Set updates a single config value by its JSON key
func (c *Config) Set(key, value string) error {
	switch key {
	case "base_url":
		c.BaseURL = value
	case "default_model":
		c.DefaultModel = value
	case "history_limit":
		return setPositiveInt(&c.HistoryLimit, key, value)
	case "request_timeout":
		return setPositiveInt(&c.RequestTimeout, key, value)
	case "stream_idle_timeout":
		return setNonNegativeInt(&c.StreamIdleTimeout, key, value)
	case "autosave_interval":
		return setPositiveInt(&c.AutosaveInterval, key, value)
	case "storage_backend":
		if value != "file" && value != "sqlite" {
			return fmt.Errorf("storage_backend must be file or sqlite, got %q", value)
		}
		c.StorageBackend = value
	case "log_level":
		switch value {
		case "debug", "info", "warn", "error":
			c.LogLevel = value
		default:
			return fmt.Errorf("invalid log_level %q", value)
		}
	case "copy_to_clipboard":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		c.CopyToClipboard = b
	case "markdown.style":
		c.Markdown.Style = value
	case "markdown.width":
		return setNonNegativeInt(&c.Markdown.Width, key, value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// Keys returns the keys accepted by Set
func Keys() []string {
	return []string{
		"base_url",
		"default_model",
		"history_limit",
		"request_timeout",
		"stream_idle_timeout",
		"autosave_interval",
		"storage_backend",
		"log_level",
		"copy_to_clipboard",
		"markdown.style",
		"markdown.width",
	}
}

func setPositiveInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fmt.Errorf("%s must be a positive integer, got %q", key, value)
	}
	*dst = n
	return nil
}

func setNonNegativeInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("%s must be a non-negative integer, got %q", key, value)
	}
	*dst = n
	return nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", value)
}
