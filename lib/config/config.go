// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/matrixbot/lib/ref"
)

// EnvVar names the environment variable Load reads the config path from.
const EnvVar = "MATRIXBOT_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the bot's configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Matrix configures the homeserver connection and identity.
	Matrix MatrixConfig `yaml:"matrix"`

	// Bot configures lifecycle behaviour.
	Bot BotConfig `yaml:"bot"`

	// Storage configures the persisted bot record.
	Storage StorageConfig `yaml:"storage"`

	// Sync configures the /sync long-poll.
	Sync SyncConfig `yaml:"sync"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
// Empty strings and nil pointers leave the base value alone.
type ConfigOverrides struct {
	Matrix  *MatrixOverrides `yaml:"matrix,omitempty"`
	Bot     *BotOverrides    `yaml:"bot,omitempty"`
	Storage *StorageConfig   `yaml:"storage,omitempty"`
	Sync    *SyncConfig      `yaml:"sync,omitempty"`
	Log     *LogConfig       `yaml:"log,omitempty"`
}

// MatrixConfig configures the homeserver connection.
type MatrixConfig struct {
	// HomeserverURL is the client-server API base URL.
	HomeserverURL string `yaml:"homeserver_url"`

	// UserID is the bot's fully-qualified Matrix user ID.
	UserID string `yaml:"user_id"`

	// AccessTokenFile holds the access token (or, in app-service
	// mode, the as_token). "-" reads it from stdin.
	AccessTokenFile string `yaml:"access_token_file"`

	// AppService authenticates as an application service and asserts
	// UserID on every request.
	AppService bool `yaml:"app_service"`
}

// MatrixOverrides overrides MatrixConfig fields.
type MatrixOverrides struct {
	HomeserverURL   string `yaml:"homeserver_url"`
	UserID          string `yaml:"user_id"`
	AccessTokenFile string `yaml:"access_token_file"`
	AppService      *bool  `yaml:"app_service"`
}

// BotConfig configures the bot's lifecycle.
type BotConfig struct {
	// DisplayName is set on the bot's profile at startup when non-empty.
	DisplayName string `yaml:"display_name"`

	// ExitOnEmptyRooms stops the bot and marks it deleted once it is
	// no longer in any room.
	ExitOnEmptyRooms bool `yaml:"exit_on_empty_rooms"`
}

// BotOverrides overrides BotConfig fields.
type BotOverrides struct {
	DisplayName      string `yaml:"display_name"`
	ExitOnEmptyRooms *bool  `yaml:"exit_on_empty_rooms"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	// Database is the SQLite file holding the bot record.
	// Default: ${MATRIXBOT_STATE:-${HOME}/.local/state/matrixbot}/bot.db
	Database string `yaml:"database"`
}

// SyncConfig configures the /sync loop.
type SyncConfig struct {
	// Timeout is the long-poll timeout. Default: 30s.
	Timeout string `yaml:"timeout"`

	// MaxBackoff caps the wait between retries. Default: 30s.
	MaxBackoff string `yaml:"max_backoff"`

	// Filter is a filter ID or inline JSON filter. Default: none.
	Filter string `yaml:"filter"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info.
	Level string `yaml:"level"`

	// Format is text, json, or auto (text on a terminal, JSON
	// otherwise). Default: auto.
	Format string `yaml:"format"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	return &Config{
		Environment: Development,
		Storage: StorageConfig{
			Database: "${MATRIXBOT_STATE:-${HOME}/.local/state/matrixbot}/bot.db",
		},
		Sync: SyncConfig{
			Timeout:    "30s",
			MaxBackoff: "30s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the MATRIXBOT_CONFIG environment variable.
//
// There are no fallbacks: if MATRIXBOT_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your matrixbot.yaml config file, or use --config flag", EnvVar)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. The only expansion
// performed is ${VAR} in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: machine-readable logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Log: &LogConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Matrix != nil {
		override(&c.Matrix.HomeserverURL, overrides.Matrix.HomeserverURL)
		override(&c.Matrix.UserID, overrides.Matrix.UserID)
		override(&c.Matrix.AccessTokenFile, overrides.Matrix.AccessTokenFile)
		if overrides.Matrix.AppService != nil {
			c.Matrix.AppService = *overrides.Matrix.AppService
		}
	}

	if overrides.Bot != nil {
		override(&c.Bot.DisplayName, overrides.Bot.DisplayName)
		if overrides.Bot.ExitOnEmptyRooms != nil {
			c.Bot.ExitOnEmptyRooms = *overrides.Bot.ExitOnEmptyRooms
		}
	}

	if overrides.Storage != nil {
		override(&c.Storage.Database, overrides.Storage.Database)
	}

	if overrides.Sync != nil {
		override(&c.Sync.Timeout, overrides.Sync.Timeout)
		override(&c.Sync.MaxBackoff, overrides.Sync.MaxBackoff)
		override(&c.Sync.Filter, overrides.Sync.Filter)
	}

	if overrides.Log != nil {
		override(&c.Log.Level, overrides.Log.Level)
		override(&c.Log.Format, overrides.Log.Format)
	}
}

func override(field *string, value string) {
	if value != "" {
		*field = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Matrix.AccessTokenFile = expandVars(c.Matrix.AccessTokenFile, vars)
	c.Storage.Database = expandVars(c.Storage.Database, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}. A default may itself
// contain one level of ${VAR}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-((?:[^}$]|\$\{[^}]*\})*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return expandVars(defaultValue, vars)
	})
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"auto", "text", "json"}
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Matrix.HomeserverURL == "" {
		errs = append(errs, fmt.Errorf("matrix.homeserver_url is required"))
	} else if parsed, err := url.Parse(c.Matrix.HomeserverURL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		errs = append(errs, fmt.Errorf("matrix.homeserver_url must be an http(s) URL, got %q", c.Matrix.HomeserverURL))
	}

	if _, err := ref.ParseUserID(c.Matrix.UserID); err != nil || c.Matrix.UserID == "" {
		errs = append(errs, fmt.Errorf("matrix.user_id must be a Matrix user ID like @bot:example.org, got %q", c.Matrix.UserID))
	}

	if c.Matrix.AccessTokenFile == "" {
		errs = append(errs, fmt.Errorf("matrix.access_token_file is required"))
	}

	if c.Storage.Database == "" {
		errs = append(errs, fmt.Errorf("storage.database is required"))
	}

	if _, err := c.SyncTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SyncMaxBackoff(); err != nil {
		errs = append(errs, err)
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", logFormats))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// UserID returns the parsed bot user ID.
func (c *Config) UserID() (ref.UserID, error) {
	return ref.ParseUserID(c.Matrix.UserID)
}

// SyncTimeout returns sync.timeout as a duration.
func (c *Config) SyncTimeout() (time.Duration, error) {
	return parseDuration("sync.timeout", c.Sync.Timeout)
}

// SyncMaxBackoff returns sync.max_backoff as a duration.
func (c *Config) SyncMaxBackoff() (time.Duration, error) {
	return parseDuration("sync.max_backoff", c.Sync.MaxBackoff)
}

func parseDuration(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return duration, nil
}

// LogLevel returns log.level as a slog level. Unknown values map to
// info; Validate rejects them.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// EnsurePaths creates the directory holding the database.
func (c *Config) EnsurePaths() error {
	if c.Storage.Database == "" {
		return nil
	}
	directory := filepath.Dir(c.Storage.Database)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", directory, err)
	}
	return nil
}
