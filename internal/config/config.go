// Package config provides configuration management for the admin client.
//
// This package handles loading configuration from multiple sources:
//   - YAML configuration files
//   - Environment variables (with ADMIN_ prefix)
//   - .env files
//   - Default values
//
// # Configuration Sources Priority
//
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Default values (hardcoded)
//  2. Configuration files (./config.yaml, ./configs/config.yaml, ~/.admin/config.yaml, /etc/admin/config.yaml)
//  3. .env files
//  4. Environment variables (ADMIN_ prefix)
//
// # Usage Example
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("API: %s\n", cfg.API.Entrypoint)
//
// # Environment Variables
//
// Environment variables override all other configuration sources.
// Use ADMIN_ prefix and underscores for nested keys:
//   - ADMIN_API_ENTRYPOINT=https://demo.api-platform.com
//   - ADMIN_API_TOKEN=eyJhbGciOi...
//   - ADMIN_MERCURE_HUB=https://demo.api-platform.com/.well-known/mercure
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for the admin client.
type Config struct {
	// API contains the connection settings of the Hydra API.
	API APIConfig `mapstructure:"api"`

	// Mercure contains the real-time hub settings.
	Mercure MercureConfig `mapstructure:"mercure"`

	// Logging contains logging settings.
	Logging LoggingConfig `mapstructure:"logging"`

	// Output contains CLI rendering settings.
	Output OutputConfig `mapstructure:"output"`
}

// APIConfig contains the Hydra API connection settings.
type APIConfig struct {
	// Entrypoint is the API entry point every resource locator is resolved
	// against, e.g. https://demo.api-platform.com
	Entrypoint string `mapstructure:"entrypoint"`

	// Token is a bearer credential sent on every API request.
	Token string `mapstructure:"token"`

	// Timeout bounds each API round trip.
	Timeout time.Duration `mapstructure:"timeout"`

	// RateLimit caps outgoing requests per second. 0 disables the limiter.
	RateLimit float64 `mapstructure:"rate_limit"`

	// UseEmbedded keeps inlined relations as embedded documents instead of
	// collapsing them to IRI references.
	UseEmbedded bool `mapstructure:"use_embedded"`

	// DisableCache turns off the embedded-document cache.
	DisableCache bool `mapstructure:"disable_cache"`
}

// MercureConfig contains the real-time hub settings. All fields are
// optional: the hub is normally discovered from response headers.
type MercureConfig struct {
	// Hub presets the hub locator, skipping discovery.
	Hub string `mapstructure:"hub"`

	// Token is the subscriber JWT sent when opening event streams.
	Token string `mapstructure:"token"`

	// TopicBase resolves relative topics; the API entrypoint when empty.
	TopicBase string `mapstructure:"topic_base"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Format is the log format (json, text)
	Format string `mapstructure:"format"`

	// Output is the log output destination (stdout, stderr)
	Output string `mapstructure:"output"`
}

// OutputConfig contains CLI rendering settings.
type OutputConfig struct {
	// Format is the document rendering format (json, yaml)
	Format string `mapstructure:"format"`
}

var cfg *Config

// Load reads configuration from a file and environment variables.
// If cfgFile is empty, it searches for config.yaml in standard locations.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (ADMIN_ prefix)
//  2. .env file
//  3. Configuration file
//  4. Default values
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.admin")
		v.AddConfigPath("/etc/admin")
	}

	if err := v.ReadInConfig(); err != nil {
		// If config file was explicitly specified, fail on any error
		// If searching multiple paths, only fail on errors other than ConfigFileNotFoundError
		if cfgFile != "" {
			// For explicit file path, check if it's a "file not found" type error
			// In this case, we want to proceed with defaults
			if !isFileNotFoundError(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			// For auto-discovery, only fail on non-NotFound errors
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig() // Ignore error if .env file doesn't exist

	v.SetEnvPrefix("ADMIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Empty-string defaults register the keys with viper so AutomaticEnv
	// picks them up during Unmarshal.
	v.SetDefault("api.entrypoint", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.rate_limit", 0)
	v.SetDefault("api.use_embedded", false)
	v.SetDefault("api.disable_cache", false)

	v.SetDefault("mercure.hub", "")
	v.SetDefault("mercure.token", "")
	v.SetDefault("mercure.topic_base", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("output.format", "json")
}

func validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", cfg.Logging.Level)
	}

	switch cfg.Output.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("invalid output format: %q", cfg.Output.Format)
	}

	if cfg.API.RateLimit < 0 {
		return fmt.Errorf("invalid api rate limit: %f", cfg.API.RateLimit)
	}

	return nil
}

// RequireEntrypoint reports an error when no API entry point is configured.
// Commands that talk to the API call it after flag overrides are applied.
func (c *Config) RequireEntrypoint() error {
	if c.API.Entrypoint == "" {
		return fmt.Errorf("api entrypoint is required (flag --entrypoint, key api.entrypoint or ADMIN_API_ENTRYPOINT)")
	}
	return nil
}

func Get() *Config {
	return cfg
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
