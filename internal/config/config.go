// Package config handles application configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Database connection
	Database DatabaseConfig `mapstructure:"database"`

	// Transport settings
	Transport TransportConfig `mapstructure:"transport"`

	// Logging
	Log LogConfig `mapstructure:"log"`

	// CLI output
	Output OutputConfig `mapstructure:"output"`
}

type DatabaseConfig struct {
	// URL is the postgres:// connection string.
	URL string `mapstructure:"url"`
	// Endpoint overrides the API endpoint derived from the URL host.
	Endpoint string `mapstructure:"endpoint"`
}

type TransportConfig struct {
	// Mode selects the transport for one-shot statements: http or ws.
	Mode             string        `mapstructure:"mode"`
	Keepalive        bool          `mapstructure:"keepalive"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Mode:             "http",
			Keepalive:        true,
			StatementTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Output: OutputConfig{
			Format: "table",
		},
	}
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ppg"
	}
	return filepath.Join(home, ".ppg")
}

// Load loads configuration from file and env vars
func Load(configPath string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("database.url", defaults.Database.URL)
	v.SetDefault("database.endpoint", defaults.Database.Endpoint)
	v.SetDefault("transport.mode", defaults.Transport.Mode)
	v.SetDefault("transport.keepalive", defaults.Transport.Keepalive)
	v.SetDefault("transport.statement_timeout", defaults.Transport.StatementTimeout)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("output.format", defaults.Output.Format)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultConfigDir())
		v.AddConfigPath("/etc/ppg")
	}

	// Environment variables, e.g. PPG_DATABASE_URL
	v.SetEnvPrefix("ppg")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// Save writes the config to a file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.Set("database", c.Database)
	v.Set("transport", c.Transport)
	v.Set("log", c.Log)
	v.Set("output", c.Output)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

// DefaultPath returns the config file location used by Save when none is
// given.
func DefaultPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Transport.Mode != "http" && c.Transport.Mode != "ws" {
		return fmt.Errorf("transport.mode must be http or ws")
	}
	return nil
}
