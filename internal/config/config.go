package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jakpal97/fitcoach/internal/cache"
	"github.com/jakpal97/fitcoach/internal/netmon"
	"github.com/jakpal97/fitcoach/internal/queue"
	"github.com/jakpal97/fitcoach/internal/storage"
)

// Config represents the offline layer configuration
type Config struct {
	Storage storage.Config `toml:"storage"`
	Network netmon.Config  `toml:"network"`
	Cache   cache.Config   `toml:"cache"`
	Queue   queue.Config   `toml:"queue"`
	Logging LoggingConfig  `toml:"logging"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Storage: storage.DefaultConfig(),
		Network: netmon.DefaultConfig(),
		Cache:   cache.DefaultConfig(),
		Queue:   queue.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a TOML file
func LoadFromFile(path string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	// Parse TOML file
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
func LoadConfig(configPath string) (*Config, error) {
	// If no config file specified, return defaults
	if configPath == "" {
		return DefaultConfig(), nil
	}

	return LoadFromFile(configPath)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Storage validation
	if c.Storage.Driver == "" {
		return fmt.Errorf("storage driver must be specified")
	}
	if c.Storage.Driver != "sqlite3" {
		return fmt.Errorf("unsupported storage driver: %s (must be sqlite3)", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage DSN must be specified")
	}

	// Network validation
	if c.Network.ProbeURL == "" {
		return fmt.Errorf("network probe_url must be specified")
	}
	if c.Network.ProbeTimeout <= 0 {
		return fmt.Errorf("network probe_timeout must be positive")
	}

	// Cache validation
	windows := map[string]time.Duration{
		"profile_max_age":            c.Cache.ProfileMaxAge,
		"plans_max_age":              c.Cache.PlansMaxAge,
		"exercises_max_age":          c.Cache.ExercisesMaxAge,
		"measurements_max_age":       c.Cache.MeasurementsMaxAge,
		"completed_workouts_max_age": c.Cache.CompletedWorkoutsMaxAge,
		"clients_max_age":            c.Cache.ClientsMaxAge,
	}
	for name, window := range windows {
		if window <= 0 {
			return fmt.Errorf("cache %s must be positive", name)
		}
	}

	// Queue validation
	if c.Queue.MaxRetries <= 0 {
		return fmt.Errorf("queue max_retries must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}
