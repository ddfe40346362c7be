package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is read from UNO_* environment variables, optionally seeded from a
// .env file
type Config struct {
	Addr string `env:"UNO_ADDR,default=:8000"`

	// Capacity is the number of seats in every game
	Capacity int `env:"UNO_CAPACITY,default=4"`
	HandSize int `env:"UNO_HAND_SIZE,default=5"`

	// RetainEmpty keeps games nobody is connected to until the sweeper
	// removes them, so players can come back to their hands
	RetainEmpty   bool          `env:"UNO_RETAIN_EMPTY,default=false"`
	IdleTimeout   time.Duration `env:"UNO_IDLE_TIMEOUT,default=10m"`
	SweepInterval time.Duration `env:"UNO_SWEEP_INTERVAL,default=1m"`

	// AllowedOrigins is separated by semicolons
	AllowedOrigins []string `env:"UNO_ALLOWED_ORIGINS,default=*"`
	SendBuffer     int      `env:"UNO_SEND_BUFFER,default=16"`

	LogLevel  string `env:"UNO_LOG_LEVEL,default=info"`
	LogFormat string `env:"UNO_LOG_FORMAT,default=json"`
}

// Load reads the configuration. Variables already in the environment win
// over those in envFile. A missing envFile is only an error if one was
// named explicitly.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return Config{}, fmt.Errorf("decoding environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var errs []string

	if c.Addr == "" {
		errs = append(errs, "UNO_ADDR must not be empty")
	}
	if c.Capacity < 2 || c.Capacity > 10 {
		errs = append(errs, fmt.Sprintf("UNO_CAPACITY must be 2-10, got %d", c.Capacity))
	}
	if c.HandSize < 1 {
		errs = append(errs, fmt.Sprintf("UNO_HAND_SIZE must be >= 1, got %d", c.HandSize))
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, "UNO_IDLE_TIMEOUT must be positive")
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, "UNO_SWEEP_INTERVAL must be positive")
	}
	if len(c.AllowedOrigins) == 0 {
		errs = append(errs, "UNO_ALLOWED_ORIGINS must not be empty")
	}
	if c.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("UNO_SEND_BUFFER must be >= 1, got %d", c.SendBuffer))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("UNO_LOG_LEVEL must be one of [debug, info, warn, error], got %q", c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Sprintf("UNO_LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
