// ABOUTME: Configuration loading and parsing for the trip chat client
// ABOUTME: YAML with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete tripchat configuration.
type Config struct {
	Relay   RelayConfig   `yaml:"relay"`
	Booking BookingConfig `yaml:"booking"`
	Chat    ChatConfig    `yaml:"chat"`
	Logging LoggingConfig `yaml:"logging"`
}

// RelayConfig holds the realtime chat relay endpoint.
type RelayConfig struct {
	WSURL string `yaml:"ws_url"`
}

// BookingConfig holds the booking service REST endpoint and credentials.
type BookingConfig struct {
	APIURL string `yaml:"api_url"`
	Token  string `yaml:"token"`
}

// ChatConfig holds conversation timing knobs.
type ChatConfig struct {
	TypingQuiet      time.Duration `yaml:"-"`
	ReadReceiptDelay time.Duration `yaml:"-"`
	HistoryLimit     int           `yaml:"history_limit"`

	// Raw string values for YAML unmarshaling
	TypingQuietRaw      string `yaml:"typing_quiet"`
	ReadReceiptDelayRaw string `yaml:"read_receipt_delay"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded, and
// duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Relay.WSURL == "" {
		return fmt.Errorf("relay.ws_url is required")
	}
	if c.Booking.APIURL == "" {
		return fmt.Errorf("booking.api_url is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Chat.TypingQuietRaw != "" {
		cfg.Chat.TypingQuiet, err = time.ParseDuration(cfg.Chat.TypingQuietRaw)
		if err != nil {
			return fmt.Errorf("parsing typing_quiet %q: %w", cfg.Chat.TypingQuietRaw, err)
		}
	}

	if cfg.Chat.ReadReceiptDelayRaw != "" {
		cfg.Chat.ReadReceiptDelay, err = time.ParseDuration(cfg.Chat.ReadReceiptDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing read_receipt_delay %q: %w", cfg.Chat.ReadReceiptDelayRaw, err)
		}
	}

	return nil
}
