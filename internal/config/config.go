// ABOUTME: Configuration loading and parsing for botherd
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete botherd configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Bots     BotsConfig     `yaml:"bots"`
	Names    NamesConfig    `yaml:"names"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BridgeConfig holds the websocket bridge endpoint configuration
type BridgeConfig struct {
	URL              string        `yaml:"url"`
	HandshakeTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	HandshakeTimeoutRaw string `yaml:"handshake_timeout"`
}

// BotsConfig holds herd-wide bot behavior configuration
type BotsConfig struct {
	// ResumeActive starts bots flagged active in the store at boot.
	ResumeActive bool `yaml:"resume_active"`
}

// NamesConfig holds username allocator configuration
type NamesConfig struct {
	// VocabularyPath overrides the embedded name vocabulary when set.
	VocabularyPath string `yaml:"vocabulary_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
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

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Bridge.URL == "" {
		return fmt.Errorf("bridge.url is required")
	}
	u, err := url.Parse(c.Bridge.URL)
	if err != nil {
		return fmt.Errorf("bridge.url is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("bridge.url must use ws or wss scheme, got %q", u.Scheme)
	}

	if c.Bridge.HandshakeTimeout < 0 {
		return fmt.Errorf("bridge.handshake_timeout must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Bridge.HandshakeTimeoutRaw != "" {
		cfg.Bridge.HandshakeTimeout, err = time.ParseDuration(cfg.Bridge.HandshakeTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing handshake_timeout %q: %w", cfg.Bridge.HandshakeTimeoutRaw, err)
		}
	}

	return nil
}
