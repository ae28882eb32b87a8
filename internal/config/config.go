// ABOUTME: Configuration loading and parsing for care-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete care-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	AI        AIConfig        `yaml:"ai"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Reminders RemindersConfig `yaml:"reminders"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// WhatsAppConfig holds WhatsApp Cloud API credentials and tuning
type WhatsAppConfig struct {
	Token         string `yaml:"token"`
	PhoneNumberID string `yaml:"phone_number_id"`
	VerifyToken   string `yaml:"verify_token"`
	APIBase       string `yaml:"api_base"`

	Timeout time.Duration `yaml:"-"`
	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// AIConfig holds the OpenAI-backed capability configuration. An empty
// api_key disables auto-replies and summaries.
type AIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`

	Timeout time.Duration `yaml:"-"`
	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// AlertsConfig holds the concern keyword list. Empty means the built-in
// Portuguese defaults.
type AlertsConfig struct {
	Keywords []string `yaml:"keywords"`
}

// RemindersConfig holds the scheduled daily reminder job configuration
type RemindersConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
	Message  string `yaml:"message"`
	// Secret guards the manual HTTP trigger endpoint
	Secret string `yaml:"secret"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// CORSConfig holds cross-origin configuration for the panel frontend
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
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

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
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

	// The webhook handshake cannot work without a verify token
	if c.WhatsApp.VerifyToken == "" {
		return fmt.Errorf("whatsapp.verify_token is required")
	}

	// Outbound delivery needs both credential halves or neither
	if (c.WhatsApp.Token == "") != (c.WhatsApp.PhoneNumberID == "") {
		return fmt.Errorf("whatsapp.token and whatsapp.phone_number_id must be set together")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Reminders.Enabled {
		if c.Reminders.Schedule == "" {
			return fmt.Errorf("reminders.schedule is required when reminders are enabled")
		}
		if c.Reminders.Message == "" {
			return fmt.Errorf("reminders.message is required when reminders are enabled")
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.WhatsApp.TimeoutRaw != "" {
		cfg.WhatsApp.Timeout, err = time.ParseDuration(cfg.WhatsApp.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing whatsapp.timeout %q: %w", cfg.WhatsApp.TimeoutRaw, err)
		}
	}

	if cfg.AI.TimeoutRaw != "" {
		cfg.AI.Timeout, err = time.ParseDuration(cfg.AI.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing ai.timeout %q: %w", cfg.AI.TimeoutRaw, err)
		}
	}

	return nil
}
