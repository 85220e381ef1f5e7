// Package config loads layered configuration: built-in defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/production-companion/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces this service's environment variables:
// PC_SERVER_PORT -> server.port, PC_QUERY_RETRY_COUNT -> query.retry_count.
const envPrefix = "PC_"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Query      QueryConfig      `koanf:"query"`
	Automation AutomationConfig `koanf:"automation"`
	Logging    LoggingConfig    `koanf:"logging"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig points at Postgres. An empty URL runs the service on
// in-memory stores, which is only useful for local development and tests.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type QueryConfig struct {
	RetryCount int           `koanf:"retry_count"`
	RetryDelay time.Duration `koanf:"retry_delay"`
	Timeout    time.Duration `koanf:"timeout"`
	Debounce   time.Duration `koanf:"debounce"`
	PageSize   int           `koanf:"page_size"`
	// MaxQueries caps the live list queries kept warm per entity.
	MaxQueries int `koanf:"max_queries"`
	// BreakerFailures opens a circuit breaker around store fetches after
	// that many consecutive failures; zero leaves the breaker off.
	BreakerFailures int           `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

type AutomationConfig struct {
	// OutboundTimeout bounds trigger_outgoing_webhook HTTP calls.
	OutboundTimeout time.Duration `koanf:"outbound_timeout"`
}

type LoggingConfig struct {
	Level string `koanf:"level"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			URL:             "",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Query: QueryConfig{
			RetryCount:      3,
			RetryDelay:      time.Second,
			Timeout:         10 * time.Second,
			Debounce:        500 * time.Millisecond,
			PageSize:        50,
			MaxQueries:      100,
			BreakerFailures: 0,
			BreakerCooldown: 30 * time.Second,
		},
		Automation: AutomationConfig{
			OutboundTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration with precedence ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(s, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Query.PageSize < 1 {
		return fmt.Errorf("query.page_size must be positive, got %d", c.Query.PageSize)
	}
	if c.Query.RetryDelay < 0 {
		return fmt.Errorf("query.retry_delay must not be negative")
	}
	if c.Query.Timeout <= 0 {
		return fmt.Errorf("query.timeout must be positive")
	}
	if c.Query.MaxQueries < 1 {
		return fmt.Errorf("query.max_queries must be positive, got %d", c.Query.MaxQueries)
	}
	if c.Query.BreakerFailures < 0 {
		return fmt.Errorf("query.breaker_failures must not be negative")
	}
	if c.Query.BreakerFailures > 0 && c.Query.BreakerCooldown <= 0 {
		return fmt.Errorf("query.breaker_cooldown must be positive when the breaker is enabled")
	}
	if c.Database.URL != "" && !strings.HasPrefix(c.Database.URL, "postgres://") &&
		!strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("database.url must be a postgres:// URL")
	}
	return nil
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
