package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mosaicdocs/mosaic/pkg/observability"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Authorization store configuration
	Authz AuthzConfig `yaml:"authz"`

	// Permission sync configuration
	Sync SyncConfig `yaml:"sync"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
}

// AuthzConfig holds authorization store configuration.
type AuthzConfig struct {
	APIURL  string        `yaml:"api_url"`
	StoreID string        `yaml:"store_id"`
	ModelID string        `yaml:"model_id"`
	Timeout time.Duration `yaml:"timeout"`
}

// SyncConfig holds permission sync engine configuration.
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
	Workers  int           `yaml:"workers"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel `yaml:"-"`
	LogLevelName   string                 `yaml:"log_level"`
	MetricsEnabled bool                   `yaml:"metrics_enabled"`
}

// LoadConfig builds the configuration: defaults, then the optional YAML file
// named by MOSAIC_CONFIG_FILE, then environment variables on top.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := getEnv("MOSAIC_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadEnv()
	cfg.Observability.LogLevel = observability.ParseLogLevel(cfg.Observability.LogLevelName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:    25,
			MinConns:    5,
			Timeout:     5 * time.Second,
			MaxLifetime: time.Hour,
			MaxIdleTime: 10 * time.Minute,
		},
		Authz: AuthzConfig{
			Timeout: 5 * time.Second,
		},
		Sync: SyncConfig{
			Interval: 10 * time.Second,
			Workers:  4,
		},
		Observability: ObservabilityConfig{
			LogLevelName:   "info",
			MetricsEnabled: true,
		},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.Server.Host = getEnv("MOSAIC_HOST", c.Server.Host)
	c.Server.Port = getEnv("MOSAIC_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("MOSAIC_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("MOSAIC_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("MOSAIC_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("MOSAIC_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.URL = getEnv("MOSAIC_POSTGRES_URL", c.Database.URL)
	c.Database.MaxConns = getEnvInt("MOSAIC_POSTGRES_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvInt("MOSAIC_POSTGRES_MIN_CONNS", c.Database.MinConns)
	c.Database.Timeout = getEnvDuration("MOSAIC_POSTGRES_TIMEOUT", c.Database.Timeout)
	c.Database.MaxLifetime = getEnvDuration("MOSAIC_POSTGRES_MAX_LIFETIME", c.Database.MaxLifetime)
	c.Database.MaxIdleTime = getEnvDuration("MOSAIC_POSTGRES_MAX_IDLE_TIME", c.Database.MaxIdleTime)

	c.Authz.APIURL = getEnv("MOSAIC_FGA_API_URL", c.Authz.APIURL)
	c.Authz.StoreID = getEnv("MOSAIC_FGA_STORE_ID", c.Authz.StoreID)
	c.Authz.ModelID = getEnv("MOSAIC_FGA_MODEL_ID", c.Authz.ModelID)
	c.Authz.Timeout = getEnvDuration("MOSAIC_FGA_TIMEOUT", c.Authz.Timeout)

	c.Sync.Interval = getEnvDuration("MOSAIC_SYNC_INTERVAL", c.Sync.Interval)
	c.Sync.Workers = getEnvInt("MOSAIC_SYNC_WORKERS", c.Sync.Workers)

	c.Observability.LogLevelName = getEnv("MOSAIC_LOG_LEVEL", c.Observability.LogLevelName)
	c.Observability.MetricsEnabled = getEnvBool("MOSAIC_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Authz.APIURL == "" {
		return fmt.Errorf("authorization store API URL is required")
	}
	if c.Authz.StoreID == "" {
		return fmt.Errorf("authorization store ID is required")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync workers must be at least 1")
	}
	return nil
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
