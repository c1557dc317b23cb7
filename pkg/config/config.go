package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marketrow/stallgate/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Cache         CacheConfig         `yaml:"cache"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds the optional Redis cache configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig holds profile cache settings
type CacheConfig struct {
	ProfileSize int           `yaml:"profile_size"`
	ProfileTTL  time.Duration `yaml:"profile_ttl"`
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	// Sink is one of db, file, both or none
	Sink          string `yaml:"sink"`
	FilePath      string `yaml:"file_path"`
	RetentionDays int    `yaml:"retention_days"`
	// SweepSchedule is a cron expression for the retention sweep
	SweepSchedule string `yaml:"sweep_schedule"`
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Default returns the built-in defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Cache: CacheConfig{
			ProfileSize: 1024,
			ProfileTTL:  30 * time.Second,
		},
		Audit: AuditConfig{
			Sink:          "db",
			FilePath:      "/var/log/stallgate/audit",
			RetentionDays: 90,
			SweepSchedule: "0 3 * * *",
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// named by STALLGATE_CONFIG_FILE, and STALLGATE_* environment overrides,
// in that order.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("STALLGATE_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("STALLGATE_HOST", c.Server.Host)
	c.Server.Port = getEnv("STALLGATE_PORT", c.Server.Port)
	c.Server.HealthPort = getEnv("STALLGATE_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("STALLGATE_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("STALLGATE_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("STALLGATE_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("STALLGATE_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.URL = getEnv("STALLGATE_POSTGRES_URL", c.Database.URL)
	c.Database.MaxOpenConns = getEnvInt("STALLGATE_POSTGRES_MAX_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("STALLGATE_POSTGRES_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("STALLGATE_POSTGRES_CONN_LIFETIME", c.Database.ConnMaxLifetime)

	c.Redis.Enabled = getEnvBool("STALLGATE_REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("STALLGATE_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("STALLGATE_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("STALLGATE_REDIS_DB", c.Redis.DB)

	c.Cache.ProfileSize = getEnvInt("STALLGATE_PROFILE_CACHE_SIZE", c.Cache.ProfileSize)
	c.Cache.ProfileTTL = getEnvDuration("STALLGATE_PROFILE_CACHE_TTL", c.Cache.ProfileTTL)

	c.Audit.Sink = getEnv("STALLGATE_AUDIT_SINK", c.Audit.Sink)
	c.Audit.FilePath = getEnv("STALLGATE_AUDIT_FILE_PATH", c.Audit.FilePath)
	c.Audit.RetentionDays = getEnvInt("STALLGATE_AUDIT_RETENTION_DAYS", c.Audit.RetentionDays)
	c.Audit.SweepSchedule = getEnv("STALLGATE_AUDIT_SWEEP_SCHEDULE", c.Audit.SweepSchedule)

	c.Observability.LogLevel = getEnv("STALLGATE_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("STALLGATE_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.Audit.Sink {
	case "db", "file", "both", "none":
	default:
		return fmt.Errorf("invalid audit sink: %s (must be db, file, both, or none)", c.Audit.Sink)
	}
	if (c.Audit.Sink == "file" || c.Audit.Sink == "both") && c.Audit.FilePath == "" {
		return fmt.Errorf("audit file path is required for the file sink")
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit retention days cannot be negative")
	}

	return nil
}

// LogLevel converts the configured level string
func (c *Config) LogLevel() observability.LogLevel {
	return observability.ParseLogLevel(strings.ToLower(c.Observability.LogLevel))
}

// getEnv retrieves an environment variable with a fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback
func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvBool retrieves a boolean environment variable with a fallback
func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return fallback
}

// getEnvDuration retrieves a duration environment variable with a fallback
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
