package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pollenlabs/nectar-gateway/models"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Trust         TrustConfig
	Auth          AuthConfig
	Admission     AdmissionConfig
	Registry      RegistryConfig
	Database      DatabaseConfig
	Upstream      UpstreamConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// TrustConfig holds trust service connection settings
type TrustConfig struct {
	BaseURL  string
	AdminKey string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// AuthConfig holds authentication cascade settings
type AuthConfig struct {
	// EnterTokenSecret is the shared secret for the elevated header. When
	// empty the elevated strategy is disabled.
	EnterTokenSecret string
	// ElevatedDefaultTier applies when an elevated caller carries no
	// resolvable upstream identity
	ElevatedDefaultTier models.Tier
	// TierUpgradeURL is surfaced in model denial responses
	TierUpgradeURL string
}

// AdmissionConfig holds per-class admission queue settings
type AdmissionConfig struct {
	TokenInterval     time.Duration
	ReferrerInterval  time.Duration
	AnonymousInterval time.Duration
	Capacity          int
	IdleTTL           time.Duration
}

// RegistryConfig holds model registry settings
type RegistryConfig struct {
	// Path to the YAML registry file; empty keeps the built-in defaults
	Path string
}

// DatabaseConfig holds PostgreSQL settings for the decision audit log.
// Auditing is optional: an empty ConnectionString disables it.
type DatabaseConfig struct {
	ConnectionString string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// UpstreamConfig holds completion backend connection settings
type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	elevatedTier, _ := models.ParseTier(getEnv("ELEVATED_DEFAULT_TIER", "seed"))

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Trust: TrustConfig{
			BaseURL:  getEnv("TRUST_BASE_URL", ""),
			AdminKey: getEnv("TRUST_ADMIN_KEY", ""),
			Timeout:  getEnvAsDuration("TRUST_TIMEOUT", 10*time.Second),
			CacheTTL: getEnvAsDuration("TRUST_CACHE_TTL", 30*time.Second),
		},
		Auth: AuthConfig{
			EnterTokenSecret:    getEnv("ENTER_TOKEN_SECRET", ""),
			ElevatedDefaultTier: elevatedTier,
			TierUpgradeURL:      getEnv("TIER_UPGRADE_URL", "https://pollenlabs.dev/upgrade"),
		},
		Admission: AdmissionConfig{
			TokenInterval:     getEnvAsDuration("ADMIT_TOKEN_INTERVAL", 1*time.Second),
			ReferrerInterval:  getEnvAsDuration("ADMIT_REFERRER_INTERVAL", 3*time.Second),
			AnonymousInterval: getEnvAsDuration("ADMIT_ANON_INTERVAL", 6*time.Second),
			Capacity:          getEnvAsInt("ADMIT_QUEUE_CAPACITY", 32),
			IdleTTL:           getEnvAsDuration("ADMIT_IDLE_TTL", 5*time.Minute),
		},
		Registry: RegistryConfig{
			Path: getEnv("MODEL_REGISTRY_PATH", ""),
		},
		Database: DatabaseConfig{
			ConnectionString: getEnv("DATABASE_URL", ""),
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Upstream: UpstreamConfig{
			BaseURL: getEnv("UPSTREAM_BASE_URL", ""),
			Timeout: getEnvAsDuration("UPSTREAM_TIMEOUT", 60*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Trust.BaseURL == "" {
		return fmt.Errorf("trust service base URL is required: set TRUST_BASE_URL")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("completion backend base URL is required: set UPSTREAM_BASE_URL")
	}

	if c.IsProduction() {
		if c.Auth.EnterTokenSecret == "" {
			return fmt.Errorf("enter token secret is required in production")
		}
		if c.Trust.AdminKey == "" {
			return fmt.Errorf("trust admin key is required in production")
		}
	}

	if c.Admission.TokenInterval <= 0 || c.Admission.ReferrerInterval <= 0 || c.Admission.AnonymousInterval <= 0 {
		return fmt.Errorf("admission intervals must be positive")
	}
	if c.Admission.TokenInterval > c.Admission.ReferrerInterval ||
		c.Admission.ReferrerInterval > c.Admission.AnonymousInterval {
		return fmt.Errorf("admission intervals must not invert the class order: token <= referrer <= anonymous")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Enabled reports whether the decision audit log is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != ""
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString == "" {
		return "disabled"
	}
	u, err := url.Parse(c.ConnectionString)
	if err != nil {
		return "host=<from DATABASE_URL>"
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	db := strings.TrimPrefix(u.Path, "/")
	return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
