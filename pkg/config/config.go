package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rankforge/rankforge/pkg/billing"
	"github.com/rankforge/rankforge/pkg/observability"
	"github.com/rankforge/rankforge/pkg/plans"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (optional; in-memory fallbacks apply when unset)
	Redis RedisConfig

	// Billing configuration
	Billing BillingConfig

	// Quota configuration
	Quota QuotaConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	PostgresURL  string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis settings for distributed rate limiting
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// BillingConfig holds billing provider and dunning settings
type BillingConfig struct {
	// WebhookSecret signs incoming provider events; required
	WebhookSecret      string
	SignatureTolerance time.Duration

	// Provider API access for authoritative re-fetches. Empty APIKey
	// disables re-fetch and payloads are trusted as-is.
	APIKey          string
	APIBaseURL      string
	ProviderTimeout time.Duration

	// Dunning policy
	GracePeriod   time.Duration
	DowngradeTier plans.Tier

	// Price ID to tier mapping
	PriceStarter      string
	PriceProfessional string
	PriceAgency       string
}

// PriceTiers returns the configured price-to-tier mapping, omitting
// unconfigured prices
func (b BillingConfig) PriceTiers() map[string]plans.Tier {
	m := make(map[string]plans.Tier, 3)
	if b.PriceStarter != "" {
		m[b.PriceStarter] = plans.TierStarter
	}
	if b.PriceProfessional != "" {
		m[b.PriceProfessional] = plans.TierProfessional
	}
	if b.PriceAgency != "" {
		m[b.PriceAgency] = plans.TierAgency
	}
	return m
}

// QuotaConfig holds quota gate settings
type QuotaConfig struct {
	CacheTTL  time.Duration
	CacheSize int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Billing:       loadBillingConfig(),
		Quota:         loadQuotaConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("RANKFORGE_HOST", "0.0.0.0"),
		Port:            getEnv("RANKFORGE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("RANKFORGE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("RANKFORGE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("RANKFORGE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("RANKFORGE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("RANKFORGE_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		PostgresURL:  getEnv("RANKFORGE_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("RANKFORGE_POSTGRES_MAX_CONNS", 20),
		MaxIdleConns: getEnvInt("RANKFORGE_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("RANKFORGE_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("RANKFORGE_REDIS_URL", ""),
		Password: getEnv("RANKFORGE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("RANKFORGE_REDIS_DB", 0),
		PoolSize: getEnvInt("RANKFORGE_REDIS_POOL_SIZE", 10),
	}
}

// loadBillingConfig loads billing provider configuration from environment
func loadBillingConfig() BillingConfig {
	graceDays := getEnvInt("RANKFORGE_GRACE_PERIOD_DAYS", 7)
	return BillingConfig{
		WebhookSecret:      getEnv("RANKFORGE_BILLING_WEBHOOK_SECRET", ""),
		SignatureTolerance: getEnvDuration("RANKFORGE_BILLING_SIGNATURE_TOLERANCE", billing.DefaultSignatureTolerance),
		APIKey:             getEnv("RANKFORGE_BILLING_API_KEY", ""),
		APIBaseURL:         getEnv("RANKFORGE_BILLING_API_URL", "https://api.stripe.com"),
		ProviderTimeout:    getEnvDuration("RANKFORGE_BILLING_PROVIDER_TIMEOUT", billing.DefaultProviderTimeout),
		GracePeriod:        time.Duration(graceDays) * 24 * time.Hour,
		DowngradeTier:      plans.Tier(getEnv("RANKFORGE_DOWNGRADE_TIER", string(plans.TierStarter))),
		PriceStarter:       getEnv("RANKFORGE_PRICE_STARTER", ""),
		PriceProfessional:  getEnv("RANKFORGE_PRICE_PROFESSIONAL", ""),
		PriceAgency:        getEnv("RANKFORGE_PRICE_AGENCY", ""),
	}
}

// loadQuotaConfig loads quota gate configuration from environment
func loadQuotaConfig() QuotaConfig {
	return QuotaConfig{
		CacheTTL:  getEnvDuration("RANKFORGE_QUOTA_CACHE_TTL", 30*time.Second),
		CacheSize: getEnvInt("RANKFORGE_QUOTA_CACHE_SIZE", 10000),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("RANKFORGE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("RANKFORGE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("RANKFORGE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("RANKFORGE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("RANKFORGE_OTEL_SERVICE_NAME", "rankforge-api"),
		OTelServiceVersion: getEnv("RANKFORGE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("RANKFORGE_OTEL_INSECURE", true),
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate database config
	if c.Database.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	// Validate billing config
	if c.Billing.WebhookSecret == "" {
		return fmt.Errorf("billing webhook secret is required")
	}
	if c.Billing.SignatureTolerance <= 0 {
		return fmt.Errorf("billing signature tolerance must be positive")
	}
	if c.Billing.GracePeriod <= 0 {
		return fmt.Errorf("grace period must be positive")
	}
	if !c.Billing.DowngradeTier.Valid() {
		return fmt.Errorf("invalid downgrade tier: %s", c.Billing.DowngradeTier)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
