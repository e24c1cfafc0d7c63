// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	RANKFORGE_HOST="0.0.0.0"
//	RANKFORGE_PORT="8080"
//	RANKFORGE_HEALTH_PORT="9090"
//	RANKFORGE_READ_TIMEOUT="15s"
//	RANKFORGE_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	RANKFORGE_POSTGRES_URL="postgres://localhost/rankforge"
//	RANKFORGE_POSTGRES_MAX_CONNS="20"
//	RANKFORGE_POSTGRES_IDLE_CONNS="5"
//
// Redis settings (optional; in-memory rate limiting applies when unset):
//
//	RANKFORGE_REDIS_URL="redis://localhost:6379"
//	RANKFORGE_REDIS_POOL_SIZE="10"
//
// Billing settings:
//
//	RANKFORGE_BILLING_WEBHOOK_SECRET="whsec_..."  # required
//	RANKFORGE_BILLING_API_KEY="sk_live_..."
//	RANKFORGE_GRACE_PERIOD_DAYS="7"
//	RANKFORGE_DOWNGRADE_TIER="starter"
//	RANKFORGE_PRICE_STARTER="price_..."
//	RANKFORGE_PRICE_PROFESSIONAL="price_..."
//	RANKFORGE_PRICE_AGENCY="price_..."
//
// Quota settings:
//
//	RANKFORGE_QUOTA_CACHE_TTL="30s"
//	RANKFORGE_QUOTA_CACHE_SIZE="10000"
//
// Observability settings:
//
//	RANKFORGE_LOG_LEVEL="info"  # debug, info, warn, error
//	RANKFORGE_METRICS_ENABLED="true"
//	RANKFORGE_OTEL_ENABLED="true"
//	RANKFORGE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Grace period: %s\n", cfg.Billing.GracePeriod)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/billing: Uses billing configuration
//   - pkg/quota: Uses quota configuration
//   - pkg/observability: Uses observability configuration
package config
