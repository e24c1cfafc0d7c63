package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rankforge/rankforge/pkg/api"
	"github.com/rankforge/rankforge/pkg/audits"
	"github.com/rankforge/rankforge/pkg/billing"
	"github.com/rankforge/rankforge/pkg/config"
	"github.com/rankforge/rankforge/pkg/middleware"
	"github.com/rankforge/rankforge/pkg/observability"
	"github.com/rankforge/rankforge/pkg/plans"
	"github.com/rankforge/rankforge/pkg/quota"
	"github.com/rankforge/rankforge/pkg/usage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.PostgresURL)
	if err != nil {
		logger.WithError(err).Error("Failed to open database connection")
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)
	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Error("Failed to ping database")
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Error("Failed to ping Redis")
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	store := billing.NewPostgresStore(db)
	ledger := usage.NewPostgresLedger(db)
	auditStore := audits.NewPostgresStore(db)
	catalog := plans.NewCatalog(cfg.Billing.PriceTiers())

	// Without an API key the reconciler trusts event payloads instead of
	// re-fetching the canonical subscription object.
	var provider billing.Provider
	if cfg.Billing.APIKey != "" {
		provider = billing.NewHTTPProvider(cfg.Billing.APIKey, cfg.Billing.APIBaseURL, cfg.Billing.ProviderTimeout)
	}

	dunning := billing.NewDunningController(store, cfg.Billing.GracePeriod, cfg.Billing.DowngradeTier, logger)
	reconciler := billing.NewReconciler(store, provider, dunning, catalog, billing.ReconcilerConfig{
		WebhookSecret:      cfg.Billing.WebhookSecret,
		SignatureTolerance: cfg.Billing.SignatureTolerance,
		ProviderTimeout:    cfg.Billing.ProviderTimeout,
	}, logger, metrics)

	gate := quota.NewGate(store, ledger, catalog, quota.Config{
		DowngradeTier: cfg.Billing.DowngradeTier,
		CacheTTL:      cfg.Quota.CacheTTL,
		CacheSize:     cfg.Quota.CacheSize,
	}, metrics)

	opts := []api.Option{}
	if cfg.Observability.OTelEnabled {
		opts = append(opts, api.WithTracing())
	}
	if redisClient != nil {
		opts = append(opts, api.WithRateLimit(middleware.NewDistributedRateLimitMiddleware(redisClient).Handler))
	} else {
		limiter := middleware.NewRateLimitMiddleware()
		opts = append(opts, api.WithRateLimit(limiter.Handler))
	}

	server := api.NewServer(store, gate, ledger, auditStore, reconciler, logger, metrics, opts...)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate listener so probes and scrapes stay
	// off the public port
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	go func() {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.Infof("API server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			os.Exit(1)
		}
	}()

	sm := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return db.Close()
	})
	if redisClient != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if otelProviders != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
