// Package observability provides structured logging, Prometheus metrics,
// health checks, and OpenTelemetry tracing for the RankForge services.
//
// # Structured Logging
//
// Loggers emit JSON via slog:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("account_id", id).Info("Audit run started")
//	logger.WithError(err).Error("Webhook processing failed")
//
// # Prometheus Metrics
//
// Metrics register against a caller-supplied registry so tests can use a
// fresh one:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.BillingEventsTotal.WithLabelValues("payment_failed", "applied").Inc()
//	metrics.QuotaChecksTotal.WithLabelValues("audit", "allowed").Inc()
//
// # Health Checks
//
// The health checker probes Postgres and, when configured, Redis:
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// A Redis outage reports degraded rather than unhealthy because only rate
// limiting depends on it.
//
// # OpenTelemetry
//
// Tracing and OTLP metric export are optional:
//
//	providers, err := observability.InitOTel(ctx, otelCfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Shutdown
//
// ShutdownManager drains the HTTP server on SIGINT/SIGTERM and then runs
// registered cleanup steps concurrently under a single timeout.
package observability
