package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/rankforge/rankforge/pkg/billing"
	"github.com/rankforge/rankforge/pkg/config"
	"github.com/rankforge/rankforge/pkg/observability"
)

var (
	sweepSchedule = flag.String("sweep-schedule", "*/15 * * * *", "Cron schedule for the grace-period sweep (default: every 15 minutes)")
	runOnce       = flag.Bool("run-once", false, "Run the sweep once and exit (for testing or backfilling)")
)

// The sweeper persists cancellations for subscriptions whose grace period
// has elapsed. Read paths apply expiry lazily, so a missed run degrades
// reporting, not enforcement.
func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := sql.Open("postgres", cfg.Database.PostgresURL)
	if err != nil {
		logger.WithError(err).Error("Failed to open database connection")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

	if err := db.Ping(); err != nil {
		logger.WithError(err).Error("Failed to ping database")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	store := billing.NewPostgresStore(db)
	dunning := billing.NewDunningController(store, cfg.Billing.GracePeriod, cfg.Billing.DowngradeTier, logger)

	// A panic in one sweep must not take down the scheduler
	sweep := func() {
		defer observability.RecoverPanic(logger, "grace-period sweep")
		count, err := dunning.ExpireOverdue(context.Background())
		if err != nil {
			logger.WithError(err).Error("Grace-period sweep failed")
			return
		}
		metrics.GraceExpirationsTotal.Add(float64(count))
	}

	if *runOnce {
		count, err := dunning.ExpireOverdue(context.Background())
		if err != nil {
			logger.WithError(err).Error("Grace-period sweep failed")
			os.Exit(1)
		}
		logger.WithField("count", count).Info("Sweep completed")
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*sweepSchedule, sweep); err != nil {
		logger.WithError(err).Error("Failed to schedule grace-period sweep")
		os.Exit(1)
	}
	c.Start()
	logger.Infof("Dunning sweeper started, schedule: %s", *sweepSchedule)

	// Metrics endpoint for scrapes
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, nil))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	cronCtx := c.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Health server shutdown failed")
	}

	logger.Info("Dunning sweeper stopped")
}
