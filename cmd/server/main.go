package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appbilling "github.com/meterd/backend/internal/application/billing"
	apptenant "github.com/meterd/backend/internal/application/tenant"
	"github.com/meterd/backend/internal/infrastructure/audit"
	"github.com/meterd/backend/internal/infrastructure/cache"
	"github.com/meterd/backend/internal/infrastructure/config"
	"github.com/meterd/backend/internal/infrastructure/logger"
	"github.com/meterd/backend/internal/infrastructure/payment"
	"github.com/meterd/backend/internal/infrastructure/persistence"
	"github.com/meterd/backend/internal/infrastructure/scheduler"
	"github.com/meterd/backend/internal/interfaces/http/handler"
	"github.com/meterd/backend/internal/interfaces/http/middleware"
	"github.com/meterd/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting Meterd Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Run schema migrations, including the audit trail table
	if err := db.Migrate(&audit.Record{}); err != nil {
		log.Fatal("Failed to migrate database schema", zap.Error(err))
	}

	// Idempotency store (Redis, or in-memory when Redis is disabled)
	idempotencyStore, err := cache.NewIdempotencyStore(cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to initialize idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Initialize repositories
	tenantRepo := persistence.NewGormTenantRepository(db.DB)
	quotaRepo := persistence.NewGormQuotaRepository(db.DB)
	usageRepo := persistence.NewGormUsageLogRepository(db.DB)
	subscriptionRepo := persistence.NewGormSubscriptionRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	webhookEventRepo := persistence.NewGormWebhookEventRepository(db.DB)

	auditLogger := audit.NewGormAuditLogger(db.DB, log)

	// Stripe integration
	stripeConfig := payment.DefaultConfig()
	stripeConfig.SecretKey = cfg.Stripe.APIKey
	stripeConfig.WebhookSecret = cfg.Stripe.WebhookSecret
	stripeProcessor, err := payment.NewStripeProcessor(stripeConfig, log)
	if err != nil {
		log.Fatal("Failed to initialize payment processor", zap.Error(err))
	}
	stripeVerifier := payment.NewStripeVerifier(cfg.Stripe.WebhookSecret, log)

	// Initialize application services
	meterService := appbilling.NewMeterService(usageRepo, log)
	quotaService := appbilling.NewQuotaService(quotaRepo, meterService, log).
		WithSoftLimitPercent(cfg.Quota.SoftLimitPercent)
	syncService := appbilling.NewSyncService(stripeProcessor, subscriptionRepo, auditLogger, log).
		WithConfig(appbilling.SyncConfig{
			MaxAttempts:    cfg.Sync.MaxAttempts,
			InitialBackoff: cfg.Sync.InitialBackoff,
			BackoffFactor:  cfg.Sync.BackoffFactor,
			CallTimeout:    cfg.Sync.CallTimeout,
		})
	registryService := apptenant.NewRegistryService(tenantRepo, quotaService, syncService, auditLogger, log)
	webhookService := appbilling.NewWebhookService(
		stripeVerifier, webhookEventRepo, subscriptionRepo, registryService, idempotencyStore, auditLogger, log,
	)
	overageService := appbilling.NewOverageService(
		quotaRepo, usageRepo, invoiceRepo, tenantRepo, stripeProcessor, nil, auditLogger, log,
	)

	// Start the billing scheduler (quota resets, reconciliation, overage runs)
	billingScheduler := scheduler.NewBillingScheduler(quotaService, overageService, tenantRepo, log,
		scheduler.BillingSchedulerConfig{
			Enabled:             cfg.Scheduler.Enabled,
			PeriodResetInterval: cfg.Scheduler.PeriodResetInterval,
			ReconcileInterval:   cfg.Scheduler.ReconcileInterval,
			OverageRunInterval:  cfg.Scheduler.OverageRunInterval,
			JobTimeout:          cfg.Scheduler.JobTimeout,
		})
	if err := billingScheduler.Start(context.Background()); err != nil {
		log.Fatal("Failed to start billing scheduler", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := billingScheduler.Stop(stopCtx); err != nil {
			log.Error("Error stopping billing scheduler", zap.Error(err))
		}
	}()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. RequestLogger - Log requests
	// 4. Secure - Add security headers
	// 5. BodyLimit - Limit request body size
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery(log))
	engine.Use(middleware.RequestLogger(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Liveness endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Register API routes
	router.NewRouter(engine, router.WithAPIVersion("v1")).
		Register(handler.NewTenantHandler(registryService)).
		Register(handler.NewQuotaHandler(quotaService)).
		Register(handler.NewUsageHandler(meterService)).
		Register(handler.NewSubscriptionHandler(syncService)).
		Register(handler.NewInvoiceHandler(overageService)).
		Register(handler.NewWebhookHandler(webhookService, log)).
		Register(handler.NewSystemHandler(cfg.App.Name, cfg.App.Env, billingScheduler)).
		Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler reports process and database liveness
func healthHandler(db *persistence.Database, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			log.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
