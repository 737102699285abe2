package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appintegration "github.com/ordersync/backend/internal/application/integration"
	appinventory "github.com/ordersync/backend/internal/application/inventory"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/domain/inventory"
	"github.com/ordersync/backend/internal/infrastructure/cache"
	"github.com/ordersync/backend/internal/infrastructure/config"
	"github.com/ordersync/backend/internal/infrastructure/ecommerce"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/persistence"
	"github.com/ordersync/backend/internal/infrastructure/scheduler"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
	"github.com/ordersync/backend/internal/interfaces/http/handler"
	"github.com/ordersync/backend/internal/interfaces/http/middleware"
	"github.com/ordersync/backend/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// OpenTelemetry: logs bridge first so every later component logs through it
	endpoint := telemetry.Endpoint{
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Environment:       cfg.App.Env,
	}
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: endpoint,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize OTEL logs", zap.Error(err))
	}
	if logsProvider.IsEnabled() {
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: logsProvider,
			Level:          log.Level(),
		})
		log = telemetry.NewBridgedLogger(log.Core(), otelCore, zap.AddCaller())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting order sync engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:       cfg.Telemetry.Enabled,
		Endpoint:      endpoint,
		SamplingRatio: cfg.Telemetry.SamplingRatio,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       endpoint,
		ExportInterval: cfg.Telemetry.MetricsInterval,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer shutdownTelemetry(log, logsProvider, meterProvider, tracerProvider)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithBoundValues(cfg.Telemetry.DBLogFullSQL))
	db, err := persistence.Open(ctx, &cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.Driver == config.DriverSQLite {
		// postgres deployments run cmd/migrate instead
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate sqlite schema", zap.Error(err))
		}
	}
	log.Info("Database connected", zap.String("driver", db.Driver()))

	dbSystem := "postgresql"
	if cfg.Database.Driver == config.DriverSQLite {
		dbSystem = "sqlite"
	}
	if err := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:          cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBSystem:         dbSystem,
		WithoutVariables: !cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh:  cfg.Telemetry.DBSlowQueryThresh,
	}, log).RegisterOtelGorm(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DBMetricsConfig{
		Enabled:            cfg.Telemetry.Enabled,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		defer dbMetrics.Stop()
	}

	// Repositories
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	configRepo := persistence.NewGormAdapterConfigRepository(db.DB)
	jobRepo := persistence.NewGormSyncJobRepository(db.DB)
	eventRepo := persistence.NewGormWebhookEventRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	bomRepo := persistence.NewGormProductBomRepository(db.DB)
	listingRepo := persistence.NewGormPlatformListingRepository(db.DB)
	warehouseRepo := persistence.NewGormWarehouseRepository(db.DB)
	ledgerRepo := persistence.NewGormStockLedgerRepository(db.DB)

	// Distributed lock for shop syncs and token refresh
	locker, closeLocker, err := cache.NewLockerFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.IsProduction()),
	).CreateLocker()
	if err != nil {
		log.Fatal("Failed to create locker", zap.Error(err))
	}
	defer func() {
		if err := closeLocker(); err != nil {
			log.Error("Error closing locker", zap.Error(err))
		}
	}()

	// Marketplace adapters
	transport := ecommerce.NewTransport(ecommerce.TransportConfig{
		RequestTimeout:   cfg.Platform.RequestTimeout,
		RateLimitRPS:     cfg.Platform.RateLimitRPS,
		RateLimitBurst:   cfg.Platform.RateLimitBurst,
		MaxResponseBytes: int(cfg.Platform.MaxResponseBytes),
		UserAgent:        cfg.Platform.UserAgent,
	}, log.Named("transport"))
	keeper := ecommerce.NewTokenKeeper(ecommerce.TokenKeeperConfig{
		RefreshBuffer: cfg.Platform.TokenRefreshBuffer,
	}, configRepo, locker, log.Named("token"))
	registry := ecommerce.NewDefaultRegistry(ecommerce.AdapterDeps{
		Transport: transport,
		Keeper:    keeper,
		Logger:    log.Named("adapter"),
		BaseURLs:  platformBaseURLs(cfg.Platform.BaseURLs),
	})

	// Metrics
	var syncMetrics appintegration.SyncMetrics
	if meterProvider.IsEnabled() {
		sm, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
			Meter:           meterProvider.Meter("ordersync.sync"),
			Logger:          log,
			BacklogProvider: telemetry.NewGormBacklogProvider(db.DB),
		})
		if err != nil {
			log.Fatal("Failed to create sync metrics", zap.Error(err))
		}
		sm.StartPeriodicCollection(ctx, cfg.Telemetry.MetricsInterval)
		defer sm.Stop()
		syncMetrics = sm
	}

	// Inventory deduction
	var deductor appintegration.OrderDeductor
	if cfg.Inventory.DeductionEnabled {
		if _, err := appinventory.EnsureDefaultWarehouse(ctx, warehouseRepo, cfg.Inventory.DefaultWarehouseCode, log); err != nil {
			log.Fatal("Failed to prepare default warehouse", zap.Error(err))
		}
		resolver := inventory.NewBomResolver(bomRepo, cfg.Inventory.MaxBomDepth)
		deductor = appinventory.NewInventoryDeductionEngine(productRepo, listingRepo, warehouseRepo, ledgerRepo, resolver, log.Named("deduction"))
	} else {
		log.Warn("Inventory deduction disabled")
	}

	// Application services
	engine := appintegration.NewSyncEngine(appintegration.SyncEngineConfig{
		PageSize:        cfg.Sync.PageSize,
		FetchDetail:     cfg.Sync.FetchDetail,
		Lookback:        cfg.Sync.Lookback(),
		InitialLookback: cfg.Sync.InitialLookback,
		StaleAfter:      cfg.Sync.StaleAfter,
		MaxPages:        cfg.Sync.MaxPages,
	}, registry, orderRepo, configRepo, jobRepo, deductor, syncMetrics, log.Named("sync"))
	monitor := appintegration.NewSyncMonitor(jobRepo, eventRepo, configRepo, cfg.Sync.StaleAfter, log.Named("monitor"))
	tokens := appintegration.NewTokenService(registry, configRepo, cfg.Platform.TokenRefreshBuffer, log.Named("token"))
	processor := appintegration.NewWebhookEventProcessor(eventRepo, configRepo, registry, engine, syncMetrics,
		appintegration.WebhookProcessorConfig{
			BatchSize:        cfg.Webhook.BatchSize,
			PollInterval:     cfg.Webhook.PollInterval,
			VerifySignatures: cfg.Webhook.VerifySignatures,
		}, log.Named("webhook"))

	// Background workers
	syncScheduler, err := scheduler.NewSyncScheduler(scheduler.SyncSchedulerConfig{
		MaxConcurrentShops: cfg.Sync.MaxConcurrentShops,
		QueueSize:          cfg.Sync.QueueSize,
		JobTimeout:         cfg.Sync.JobTimeout,
	}, engine, locker, log.Named("scheduler"))
	if err != nil {
		log.Fatal("Failed to create sync scheduler", zap.Error(err))
	}
	if err := syncScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start sync scheduler", zap.Error(err))
	}

	trigger := scheduler.NewSyncTrigger(scheduler.SyncTriggerConfig{
		CheckInterval:       cfg.Sync.CheckInterval,
		DefaultSyncInterval: cfg.Sync.DefaultInterval(),
	}, syncScheduler, configRepo, log.Named("trigger"))
	if cfg.Sync.Enabled {
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start sync trigger", zap.Error(err))
		}
	} else {
		log.Warn("Scheduled sync disabled, only manual syncs will run")
	}

	if cfg.Webhook.ProcessorEnabled {
		if err := processor.Start(ctx); err != nil {
			log.Fatal("Failed to start webhook processor", zap.Error(err))
		}
	}

	housekeeping := scheduler.NewHousekeeping(5*time.Minute, log.Named("housekeeping"))
	if err := housekeeping.AddTask(scheduler.HousekeepingTask{
		Name: "expire_stale_jobs",
		Spec: cfg.Sync.HousekeepingCron,
		Run: func(ctx context.Context) error {
			_, err := monitor.ExpireStaleJobs(ctx)
			return err
		},
	}); err != nil {
		log.Fatal("Failed to schedule stale job expiry", zap.Error(err))
	}
	if err := housekeeping.AddTask(scheduler.HousekeepingTask{
		Name: "refresh_tokens",
		Spec: cfg.Sync.TokenRefreshCron,
		Run: func(ctx context.Context) error {
			_, err := tokens.RefreshExpiring(ctx)
			return err
		},
	}); err != nil {
		log.Fatal("Failed to schedule token refresh", zap.Error(err))
	}
	housekeeping.Start()

	// HTTP
	ginMode := gin.DebugMode
	if cfg.IsProduction() {
		ginMode = gin.ReleaseMode
	}
	httpEngine, err := router.NewEngine(router.EngineConfig{
		Mode: ginMode,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tracerProvider.IsEnabled(),
			SkipPaths:   []string{"/healthz"},
		},
		Meter:          meterProvider.Meter("ordersync.http"),
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}, log)
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}

	receiverLimits := []gin.HandlerFunc{middleware.BodyLimit(cfg.HTTP.MaxWebhookBody)}
	if cfg.HTTP.WebhookRPS > 0 {
		receiverLimits = append(receiverLimits,
			middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.WebhookRPS, cfg.HTTP.WebhookBurst)))
	}

	router.NewRouter(httpEngine).
		RegisterRoot(handler.NewSystemHandler(version, map[string]handler.HealthCheck{
			"database": db.Ping,
		})).
		RegisterRoot(handler.NewWebhookReceiver(eventRepo, registry, log.Named("receiver")), receiverLimits...).
		Register(handler.NewSyncHandler(monitor, trigger)).
		Register(handler.NewWebhookHandler(monitor, processor)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        httpEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := trigger.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping sync trigger", zap.Error(err))
	}
	if err := housekeeping.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping housekeeping", zap.Error(err))
	}
	if err := processor.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping webhook processor", zap.Error(err))
	}
	if err := syncScheduler.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping sync scheduler", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// platformBaseURLs converts the configured lower-case platform keys
func platformBaseURLs(in map[string]string) map[integration.Platform]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[integration.Platform]string, len(in))
	for name, url := range in {
		out[integration.Platform(strings.ToUpper(name))] = url
	}
	return out
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func shutdownTelemetry(log *zap.Logger, providers ...shutdowner) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, p := range providers {
		if err := p.Shutdown(ctx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}
}
