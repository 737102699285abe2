package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
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
)

func main() {
	if err := newApp(openServices).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openServices wires the same components as the server, minus HTTP,
// telemetry and background workers
func openServices(c *cli.Context) (*services, func(), error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:      c.String("log-level"),
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "15:04:05",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := persistence.Open(c.Context, &cfg.Database,
		logger.NewGormLogger(log, logger.MapGormLogLevel(c.String("log-level"))))
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if db.Driver() == config.DriverSQLite {
		if err := db.AutoMigrate(); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate sqlite schema: %w", err)
		}
	}

	locker, closeLocker, err := cache.NewLockerFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(true),
	).CreateLocker()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create locker: %w", err)
	}

	orderRepo := persistence.NewGormOrderRepository(db.DB)
	configRepo := persistence.NewGormAdapterConfigRepository(db.DB)
	jobRepo := persistence.NewGormSyncJobRepository(db.DB)
	eventRepo := persistence.NewGormWebhookEventRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	bomRepo := persistence.NewGormProductBomRepository(db.DB)

	baseURLs := make(map[integration.Platform]string, len(cfg.Platform.BaseURLs))
	for name, url := range cfg.Platform.BaseURLs {
		baseURLs[integration.Platform(strings.ToUpper(name))] = url
	}
	transport := ecommerce.NewTransport(ecommerce.TransportConfig{
		RequestTimeout:   cfg.Platform.RequestTimeout,
		RateLimitRPS:     cfg.Platform.RateLimitRPS,
		RateLimitBurst:   cfg.Platform.RateLimitBurst,
		MaxResponseBytes: int(cfg.Platform.MaxResponseBytes),
		UserAgent:        cfg.Platform.UserAgent,
	}, log)
	registry := ecommerce.NewDefaultRegistry(ecommerce.AdapterDeps{
		Transport: transport,
		Keeper: ecommerce.NewTokenKeeper(ecommerce.TokenKeeperConfig{
			RefreshBuffer: cfg.Platform.TokenRefreshBuffer,
		}, configRepo, locker, log),
		Logger:   log,
		BaseURLs: baseURLs,
	})

	resolver := inventory.NewBomResolver(bomRepo, cfg.Inventory.MaxBomDepth)
	var deductor appintegration.OrderDeductor
	if cfg.Inventory.DeductionEnabled {
		deductor = appinventory.NewInventoryDeductionEngine(productRepo,
			persistence.NewGormPlatformListingRepository(db.DB),
			persistence.NewGormWarehouseRepository(db.DB),
			persistence.NewGormStockLedgerRepository(db.DB),
			resolver, log)
	}

	engine := appintegration.NewSyncEngine(appintegration.SyncEngineConfig{
		PageSize:        cfg.Sync.PageSize,
		FetchDetail:     cfg.Sync.FetchDetail,
		Lookback:        cfg.Sync.Lookback(),
		InitialLookback: cfg.Sync.InitialLookback,
		StaleAfter:      cfg.Sync.StaleAfter,
		MaxPages:        cfg.Sync.MaxPages,
	}, registry, orderRepo, configRepo, jobRepo, deductor, nil, log)

	s := &services{
		Configs:  configRepo,
		Engine:   engine,
		Orders:   orderRepo,
		Deductor: deductor,
		Monitor:  appintegration.NewSyncMonitor(jobRepo, eventRepo, configRepo, cfg.Sync.StaleAfter, log),
		Tokens:   appintegration.NewTokenService(registry, configRepo, cfg.Platform.TokenRefreshBuffer, log),
		Webhooks: appintegration.NewWebhookEventProcessor(eventRepo, configRepo, registry, engine, nil,
			appintegration.WebhookProcessorConfig{VerifySignatures: cfg.Webhook.VerifySignatures}, log),
		Products: productRepo,
		Boms:     appinventory.NewBomService(productRepo, bomRepo, resolver, log),
	}

	closeFn := func() {
		if err := closeLocker(); err != nil {
			log.Warn("Error closing locker", zap.Error(err))
		}
		if err := db.Close(); err != nil {
			log.Warn("Error closing database", zap.Error(err))
		}
		_ = logger.Sync(log)
	}
	return s, closeFn, nil
}
