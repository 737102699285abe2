package persistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ordersync/backend/internal/infrastructure/config"
	"github.com/ordersync/backend/internal/infrastructure/persistence/models"
)

// sqliteBusyTimeout lets a writer wait for the single connection instead of
// failing with SQLITE_BUSY while a sync job holds it
const sqliteBusyTimeout = 5 * time.Second

// Database owns the engine's GORM handle and its connection pool
type Database struct {
	DB     *gorm.DB
	driver string
}

// NewDatabase opens the configured database with GORM logging silenced
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	return Open(context.Background(), cfg, gormlogger.Discard)
}

// Open connects, sizes the pool and verifies the connection within ctx
func Open(ctx context.Context, cfg *config.DatabaseConfig, gormLog gormlogger.Interface) (*Database, error) {
	dial, err := dialector(cfg)
	if err != nil {
		return nil, err
	}
	driver := dial.Name()

	db, err := gorm.Open(dial, &gorm.Config{
		Logger:                 gormLog,
		SkipDefaultTransaction: true,
		// prepared statements pin connections, which the single sqlite conn cannot afford
		PrepareStmt: driver == config.DriverPostgres,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	d := &Database{DB: db, driver: driver}
	if err := d.configurePool(cfg); err != nil {
		return nil, err
	}
	if driver == config.DriverSQLite {
		pragma := fmt.Sprintf("PRAGMA busy_timeout = %d", sqliteBusyTimeout.Milliseconds())
		if err := db.WithContext(ctx).Exec(pragma).Error; err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("configure sqlite: %w", err)
		}
	}
	if err := d.Ping(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// dialector picks the GORM driver for the configured backend
func dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", config.DriverPostgres:
		return postgres.Open(cfg.DSN()), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func (d *Database) configurePool(cfg *config.DatabaseConfig) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if d.driver == config.DriverSQLite {
		// sqlite serializes writers; one connection also keeps :memory: databases shared
		maxOpen, maxIdle = 1, 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	return nil
}

// Driver reports the backend in use: "postgres" or "sqlite"
func (d *Database) Driver() string {
	return d.driver
}

// Ping verifies the connection; it backs the /healthz database check
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s database: %w", d.driver, err)
	}
	return nil
}

// Close releases the connection pool
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// AutoMigrate creates or updates every table of the engine. Used for the
// sqlite backend and tests; postgres deployments run the SQL migrations.
func (d *Database) AutoMigrate() error {
	return AutoMigrate(d.DB)
}

// AutoMigrate runs GORM auto-migration for all persistence models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.CanonicalOrderModel{},
		&models.CanonicalOrderItemModel{},
		&models.PlatformAdapterConfigModel{},
		&models.SyncJobModel{},
		&models.WebhookEventModel{},
		&models.ProductModel{},
		&models.ProductBomModel{},
		&models.PlatformListingModel{},
		&models.PlatformListingItemModel{},
		&models.WarehouseModel{},
		&models.StockLedgerModel{},
	)
}
