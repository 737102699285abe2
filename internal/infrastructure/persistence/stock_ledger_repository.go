package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/inventory"
	"github.com/ordersync/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ledgerReferenceColumns is the unique key that makes order deduction idempotent
var ledgerReferenceColumns = []clause.Column{
	{Name: "reference_type"},
	{Name: "reference_id"},
	{Name: "movement_type"},
	{Name: "product_id"},
	{Name: "warehouse_id"},
}

// GormStockLedgerRepository implements inventory.StockLedgerRepository using GORM.
// The ledger is append-only.
type GormStockLedgerRepository struct {
	db *gorm.DB
}

// NewGormStockLedgerRepository creates a new GormStockLedgerRepository
func NewGormStockLedgerRepository(db *gorm.DB) *GormStockLedgerRepository {
	return &GormStockLedgerRepository{db: db}
}

// FindStockLedgerByOrderAndType finds entries of a movement type referencing a document
func (r *GormStockLedgerRepository) FindStockLedgerByOrderAndType(ctx context.Context, refType inventory.ReferenceType, refID uuid.UUID, movement inventory.MovementType) ([]inventory.StockLedgerEntry, error) {
	var entryModels []models.StockLedgerModel
	if err := r.db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ? AND movement_type = ?", refType, refID, movement).
		Order("created_at ASC").
		Find(&entryModels).Error; err != nil {
		return nil, err
	}

	entries := make([]inventory.StockLedgerEntry, len(entryModels))
	for i := range entryModels {
		entries[i] = *entryModels[i].ToDomain()
	}
	return entries, nil
}

// InsertStockLedgerEntries inserts all entries in one transaction with
// ON CONFLICT DO NOTHING on the reference key and returns the rows inserted
func (r *GormStockLedgerRepository) InsertStockLedgerEntries(ctx context.Context, entries []inventory.StockLedgerEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	var inserted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range entries {
			result := tx.Clauses(clause.OnConflict{Columns: ledgerReferenceColumns, DoNothing: true}).
				Create(models.StockLedgerModelFromDomain(&entries[i]))
			if result.Error != nil {
				return result.Error
			}
			inserted += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// movementTotal is one row of the per-movement aggregate
type movementTotal struct {
	MovementType inventory.MovementType
	Total        decimal.Decimal
}

// SumByMovement totals ledger quantities per movement type
func (r *GormStockLedgerRepository) SumByMovement(ctx context.Context, productID, warehouseID uuid.UUID) (map[inventory.MovementType]decimal.Decimal, error) {
	var rows []movementTotal
	if err := r.db.WithContext(ctx).
		Model(&models.StockLedgerModel{}).
		Select("movement_type, SUM(quantity) AS total").
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		Group("movement_type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	totals := make(map[inventory.MovementType]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.MovementType] = row.Total
	}
	return totals, nil
}

// Ensure GormStockLedgerRepository implements StockLedgerRepository
var _ inventory.StockLedgerRepository = (*GormStockLedgerRepository)(nil)
