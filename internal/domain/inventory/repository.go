package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductRepository defines the interface for product persistence
type ProductRepository interface {
	// FindByID finds a product by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindProductBySKU finds an active product by SKU
	FindProductBySKU(ctx context.Context, sku string) (*Product, error)

	// Save creates or updates a product
	Save(ctx context.Context, product *Product) error
}

// ProductBomRepository defines the interface for BOM edge persistence
type ProductBomRepository interface {
	BomReader

	// AddComponent creates the edge or replaces its quantity
	AddComponent(ctx context.Context, bom *ProductBom) error

	// RemoveComponent deletes the edge
	RemoveComponent(ctx context.Context, setID, componentID uuid.UUID) error
}

// PlatformListingRepository defines the interface for listing persistence
type PlatformListingRepository interface {
	// FindPlatformListing finds the listing of a marketplace SKU
	FindPlatformListing(ctx context.Context, platform, sku string) (*PlatformListing, error)

	// Save creates or updates a listing and its items
	Save(ctx context.Context, listing *PlatformListing) error
}

// WarehouseRepository defines the interface for warehouse persistence
type WarehouseRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Warehouse, error)
	FindByCode(ctx context.Context, code string) (*Warehouse, error)
	// FindDefaultWarehouse returns the warehouse flagged default
	FindDefaultWarehouse(ctx context.Context) (*Warehouse, error)
	Save(ctx context.Context, warehouse *Warehouse) error
}

// StockLedgerRepository defines the interface for the append-only stock ledger
type StockLedgerRepository interface {
	// FindStockLedgerByOrderAndType finds entries of a movement type referencing a document
	FindStockLedgerByOrderAndType(ctx context.Context, refType ReferenceType, refID uuid.UUID, movement MovementType) ([]StockLedgerEntry, error)

	// InsertStockLedgerEntries inserts all entries in one transaction. Entries
	// colliding on (reference_type, reference_id, movement_type, product_id,
	// warehouse_id) are skipped; the number of inserted rows is returned.
	InsertStockLedgerEntries(ctx context.Context, entries []StockLedgerEntry) (int64, error)

	// SumByMovement totals ledger quantities per movement type
	SumByMovement(ctx context.Context, productID, warehouseID uuid.UUID) (map[MovementType]decimal.Decimal, error)
}
