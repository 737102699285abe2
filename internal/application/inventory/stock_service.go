package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/inventory"
)

// MovementRequest records a manual stock movement
type MovementRequest struct {
	WarehouseID  uuid.UUID
	ProductID    uuid.UUID
	MovementType inventory.MovementType
	Quantity     decimal.Decimal
	Note         string
}

// StockService reads stock levels off the ledger and records manual movements
type StockService struct {
	ledger inventory.StockLedgerRepository
	logger *zap.Logger
}

// NewStockService creates a new StockService
func NewStockService(ledger inventory.StockLedgerRepository, logger *zap.Logger) *StockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockService{ledger: ledger, logger: logger}
}

// StockLevel returns the sellable quantity of a product in a warehouse
func (s *StockService) StockLevel(ctx context.Context, productID, warehouseID uuid.UUID) (decimal.Decimal, error) {
	totals, err := s.ledger.SumByMovement(ctx, productID, warehouseID)
	if err != nil {
		return decimal.Zero, err
	}
	return inventory.StockLevel(totals), nil
}

// RecordMovement appends a MANUAL ledger entry
func (s *StockService) RecordMovement(ctx context.Context, req MovementRequest) (*inventory.StockLedgerEntry, error) {
	entry, err := inventory.NewStockLedgerEntry(req.WarehouseID, req.ProductID, req.MovementType, req.Quantity, inventory.ReferenceManual, nil)
	if err != nil {
		return nil, err
	}
	entry.Note = req.Note
	if _, err := s.ledger.InsertStockLedgerEntries(ctx, []inventory.StockLedgerEntry{*entry}); err != nil {
		return nil, err
	}
	s.logger.Info("Stock movement recorded",
		zap.String("product_id", req.ProductID.String()),
		zap.String("warehouse_id", req.WarehouseID.String()),
		zap.String("movement", req.MovementType.String()),
		zap.String("quantity", req.Quantity.String()),
	)
	return entry, nil
}
