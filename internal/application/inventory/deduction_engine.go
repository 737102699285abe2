package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/domain/inventory"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// ErrOrderNotPersisted is returned when an order without a local ID is deducted
var ErrOrderNotPersisted = errors.New("inventory: order has no local id")

// InventoryDeductionEngine writes the OUT ledger entries of a shipped order.
// Marketplace SKUs resolve through platform listings or product SKUs, sets
// explode through their BOM, and the result is written once per order.
type InventoryDeductionEngine struct {
	products   inventory.ProductRepository
	listings   inventory.PlatformListingRepository
	warehouses inventory.WarehouseRepository
	ledger     inventory.StockLedgerRepository
	resolver   *inventory.BomResolver
	logger     *zap.Logger
}

// NewInventoryDeductionEngine creates a new InventoryDeductionEngine
func NewInventoryDeductionEngine(
	products inventory.ProductRepository,
	listings inventory.PlatformListingRepository,
	warehouses inventory.WarehouseRepository,
	ledger inventory.StockLedgerRepository,
	resolver *inventory.BomResolver,
	logger *zap.Logger,
) *InventoryDeductionEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryDeductionEngine{
		products:   products,
		listings:   listings,
		warehouses: warehouses,
		ledger:     ledger,
		resolver:   resolver,
		logger:     logger,
	}
}

// Deduct consumes the stock of order. It returns true when the order is
// deducted after the call, including when an earlier call or a concurrent
// writer already did it. Nothing is written when any SKU cannot be resolved
// or no warehouse is known.
func (e *InventoryDeductionEngine) Deduct(ctx context.Context, order *integration.CanonicalOrder) (bool, error) {
	if order == nil || order.ID == uuid.Nil {
		return false, ErrOrderNotPersisted
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "inventory_deduction", "deduct")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderID, order.ID.String(),
		telemetry.SpanAttrPlatform, order.Platform.String(),
	)

	existing, err := e.ledger.FindStockLedgerByOrderAndType(ctx, inventory.ReferenceOrder, order.ID, inventory.MovementOut)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, fmt.Errorf("check existing deduction: %w", err)
	}
	if len(existing) > 0 {
		return true, nil
	}

	components, err := e.explode(ctx, order)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}
	if len(components) == 0 {
		return false, nil
	}

	warehouseID, err := e.warehouseFor(ctx, order)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrWarehouseID, warehouseID.String())

	orderID := order.ID
	entries := make([]inventory.StockLedgerEntry, 0, len(components))
	for _, c := range components {
		entry, err := inventory.NewStockLedgerEntry(warehouseID, c.ProductID, inventory.MovementOut, c.Quantity, inventory.ReferenceOrder, &orderID)
		if err != nil {
			return false, err
		}
		entry.Note = order.NaturalKey()
		entries = append(entries, *entry)
	}

	inserted, err := e.ledger.InsertStockLedgerEntries(ctx, entries)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, fmt.Errorf("insert ledger entries: %w", err)
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrLedgerRows, inserted)

	if inserted == 0 {
		e.logger.Info("Order already deducted by another writer",
			zap.String("order_id", order.ID.String()),
			zap.String("platform_order_id", order.PlatformOrderID),
		)
		return true, nil
	}
	e.logger.Info("Order stock deducted",
		zap.String("order_id", order.ID.String()),
		zap.String("platform_order_id", order.PlatformOrderID),
		zap.String("warehouse_id", warehouseID.String()),
		zap.Int64("ledger_rows", inserted),
	)
	return true, nil
}

// explode resolves every order line to atomic components, consolidated by product
func (e *InventoryDeductionEngine) explode(ctx context.Context, order *integration.CanonicalOrder) ([]inventory.Component, error) {
	var all []inventory.Component
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			continue
		}
		qty := decimal.NewFromInt(int64(item.Quantity))

		roots, err := e.resolveSKU(ctx, order.Platform, item.SKU, qty)
		if err != nil {
			return nil, err
		}
		for _, root := range roots {
			components, err := e.resolver.ResolveComponents(ctx, root.ProductID, root.Quantity)
			if err != nil {
				return nil, fmt.Errorf("sku %s: %w", item.SKU, err)
			}
			all = append(all, components...)
		}
	}
	return inventory.Consolidate(all), nil
}

// resolveSKU maps a marketplace SKU to products: the platform listing first,
// then a product with the same SKU
func (e *InventoryDeductionEngine) resolveSKU(ctx context.Context, platform integration.Platform, sku string, qty decimal.Decimal) ([]inventory.Component, error) {
	if sku == "" {
		return nil, fmt.Errorf("%w: line without sku", inventory.ErrSkuNotResolved)
	}

	listing, err := e.listings.FindPlatformListing(ctx, platform.String(), sku)
	switch {
	case err == nil:
		roots := make([]inventory.Component, 0, len(listing.Items))
		for _, li := range listing.Items {
			roots = append(roots, inventory.Component{ProductID: li.ProductID, Quantity: qty.Mul(li.Quantity)})
		}
		return roots, nil
	case !errors.Is(err, inventory.ErrListingNotFound):
		return nil, err
	}

	product, err := e.products.FindProductBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, inventory.ErrProductNotFound) {
			return nil, fmt.Errorf("%w: %s %s", inventory.ErrSkuNotResolved, platform, sku)
		}
		return nil, err
	}
	return []inventory.Component{{ProductID: product.ID, Quantity: qty}}, nil
}

func (e *InventoryDeductionEngine) warehouseFor(ctx context.Context, order *integration.CanonicalOrder) (uuid.UUID, error) {
	if order.WarehouseID != nil && *order.WarehouseID != uuid.Nil {
		return *order.WarehouseID, nil
	}
	wh, err := e.warehouses.FindDefaultWarehouse(ctx)
	if err != nil {
		if errors.Is(err, inventory.ErrWarehouseNotFound) {
			return uuid.Nil, inventory.ErrNoWarehouse
		}
		return uuid.Nil, err
	}
	return wh.ID, nil
}
