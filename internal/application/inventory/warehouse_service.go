package inventory

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/inventory"
	"github.com/ordersync/backend/internal/domain/shared"
)

// EnsureDefaultWarehouse makes sure exactly one warehouse is flagged default
// so orders without a warehouse can be deducted. An existing default wins;
// otherwise the warehouse with code is promoted, or created.
func EnsureDefaultWarehouse(ctx context.Context, warehouses inventory.WarehouseRepository, code string, logger *zap.Logger) (*inventory.Warehouse, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	wh, err := warehouses.FindDefaultWarehouse(ctx)
	if err == nil {
		return wh, nil
	}
	if !errors.Is(err, inventory.ErrWarehouseNotFound) {
		return nil, err
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, inventory.ErrNoWarehouse
	}

	wh, err = warehouses.FindByCode(ctx, code)
	switch {
	case err == nil:
		wh.IsDefault = true
		logger.Info("Promoting warehouse to default", zap.String("code", code))
	case errors.Is(err, inventory.ErrWarehouseNotFound):
		wh = &inventory.Warehouse{
			BaseEntity: shared.NewBaseEntity(),
			Code:       code,
			Name:       code,
			IsDefault:  true,
		}
		logger.Info("Creating default warehouse", zap.String("code", code))
	default:
		return nil, err
	}

	if err := warehouses.Save(ctx, wh); err != nil {
		return nil, err
	}
	return wh, nil
}
