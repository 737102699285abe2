package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/inventory"
)

// BomService edits bills of materials. Cycles are rejected when an edge is
// written, so the resolver's cycle guard only fires on data written elsewhere.
type BomService struct {
	products inventory.ProductRepository
	boms     inventory.ProductBomRepository
	resolver *inventory.BomResolver
	logger   *zap.Logger
}

// NewBomService creates a new BomService
func NewBomService(products inventory.ProductRepository, boms inventory.ProductBomRepository, resolver *inventory.BomResolver, logger *zap.Logger) *BomService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BomService{products: products, boms: boms, resolver: resolver, logger: logger}
}

// AddComponent makes qty units of componentID part of setID and flags setID as
// a set. Self edges and edges that would close a cycle are rejected.
func (s *BomService) AddComponent(ctx context.Context, setID, componentID uuid.UUID, qty decimal.Decimal) (*inventory.ProductBom, error) {
	edge, err := inventory.NewProductBom(setID, componentID, qty)
	if err != nil {
		return nil, err
	}

	set, err := s.products.FindByID(ctx, setID)
	if err != nil {
		return nil, fmt.Errorf("set product: %w", err)
	}
	if _, err := s.products.FindByID(ctx, componentID); err != nil {
		return nil, fmt.Errorf("component product: %w", err)
	}

	cycle, err := s.resolver.WouldCreateCycle(ctx, setID, componentID)
	if err != nil {
		return nil, err
	}
	if cycle {
		return nil, fmt.Errorf("%w: %s is reachable from component %s", inventory.ErrBomCycle, set.SKU, componentID)
	}

	if err := s.boms.AddComponent(ctx, edge); err != nil {
		return nil, err
	}
	if !set.IsSet() {
		set.MarkAsSet()
		if err := s.products.Save(ctx, set); err != nil {
			return nil, err
		}
	}

	s.logger.Info("BOM component added",
		zap.String("set_sku", set.SKU),
		zap.String("component_id", componentID.String()),
		zap.String("quantity", qty.String()),
	)
	return edge, nil
}

// RemoveComponent deletes one BOM edge
func (s *BomService) RemoveComponent(ctx context.Context, setID, componentID uuid.UUID) error {
	return s.boms.RemoveComponent(ctx, setID, componentID)
}

// Explode returns the consolidated atomic components of qty units of productID
func (s *BomService) Explode(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) ([]inventory.Component, error) {
	components, err := s.resolver.ResolveComponents(ctx, productID, qty)
	if err != nil {
		return nil, err
	}
	return inventory.Consolidate(components), nil
}
