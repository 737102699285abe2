package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/inventory"
	"github.com/ordersync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProductRepository implements inventory.ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindByID finds a product by its ID
func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrProductNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindProductBySKU finds an active product by SKU
func (r *GormProductRepository) FindProductBySKU(ctx context.Context, sku string) (*inventory.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("sku = ? AND is_active = ?", strings.TrimSpace(sku), true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrProductNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a product
func (r *GormProductRepository) Save(ctx context.Context, product *inventory.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	now := time.Now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	model := &models.ProductModel{}
	model.FromDomain(product)
	return r.db.WithContext(ctx).Save(model).Error
}

// GormProductBomRepository implements inventory.ProductBomRepository using GORM
type GormProductBomRepository struct {
	db *gorm.DB
}

// NewGormProductBomRepository creates a new GormProductBomRepository
func NewGormProductBomRepository(db *gorm.DB) *GormProductBomRepository {
	return &GormProductBomRepository{db: db}
}

// FindProductBom returns the direct components of a set, in insertion order
func (r *GormProductBomRepository) FindProductBom(ctx context.Context, setProductID uuid.UUID) ([]inventory.ProductBom, error) {
	var bomModels []models.ProductBomModel
	if err := r.db.WithContext(ctx).
		Where("set_product_id = ?", setProductID).
		Order("created_at ASC, component_product_id ASC").
		Find(&bomModels).Error; err != nil {
		return nil, err
	}

	edges := make([]inventory.ProductBom, len(bomModels))
	for i := range bomModels {
		edges[i] = *bomModels[i].ToDomain()
	}
	return edges, nil
}

// AddComponent creates the edge or replaces its quantity
func (r *GormProductBomRepository) AddComponent(ctx context.Context, bom *inventory.ProductBom) error {
	model := &models.ProductBomModel{}
	model.FromDomain(bom)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "set_product_id"}, {Name: "component_product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
		}).
		Create(model).Error
}

// RemoveComponent deletes the edge
func (r *GormProductBomRepository) RemoveComponent(ctx context.Context, setID, componentID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("set_product_id = ? AND component_product_id = ?", setID, componentID).
		Delete(&models.ProductBomModel{}).Error
}

// GormPlatformListingRepository implements inventory.PlatformListingRepository using GORM
type GormPlatformListingRepository struct {
	db *gorm.DB
}

// NewGormPlatformListingRepository creates a new GormPlatformListingRepository
func NewGormPlatformListingRepository(db *gorm.DB) *GormPlatformListingRepository {
	return &GormPlatformListingRepository{db: db}
}

// FindPlatformListing finds the listing of a marketplace SKU with its items
func (r *GormPlatformListingRepository) FindPlatformListing(ctx context.Context, platform, sku string) (*inventory.PlatformListing, error) {
	var model models.PlatformListingModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("platform = ? AND platform_sku = ?", platform, strings.TrimSpace(sku)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrListingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a listing and replaces its items
func (r *GormPlatformListingRepository) Save(ctx context.Context, listing *inventory.PlatformListing) error {
	if listing.ID == uuid.Nil {
		listing.ID = uuid.New()
	}
	now := time.Now()
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = now
	}
	listing.UpdatedAt = now

	model := &models.PlatformListingModel{}
	model.FromDomain(listing)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Save(model).Error; err != nil {
			return err
		}
		if err := tx.Where("listing_id = ?", listing.ID).Delete(&models.PlatformListingItemModel{}).Error; err != nil {
			return err
		}
		if len(model.Items) == 0 {
			return nil
		}
		return tx.Create(&model.Items).Error
	})
}

// Ensure the repositories implement their interfaces
var (
	_ inventory.ProductRepository         = (*GormProductRepository)(nil)
	_ inventory.ProductBomRepository      = (*GormProductBomRepository)(nil)
	_ inventory.PlatformListingRepository = (*GormPlatformListingRepository)(nil)
)
