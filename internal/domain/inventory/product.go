package inventory

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Inventory errors
var (
	ErrProductNotFound   = errors.New("inventory: product not found")
	ErrListingNotFound   = errors.New("inventory: platform listing not found")
	ErrWarehouseNotFound = errors.New("inventory: warehouse not found")
	ErrNoWarehouse       = errors.New("inventory: no warehouse for deduction")
	ErrSkuNotResolved    = errors.New("inventory: sku not resolved to a product")
	ErrBomCycle          = errors.New("inventory: bom cycle detected")
	ErrBomDepthExceeded  = errors.New("inventory: bom depth exceeded")
	ErrBomSelfReference  = errors.New("inventory: product cannot be its own component")
)

// DefaultMaxBomDepth bounds BOM expansion
const DefaultMaxBomDepth = 10

// ProductType distinguishes stocked products from sets assembled from components
type ProductType string

const (
	// ProductTypeAtomic is a stocked product with no components
	ProductTypeAtomic ProductType = "ATOMIC"
	// ProductTypeSet is a bundle resolved through its BOM
	ProductTypeSet ProductType = "SET"
)

// IsValid returns true if the product type is valid
func (t ProductType) IsValid() bool {
	return t == ProductTypeAtomic || t == ProductTypeSet
}

// Product is a sellable item identified by SKU
type Product struct {
	shared.BaseEntity
	SKU      string
	Name     string
	Type     ProductType
	IsActive bool
}

// NewProduct creates an active atomic product
func NewProduct(sku, name string) (*Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, shared.NewDomainError("INVALID_SKU", "Product SKU cannot be empty")
	}
	return &Product{
		BaseEntity: shared.NewBaseEntity(),
		SKU:        sku,
		Name:       name,
		Type:       ProductTypeAtomic,
		IsActive:   true,
	}, nil
}

// MarkAsSet flags the product as a bundle
func (p *Product) MarkAsSet() {
	p.Type = ProductTypeSet
	p.UpdatedAt = time.Now()
}

// IsSet returns true if the product is a bundle
func (p *Product) IsSet() bool {
	return p.Type == ProductTypeSet
}

// ---------------------------------------------------------------------------
// ProductBom
// ---------------------------------------------------------------------------

// ProductBom is one edge of a bill of materials: the set consumes Quantity
// units of the component per unit sold
type ProductBom struct {
	shared.BaseEntity
	SetProductID       uuid.UUID
	ComponentProductID uuid.UUID
	Quantity           decimal.Decimal
}

// NewProductBom creates a BOM edge
func NewProductBom(setID, componentID uuid.UUID, qty decimal.Decimal) (*ProductBom, error) {
	if setID == uuid.Nil || componentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Set and component product IDs are required")
	}
	if setID == componentID {
		return nil, ErrBomSelfReference
	}
	if !qty.IsPositive() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Component quantity must be positive")
	}
	return &ProductBom{
		BaseEntity:         shared.NewBaseEntity(),
		SetProductID:       setID,
		ComponentProductID: componentID,
		Quantity:           qty,
	}, nil
}

// ---------------------------------------------------------------------------
// PlatformListing
// ---------------------------------------------------------------------------

// ListingItem is one product a listing ships per unit sold
type ListingItem struct {
	ProductID uuid.UUID
	Quantity  decimal.Decimal
}

// PlatformListing maps a marketplace SKU to the products it ships
type PlatformListing struct {
	shared.BaseEntity
	Platform    string
	PlatformSKU string
	Name        string
	Items       []ListingItem
}

// NewPlatformListing creates a listing
func NewPlatformListing(platform, sku string, items []ListingItem) (*PlatformListing, error) {
	if platform == "" || strings.TrimSpace(sku) == "" {
		return nil, shared.NewDomainError("INVALID_LISTING", "Platform and SKU are required")
	}
	if len(items) == 0 {
		return nil, shared.NewDomainError("INVALID_LISTING", "Listing must ship at least one product")
	}
	for _, item := range items {
		if !item.Quantity.IsPositive() {
			return nil, shared.NewDomainError("INVALID_QUANTITY", "Listing item quantity must be positive")
		}
	}
	return &PlatformListing{
		BaseEntity:  shared.NewBaseEntity(),
		Platform:    platform,
		PlatformSKU: strings.TrimSpace(sku),
		Items:       items,
	}, nil
}

// ---------------------------------------------------------------------------
// Warehouse
// ---------------------------------------------------------------------------

// Warehouse is a stock location
type Warehouse struct {
	shared.BaseEntity
	Code      string
	Name      string
	IsDefault bool
}
