package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ordersync/backend/internal/domain/inventory"
)

// ProductModel is the persistence model for inventory.Product
type ProductModel struct {
	BaseModel
	SKU      string                `gorm:"column:sku;type:varchar(100);not null;uniqueIndex"`
	Name     string                `gorm:"type:varchar(255)"`
	Type     inventory.ProductType `gorm:"type:varchar(20);not null"`
	IsActive bool                  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product
func (m *ProductModel) ToDomain() *inventory.Product {
	return &inventory.Product{
		BaseEntity: m.Entity(),
		SKU:        m.SKU,
		Name:       m.Name,
		Type:       m.Type,
		IsActive:   m.IsActive,
	}
}

// FromDomain populates the persistence model from a domain Product
func (m *ProductModel) FromDomain(p *inventory.Product) {
	m.setEntity(p.BaseEntity)
	m.SKU = p.SKU
	m.Name = p.Name
	m.Type = p.Type
	m.IsActive = p.IsActive
}

// ProductBomModel is the persistence model for one BOM edge.
// (set_product_id, component_product_id) is unique.
type ProductBomModel struct {
	BaseModel
	SetProductID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_product_bom_edge,priority:1"`
	ComponentProductID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_product_bom_edge,priority:2;index"`
	Quantity           decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (ProductBomModel) TableName() string {
	return "product_bom"
}

// ToDomain converts the persistence model to a domain ProductBom
func (m *ProductBomModel) ToDomain() *inventory.ProductBom {
	return &inventory.ProductBom{
		BaseEntity:         m.Entity(),
		SetProductID:       m.SetProductID,
		ComponentProductID: m.ComponentProductID,
		Quantity:           m.Quantity,
	}
}

// FromDomain populates the persistence model from a domain ProductBom
func (m *ProductBomModel) FromDomain(b *inventory.ProductBom) {
	m.setEntity(b.BaseEntity)
	m.SetProductID = b.SetProductID
	m.ComponentProductID = b.ComponentProductID
	m.Quantity = b.Quantity
}

// PlatformListingModel is the persistence model for inventory.PlatformListing.
// (platform, platform_sku) is unique.
type PlatformListingModel struct {
	BaseModel
	Platform    string                     `gorm:"type:varchar(20);not null;uniqueIndex:idx_platform_listing_sku,priority:1"`
	PlatformSKU string                     `gorm:"column:platform_sku;type:varchar(100);not null;uniqueIndex:idx_platform_listing_sku,priority:2"`
	Name        string                     `gorm:"type:varchar(255)"`
	Items       []PlatformListingItemModel `gorm:"foreignKey:ListingID;references:ID"`
}

// TableName returns the table name for GORM
func (PlatformListingModel) TableName() string {
	return "platform_listings"
}

// ToDomain converts the persistence model to a domain PlatformListing
func (m *PlatformListingModel) ToDomain() *inventory.PlatformListing {
	listing := &inventory.PlatformListing{
		BaseEntity:  m.Entity(),
		Platform:    m.Platform,
		PlatformSKU: m.PlatformSKU,
		Name:        m.Name,
		Items:       make([]inventory.ListingItem, len(m.Items)),
	}
	for i, item := range m.Items {
		listing.Items[i] = inventory.ListingItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return listing
}

// FromDomain populates the persistence model from a domain PlatformListing
func (m *PlatformListingModel) FromDomain(l *inventory.PlatformListing) {
	m.setEntity(l.BaseEntity)
	m.Platform = l.Platform
	m.PlatformSKU = l.PlatformSKU
	m.Name = l.Name
	m.Items = make([]PlatformListingItemModel, len(l.Items))
	for i, item := range l.Items {
		m.Items[i] = PlatformListingItemModel{
			ListingID: l.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
	}
}

// PlatformListingItemModel is one product shipped by a listing
type PlatformListingItemModel struct {
	ListingID uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ProductID uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Quantity  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (PlatformListingItemModel) TableName() string {
	return "platform_listing_items"
}

// WarehouseModel is the persistence model for inventory.Warehouse
type WarehouseModel struct {
	BaseModel
	Code      string `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name      string `gorm:"type:varchar(100)"`
	IsDefault bool   `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (WarehouseModel) TableName() string {
	return "warehouses"
}

// ToDomain converts the persistence model to a domain Warehouse
func (m *WarehouseModel) ToDomain() *inventory.Warehouse {
	return &inventory.Warehouse{
		BaseEntity: m.Entity(),
		Code:       m.Code,
		Name:       m.Name,
		IsDefault:  m.IsDefault,
	}
}

// FromDomain populates the persistence model from a domain Warehouse
func (m *WarehouseModel) FromDomain(w *inventory.Warehouse) {
	m.setEntity(w.BaseEntity)
	m.Code = w.Code
	m.Name = w.Name
	m.IsDefault = w.IsDefault
}

// StockLedgerModel is the persistence model for an immutable ledger entry.
// The unique key makes re-deduction of the same order a no-op.
type StockLedgerModel struct {
	BaseModel
	WarehouseID   uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex:idx_stock_ledger_ref,priority:5;index:idx_stock_ledger_level,priority:2"`
	ProductID     uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex:idx_stock_ledger_ref,priority:4;index:idx_stock_ledger_level,priority:1"`
	MovementType  inventory.MovementType  `gorm:"type:varchar(20);not null;uniqueIndex:idx_stock_ledger_ref,priority:3"`
	Quantity      decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	ReferenceType inventory.ReferenceType `gorm:"type:varchar(20);not null;uniqueIndex:idx_stock_ledger_ref,priority:1"`
	ReferenceID   *uuid.UUID              `gorm:"type:uuid;uniqueIndex:idx_stock_ledger_ref,priority:2"`
	Note          string                  `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (StockLedgerModel) TableName() string {
	return "stock_ledger"
}

// ToDomain converts the persistence model to a domain StockLedgerEntry
func (m *StockLedgerModel) ToDomain() *inventory.StockLedgerEntry {
	return &inventory.StockLedgerEntry{
		BaseEntity:    m.Entity(),
		WarehouseID:   m.WarehouseID,
		ProductID:     m.ProductID,
		MovementType:  m.MovementType,
		Quantity:      m.Quantity,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		Note:          m.Note,
	}
}

// FromDomain populates the persistence model from a domain StockLedgerEntry
func (m *StockLedgerModel) FromDomain(e *inventory.StockLedgerEntry) {
	m.setEntity(e.BaseEntity)
	m.WarehouseID = e.WarehouseID
	m.ProductID = e.ProductID
	m.MovementType = e.MovementType
	m.Quantity = e.Quantity
	m.ReferenceType = e.ReferenceType
	m.ReferenceID = e.ReferenceID
	m.Note = e.Note
}

// StockLedgerModelFromDomain creates a new persistence model from a domain entry
func StockLedgerModelFromDomain(e *inventory.StockLedgerEntry) *StockLedgerModel {
	m := &StockLedgerModel{}
	m.FromDomain(e)
	return m
}
