package inventory

import (
	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// MovementType is the kind of stock movement recorded in the ledger
type MovementType string

const (
	// MovementIn is stock received
	MovementIn MovementType = "IN"
	// MovementOut is stock shipped
	MovementOut MovementType = "OUT"
	// MovementReserve holds stock for a pending order
	MovementReserve MovementType = "RESERVE"
	// MovementRelease returns reserved stock
	MovementRelease MovementType = "RELEASE"
	// MovementAdjust is a signed correction
	MovementAdjust MovementType = "ADJUST"
	// MovementReturnDamaged records a return that is not sellable
	MovementReturnDamaged MovementType = "RETURN_DAMAGED"
)

// IsValid returns true if the movement type is valid
func (m MovementType) IsValid() bool {
	switch m {
	case MovementIn, MovementOut, MovementReserve, MovementRelease, MovementAdjust, MovementReturnDamaged:
		return true
	}
	return false
}

// String returns the string representation of MovementType
func (m MovementType) String() string {
	return string(m)
}

// SellableDelta returns the effect of qty of this movement on sellable stock
func (m MovementType) SellableDelta(qty decimal.Decimal) decimal.Decimal {
	switch m {
	case MovementIn, MovementRelease:
		return qty
	case MovementOut, MovementReserve:
		return qty.Neg()
	case MovementAdjust:
		return qty
	default:
		// RETURN_DAMAGED is kept for audit only
		return decimal.Zero
	}
}

// ReferenceType is the kind of document a ledger entry belongs to
type ReferenceType string

const (
	ReferenceOrder    ReferenceType = "ORDER"
	ReferencePurchase ReferenceType = "PURCHASE"
	ReferenceManual   ReferenceType = "MANUAL"
	ReferenceReturn   ReferenceType = "RETURN"
)

// IsValid returns true if the reference type is valid
func (r ReferenceType) IsValid() bool {
	switch r {
	case ReferenceOrder, ReferencePurchase, ReferenceManual, ReferenceReturn:
		return true
	}
	return false
}

// StockLedgerEntry is an immutable stock movement. Stock levels are sums over
// the ledger; entries are never updated.
type StockLedgerEntry struct {
	shared.BaseEntity
	WarehouseID   uuid.UUID
	ProductID     uuid.UUID
	MovementType  MovementType
	Quantity      decimal.Decimal
	ReferenceType ReferenceType
	ReferenceID   *uuid.UUID
	Note          string
}

// NewStockLedgerEntry creates a ledger entry. Quantity must be positive for all
// movement types except ADJUST, which is signed.
func NewStockLedgerEntry(warehouseID, productID uuid.UUID, movement MovementType, qty decimal.Decimal, refType ReferenceType, refID *uuid.UUID) (*StockLedgerEntry, error) {
	if warehouseID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_WAREHOUSE", "Warehouse ID cannot be empty")
	}
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if !movement.IsValid() {
		return nil, shared.NewDomainError("INVALID_MOVEMENT", "Unknown movement type")
	}
	if !refType.IsValid() {
		return nil, shared.NewDomainError("INVALID_REFERENCE", "Unknown reference type")
	}
	if movement == MovementAdjust {
		if qty.IsZero() {
			return nil, shared.NewDomainError("INVALID_QUANTITY", "Adjustment cannot be zero")
		}
	} else if !qty.IsPositive() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	return &StockLedgerEntry{
		BaseEntity:    shared.NewBaseEntity(),
		WarehouseID:   warehouseID,
		ProductID:     productID,
		MovementType:  movement,
		Quantity:      qty,
		ReferenceType: refType,
		ReferenceID:   refID,
	}, nil
}

// StockLevel sums ledger totals grouped by movement type into sellable stock
func StockLevel(totals map[MovementType]decimal.Decimal) decimal.Decimal {
	level := decimal.Zero
	for movement, qty := range totals {
		level = level.Add(movement.SellableDelta(qty))
	}
	return level
}
