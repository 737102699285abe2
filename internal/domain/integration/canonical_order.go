package integration

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Platform identifies a marketplace
// ---------------------------------------------------------------------------

// Platform identifies a marketplace
type Platform string

const (
	// PlatformShopee represents Shopee Open Platform v2
	PlatformShopee Platform = "SHOPEE"
	// PlatformLazada represents Lazada Open Platform
	PlatformLazada Platform = "LAZADA"
	// PlatformTikTok represents TikTok Shop Partner API
	PlatformTikTok Platform = "TIKTOK"
	// PlatformLnwShop represents LnwShop key-based REST API
	PlatformLnwShop Platform = "LNWSHOP"
)

// IsValid returns true if the platform is one of the known marketplaces
func (p Platform) IsValid() bool {
	switch p {
	case PlatformShopee, PlatformLazada, PlatformTikTok, PlatformLnwShop:
		return true
	default:
		return false
	}
}

// String returns the string representation of Platform
func (p Platform) String() string {
	return string(p)
}

// DisplayName returns a human-readable name for the platform
func (p Platform) DisplayName() string {
	switch p {
	case PlatformShopee:
		return "Shopee"
	case PlatformLazada:
		return "Lazada"
	case PlatformTikTok:
		return "TikTok Shop"
	case PlatformLnwShop:
		return "LnwShop"
	default:
		return string(p)
	}
}

// ---------------------------------------------------------------------------
// CanonicalStatus is the platform-agnostic order status
// ---------------------------------------------------------------------------

// CanonicalStatus is the platform-agnostic order status every adapter maps into
type CanonicalStatus string

const (
	// StatusNew is the fallback for unmapped platform statuses
	StatusNew CanonicalStatus = "NEW"
	// StatusPendingPayment indicates the buyer has not paid yet
	StatusPendingPayment CanonicalStatus = "PENDING_PAYMENT"
	// StatusPaid indicates payment received, not yet arranged for shipment
	StatusPaid CanonicalStatus = "PAID"
	// StatusReadyToShip indicates shipment is arranged and stock must leave the warehouse
	StatusReadyToShip CanonicalStatus = "READY_TO_SHIP"
	// StatusShipped indicates the parcel is with the carrier
	StatusShipped CanonicalStatus = "SHIPPED"
	// StatusDelivered indicates the parcel reached the buyer
	StatusDelivered CanonicalStatus = "DELIVERED"
	// StatusCompleted indicates the order is closed successfully
	StatusCompleted CanonicalStatus = "COMPLETED"
	// StatusCancelled indicates the order was cancelled
	StatusCancelled CanonicalStatus = "CANCELLED"
	// StatusReturned indicates the order was returned or failed delivery
	StatusReturned CanonicalStatus = "RETURNED"
)

// AllCanonicalStatuses returns every canonical status
func AllCanonicalStatuses() []CanonicalStatus {
	return []CanonicalStatus{
		StatusNew, StatusPendingPayment, StatusPaid, StatusReadyToShip, StatusShipped,
		StatusDelivered, StatusCompleted, StatusCancelled, StatusReturned,
	}
}

// IsValid returns true if the status is part of the canonical set
func (s CanonicalStatus) IsValid() bool {
	switch s {
	case StatusNew, StatusPendingPayment, StatusPaid, StatusReadyToShip, StatusShipped,
		StatusDelivered, StatusCompleted, StatusCancelled, StatusReturned:
		return true
	default:
		return false
	}
}

// String returns the string representation of CanonicalStatus
func (s CanonicalStatus) String() string {
	return string(s)
}

// IsFinal returns true if the status is terminal
func (s CanonicalStatus) IsFinal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusReturned:
		return true
	default:
		return false
	}
}

// ConsumesStock returns true once the order is packed for shipment or beyond.
// An order first seen in any of these statuses still owes its deduction.
func (s CanonicalStatus) ConsumesStock() bool {
	switch s {
	case StatusReadyToShip, StatusShipped, StatusDelivered, StatusCompleted:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// CanonicalOrder
// ---------------------------------------------------------------------------

// CanonicalOrder is the platform-agnostic representation of a marketplace order.
// (Platform, PlatformOrderID) is the natural key; at most one row exists per pair.
type CanonicalOrder struct {
	ID              uuid.UUID
	Platform        Platform
	PlatformOrderID string
	ShopID          string
	ConfigID        *uuid.UUID

	Status    CanonicalStatus
	RawStatus string

	CustomerName  string
	CustomerPhone string
	CustomerEmail string

	ShippingName     string
	ShippingPhone    string
	ShippingAddress  string
	ShippingCity     string
	ShippingProvince string
	ShippingPostcode string
	ShippingCountry  string

	Currency    string
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal

	TrackingNumber  string
	ShippingCarrier string

	OrderCreatedAt *time.Time
	OrderUpdatedAt *time.Time
	PaidAt         *time.Time
	ShippedAt      *time.Time

	// WarehouseID overrides the default warehouse for stock deduction
	WarehouseID *uuid.UUID

	Items []CanonicalOrderItem

	// RawPayload is the platform payload the order was normalized from
	RawPayload json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanonicalOrderItem is a single line of a canonical order
type CanonicalOrderItem struct {
	ID             uuid.UUID
	PlatformItemID string
	SKU            string
	Name           string
	Quantity       int
	UnitPrice      decimal.Decimal
	LineTotal      decimal.Decimal
	Variation      string
	ImageURL       string
}

// NaturalKey returns the "PLATFORM:platform_order_id" key of the order
func (o *CanonicalOrder) NaturalKey() string {
	return string(o.Platform) + ":" + o.PlatformOrderID
}

// Validate checks the fields required to persist the order
func (o *CanonicalOrder) Validate() error {
	if !o.Platform.IsValid() {
		return ErrPlatformNotSupported
	}
	if o.PlatformOrderID == "" {
		return ErrOrderMissingID
	}
	if !o.Status.IsValid() {
		return ErrOrderInvalidStatus
	}
	for _, item := range o.Items {
		if item.Quantity < 0 {
			return ErrOrderInvalidQuantity
		}
	}
	return nil
}

// EnsureID assigns a local ID if the order does not have one yet
func (o *CanonicalOrder) EnsureID() {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	for i := range o.Items {
		if o.Items[i].ID == uuid.Nil {
			o.Items[i].ID = uuid.New()
		}
	}
}

// ItemCount returns the total quantity across all lines
func (o *CanonicalOrder) ItemCount() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}
