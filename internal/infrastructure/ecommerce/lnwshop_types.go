package ecommerce

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// LnwShopErrorResponse is returned by LnwShop on failed requests
type LnwShopErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// LnwShopOrderListResponse is the response for GET /api/v1/orders
type LnwShopOrderListResponse struct {
	Data   []LnwShopOrder `json:"data"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
	Total  int64          `json:"total"`
}

// LnwShopOrderResponse is the response for GET /api/v1/orders/{id}
type LnwShopOrderResponse struct {
	Data *LnwShopOrder `json:"data"`
}

// LnwShopOrder represents an order from LnwShop
type LnwShopOrder struct {
	ID             json.Number      `json:"id"`
	OrderNumber    string           `json:"order_number"`
	Status         string           `json:"status"`
	Currency       string           `json:"currency"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	ShippingFee    decimal.Decimal  `json:"shipping_fee"`
	Discount       decimal.Decimal  `json:"discount"`
	Total          decimal.Decimal  `json:"total"`
	TrackingNumber string           `json:"tracking_number"`
	ShippingMethod string           `json:"shipping_method"`
	CreatedAt      string           `json:"created_at"`
	UpdatedAt      string           `json:"updated_at"`
	PaidAt         string           `json:"paid_at"`
	ShippedAt      string           `json:"shipped_at"`
	Customer       *LnwShopCustomer `json:"customer,omitempty"`
	Shipping       *LnwShopAddress  `json:"shipping_address,omitempty"`
	Items          []LnwShopItem    `json:"items,omitempty"`
}

// LnwShopCustomer is the buyer block
type LnwShopCustomer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// LnwShopAddress is the shipping address block
type LnwShopAddress struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Subdistrict string `json:"subdistrict"`
	District    string `json:"district"`
	Province    string `json:"province"`
	Postcode    string `json:"postcode"`
	Country     string `json:"country"`
}

// LnwShopItem is one order line
type LnwShopItem struct {
	ID        json.Number     `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Option    string          `json:"option"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
	ImageURL  string          `json:"image_url"`
	ProductID json.Number     `json:"product_id"`
}

// LnwShopPush is an order webhook
type LnwShopPush struct {
	Event   string `json:"event"`
	ShopID  string `json:"shop_id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}
