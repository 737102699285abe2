package ecommerce

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// LazadaResponse is the base response wrapper for Lazada Open Platform calls
type LazadaResponse struct {
	// Code is "0" on success
	Code      string `json:"code"`
	Type      string `json:"type,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// IsSuccess returns true if the response indicates success
func (r *LazadaResponse) IsSuccess() bool {
	return r.Code == "" || r.Code == "0"
}

// IsAuthFailure returns true if the error code means the token was rejected
func (r *LazadaResponse) IsAuthFailure() bool {
	switch r.Code {
	case "IllegalAccessToken", "AccessTokenExpired", "InvalidAccessToken":
		return true
	}
	return false
}

// LazadaTokenResponse is the response of /auth/token/create and /auth/token/refresh
type LazadaTokenResponse struct {
	LazadaResponse
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	Account          string `json:"account,omitempty"`
}

// LazadaOrderListResponse is the response for /orders/get
type LazadaOrderListResponse struct {
	LazadaResponse
	Data *LazadaOrderListData `json:"data,omitempty"`
}

// LazadaOrderListData is one offset page
type LazadaOrderListData struct {
	Count      int           `json:"count"`
	CountTotal int64         `json:"countTotal"`
	Orders     []LazadaOrder `json:"orders"`
}

// LazadaOrderResponse is the response for /order/get
type LazadaOrderResponse struct {
	LazadaResponse
	Data *LazadaOrder `json:"data,omitempty"`
}

// LazadaOrderItemsResponse is the response for /order/items/get
type LazadaOrderItemsResponse struct {
	LazadaResponse
	Data []LazadaOrderItem `json:"data,omitempty"`
}

// LazadaOrder represents an order header from Lazada
type LazadaOrder struct {
	OrderID           json.Number     `json:"order_id"`
	OrderNumber       json.Number     `json:"order_number"`
	Statuses          []string        `json:"statuses"`
	Price             decimal.Decimal `json:"price"`
	ShippingFee       decimal.Decimal `json:"shipping_fee"`
	Voucher           decimal.Decimal `json:"voucher"`
	VoucherSeller     decimal.Decimal `json:"voucher_seller"`
	CustomerFirstName string          `json:"customer_first_name"`
	CustomerLastName  string          `json:"customer_last_name"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
	AddressShipping   *LazadaAddress  `json:"address_shipping,omitempty"`
}

// LazadaAddress is a Lazada address block
type LazadaAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2"`
	Address4  string `json:"address4"`
	Address5  string `json:"address5"`
	City      string `json:"city"`
	Address3  string `json:"address3"`
	PostCode  string `json:"post_code"`
	Country   string `json:"country"`
}

// LazadaOrderItem is one unit of an order; Lazada returns a row per unit sold
type LazadaOrderItem struct {
	OrderItemID      json.Number     `json:"order_item_id"`
	SKU              string          `json:"sku"`
	ShopSKU          string          `json:"shop_sku"`
	Name             string          `json:"name"`
	Variation        string          `json:"variation"`
	ItemPrice        decimal.Decimal `json:"item_price"`
	PaidPrice        decimal.Decimal `json:"paid_price"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	TrackingCode     string          `json:"tracking_code"`
	ShipmentProvider string          `json:"shipment_provider"`
	ProductMainImage string          `json:"product_main_image"`
	UpdatedAt        string          `json:"updated_at"`
}

// lazadaPayload is the RawOrder payload: the header plus items once fetched
type lazadaPayload struct {
	Order LazadaOrder       `json:"order"`
	Items []LazadaOrderItem `json:"items,omitempty"`
}

// LazadaPush is a trade order push message
type LazadaPush struct {
	SellerID    string `json:"seller_id"`
	MessageType int    `json:"message_type"`
	Timestamp   int64  `json:"timestamp"`
	Site        string `json:"site"`
	Data        struct {
		TradeOrderID     string `json:"trade_order_id"`
		OrderStatus      string `json:"order_status"`
		StatusUpdateTime int64  `json:"status_update_time"`
	} `json:"data"`
}
