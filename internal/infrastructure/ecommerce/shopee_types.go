package ecommerce

import (
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Common Shopee API Response Types
// ---------------------------------------------------------------------------

// ShopeeResponse is the base response wrapper for all Shopee v2 API calls
type ShopeeResponse struct {
	// Error is the error code, empty on success
	Error string `json:"error"`
	// Message is the error description
	Message string `json:"message"`
	// RequestID is the request trace ID for debugging
	RequestID string `json:"request_id,omitempty"`
}

// IsSuccess returns true if the response indicates success
func (r *ShopeeResponse) IsSuccess() bool {
	return r.Error == ""
}

// IsAuthFailure returns true if the error code means the token was rejected
func (r *ShopeeResponse) IsAuthFailure() bool {
	switch r.Error {
	case "error_auth", "invalid_acceess_token", "invalid_access_token", "error_permission":
		return true
	}
	return false
}

// ShopeeTokenResponse is the response of auth/token/get and auth/access_token/get
type ShopeeTokenResponse struct {
	ShopeeResponse
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// ExpireIn is the access token lifetime in seconds
	ExpireIn int64 `json:"expire_in"`
}

// ---------------------------------------------------------------------------
// Order Related Types
// ---------------------------------------------------------------------------

// ShopeeOrderListResponse is the response for order/get_order_list
type ShopeeOrderListResponse struct {
	ShopeeResponse
	Response *ShopeeOrderListData `json:"response,omitempty"`
}

// ShopeeOrderListData contains one cursor page of order numbers
type ShopeeOrderListData struct {
	More       bool                 `json:"more"`
	NextCursor string               `json:"next_cursor"`
	OrderList  []ShopeeOrderSNEntry `json:"order_list"`
}

// ShopeeOrderSNEntry is a list entry; the list endpoint returns identifiers only
type ShopeeOrderSNEntry struct {
	OrderSN     string `json:"order_sn"`
	OrderStatus string `json:"order_status,omitempty"`
}

// ShopeeOrderDetailResponse is the response for order/get_order_detail
type ShopeeOrderDetailResponse struct {
	ShopeeResponse
	Response *ShopeeOrderDetailData `json:"response,omitempty"`
}

// ShopeeOrderDetailData contains full orders
type ShopeeOrderDetailData struct {
	OrderList []ShopeeOrder `json:"order_list"`
}

// ShopeeOrder represents an order from Shopee
type ShopeeOrder struct {
	OrderSN         string `json:"order_sn"`
	OrderStatus     string `json:"order_status"`
	Region          string `json:"region"`
	Currency        string `json:"currency"`
	BuyerUsername   string `json:"buyer_username"`
	CreateTime      int64  `json:"create_time"`
	UpdateTime      int64  `json:"update_time"`
	PayTime         int64  `json:"pay_time"`
	ShipByDate      int64  `json:"ship_by_date"`
	ShippingCarrier string `json:"shipping_carrier"`
	TrackingNumber  string `json:"tracking_number"`

	TotalAmount          decimal.Decimal `json:"total_amount"`
	EstimatedShippingFee decimal.Decimal `json:"estimated_shipping_fee"`
	VoucherFromSeller    decimal.Decimal `json:"voucher_from_seller"`

	RecipientAddress *ShopeeRecipientAddress `json:"recipient_address,omitempty"`
	ItemList         []ShopeeOrderItem       `json:"item_list,omitempty"`
}

// ShopeeRecipientAddress is the shipping address
type ShopeeRecipientAddress struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	FullAddress string `json:"full_address"`
	City        string `json:"city"`
	District    string `json:"district"`
	State       string `json:"state"`
	Zipcode     string `json:"zipcode"`
	Region      string `json:"region"`
}

// ShopeeOrderItem is an order line
type ShopeeOrderItem struct {
	ItemID                 int64           `json:"item_id"`
	ItemName               string          `json:"item_name"`
	ItemSKU                string          `json:"item_sku"`
	ModelID                int64           `json:"model_id"`
	ModelName              string          `json:"model_name"`
	ModelSKU               string          `json:"model_sku"`
	ModelQuantityPurchased int             `json:"model_quantity_purchased"`
	ModelDiscountedPrice   decimal.Decimal `json:"model_discounted_price"`
	ImageInfo              *struct {
		ImageURL string `json:"image_url"`
	} `json:"image_info,omitempty"`
}

// ---------------------------------------------------------------------------
// Webhook Types
// ---------------------------------------------------------------------------

// ShopeePush is an order status push
type ShopeePush struct {
	ShopID    int64 `json:"shop_id"`
	Code      int   `json:"code"`
	Timestamp int64 `json:"timestamp"`
	Data      struct {
		OrderSN    string `json:"ordersn"`
		Status     string `json:"status"`
		UpdateTime int64  `json:"update_time"`
	} `json:"data"`
}
