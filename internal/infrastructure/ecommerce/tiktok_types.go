package ecommerce

import (
	"github.com/shopspring/decimal"
)

// TikTokResponse is the base response wrapper for TikTok Shop Partner API calls
type TikTokResponse struct {
	// Code is 0 on success
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// IsSuccess returns true if the response indicates success
func (r *TikTokResponse) IsSuccess() bool {
	return r.Code == 0
}

// IsAuthFailure returns true if the error code means the token was rejected
func (r *TikTokResponse) IsAuthFailure() bool {
	switch r.Code {
	case 105001, 105002, 36004004:
		return true
	}
	return false
}

// TikTokTokenResponse is the response of token/get and token/refresh
type TikTokTokenResponse struct {
	TikTokResponse
	Data *struct {
		AccessToken string `json:"access_token"`

		// AccessTokenExpireIn is the unix time the access token expires at
		AccessTokenExpireIn int64  `json:"access_token_expire_in"`
		RefreshToken        string `json:"refresh_token"`

		// RefreshTokenExpireIn is the unix time the refresh token expires at
		RefreshTokenExpireIn int64  `json:"refresh_token_expire_in"`
		SellerName           string `json:"seller_name,omitempty"`
	} `json:"data,omitempty"`
}

// TikTokOrderSearchRequest is the POST body of orders/search
type TikTokOrderSearchRequest struct {
	OrderStatus  string `json:"order_status,omitempty"`
	UpdateTimeGE int64  `json:"update_time_ge,omitempty"`
	UpdateTimeLT int64  `json:"update_time_lt,omitempty"`
}

// TikTokOrderSearchResponse is the response for orders/search
type TikTokOrderSearchResponse struct {
	TikTokResponse
	Data *struct {
		Orders        []TikTokOrder `json:"orders"`
		NextPageToken string        `json:"next_page_token"`
		TotalCount    int64         `json:"total_count"`
	} `json:"data,omitempty"`
}

// TikTokOrderDetailResponse is the response for orders (get by ids)
type TikTokOrderDetailResponse struct {
	TikTokResponse
	Data *struct {
		Orders []TikTokOrder `json:"orders"`
	} `json:"data,omitempty"`
}

// TikTokOrder represents an order from TikTok Shop
type TikTokOrder struct {
	ID                   string           `json:"id"`
	Status               string           `json:"status"`
	CreateTime           int64            `json:"create_time"`
	UpdateTime           int64            `json:"update_time"`
	PaidTime             int64            `json:"paid_time"`
	RTSTime              int64            `json:"rts_time"`
	BuyerEmail           string           `json:"buyer_email"`
	TrackingNumber       string           `json:"tracking_number"`
	ShippingProviderName string           `json:"shipping_provider"`
	WarehouseID          string           `json:"warehouse_id"`
	RecipientAddress     *TikTokAddress   `json:"recipient_address,omitempty"`
	Payment              *TikTokPayment   `json:"payment,omitempty"`
	LineItems            []TikTokLineItem `json:"line_items,omitempty"`
}

// TikTokAddress is the recipient address
type TikTokAddress struct {
	Name         string `json:"name"`
	PhoneNumber  string `json:"phone_number"`
	FullAddress  string `json:"full_address"`
	PostalCode   string `json:"postal_code"`
	RegionCode   string `json:"region_code"`
	DistrictInfo []struct {
		AddressLevelName string `json:"address_level_name"`
		AddressName      string `json:"address_name"`
	} `json:"district_info,omitempty"`
}

// TikTokPayment holds order amounts as decimal strings
type TikTokPayment struct {
	Currency         string          `json:"currency"`
	SubTotal         decimal.Decimal `json:"sub_total"`
	ShippingFee      decimal.Decimal `json:"shipping_fee"`
	SellerDiscount   decimal.Decimal `json:"seller_discount"`
	PlatformDiscount decimal.Decimal `json:"platform_discount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
}

// TikTokLineItem is one unit of an order; TikTok returns a line per unit
type TikTokLineItem struct {
	ID               string          `json:"id"`
	SkuID            string          `json:"sku_id"`
	SellerSKU        string          `json:"seller_sku"`
	ProductName      string          `json:"product_name"`
	SkuName          string          `json:"sku_name"`
	SalePrice        decimal.Decimal `json:"sale_price"`
	SkuImage         string          `json:"sku_image"`
	TrackingNumber   string          `json:"tracking_number"`
	ShippingProvider string          `json:"shipping_provider_name"`
}

// TikTokPush is an order status change notification
type TikTokPush struct {
	Type              int    `json:"type"`
	TTSNotificationID string `json:"tts_notification_id"`
	ShopID            string `json:"shop_id"`
	Timestamp         int64  `json:"timestamp"`
	Data              struct {
		OrderID     string `json:"order_id"`
		OrderStatus string `json:"order_status"`
		UpdateTime  int64  `json:"update_time"`
	} `json:"data"`
}
