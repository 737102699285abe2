package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ordersync/backend/internal/domain/integration"
)

const (
	// TikTokProductionAPIURL is the production API endpoint
	TikTokProductionAPIURL = "https://open-api.tiktokglobalshop.com"
	// TikTokAuthAPIURL is the authorization endpoint
	TikTokAuthAPIURL = "https://auth.tiktok-shops.com"

	tiktokPathTokenGet     = "/api/v2/token/get"
	tiktokPathTokenRefresh = "/api/v2/token/refresh"
	tiktokPathOrderSearch  = "/order/202309/orders/search"
	tiktokPathOrderDetail  = "/order/202309/orders"

	tiktokMaxPageSize = 100

	// TikTokSettingShopCipher is the Settings key holding the shop cipher
	TikTokSettingShopCipher = "shop_cipher"
)

var tiktokStatuses = newStatusTable(map[string]integration.CanonicalStatus{
	"UNPAID":              integration.StatusPendingPayment,
	"ON_HOLD":             integration.StatusPaid,
	"AWAITING_SHIPMENT":   integration.StatusPaid,
	"AWAITING_COLLECTION": integration.StatusReadyToShip,
	"PARTIALLY_SHIPPING":  integration.StatusShipped,
	"IN_TRANSIT":          integration.StatusShipped,
	"DELIVERED":           integration.StatusDelivered,
	"COMPLETED":           integration.StatusCompleted,
	"CANCELLED":           integration.StatusCancelled,
})

// TikTokAdapter implements PlatformAdapter for TikTok Shop Partner API
type TikTokAdapter struct {
	*adapterBase
	authURL string
}

// NewTikTokAdapter creates a TikTok Shop adapter bound to one shop
func NewTikTokAdapter(cfg *integration.PlatformAdapterConfig, deps AdapterDeps) (*TikTokAdapter, error) {
	base, err := newAdapterBase(integration.PlatformTikTok, cfg, deps, TikTokProductionAPIURL)
	if err != nil {
		return nil, err
	}
	authURL := TikTokAuthAPIURL
	if base.baseURL != TikTokProductionAPIURL {
		authURL = base.baseURL
	}
	return &TikTokAdapter{adapterBase: base, authURL: authURL}, nil
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

// Authenticate exchanges an authorization code for tokens
func (a *TikTokAdapter) Authenticate(ctx context.Context, authCode string) (*integration.TokenSet, error) {
	query := url.Values{}
	query.Set("auth_code", authCode)
	query.Set("grant_type", "authorized_code")
	tokens, err := a.requestToken(ctx, tiktokPathTokenGet, query)
	if err != nil {
		return nil, err
	}
	a.applyTokens(tokens)
	return tokens, nil
}

// RefreshToken exchanges the refresh token for a new token set
func (a *TikTokAdapter) RefreshToken(ctx context.Context) (*integration.TokenSet, error) {
	query := url.Values{}
	query.Set("refresh_token", a.snapshot().RefreshToken)
	query.Set("grant_type", "refresh_token")
	return a.requestToken(ctx, tiktokPathTokenRefresh, query)
}

// EnsureValidToken refreshes the access token when it is about to expire
func (a *TikTokAdapter) EnsureValidToken(ctx context.Context) error {
	return a.keeper.EnsureValid(ctx, a)
}

func (a *TikTokAdapter) requestToken(ctx context.Context, path string, query url.Values) (*integration.TokenSet, error) {
	cfg := a.snapshot()
	query.Set("app_key", cfg.AppKey)
	query.Set("app_secret", cfg.AppSecret)

	body, err := a.transport.execute(ctx, a.platform, &apiCall{
		Method:   http.MethodGet,
		URL:      a.authURL + path,
		Endpoint: path,
		Query:    query,
		ShopID:   cfg.ShopID,
	})
	if err != nil {
		return nil, err
	}

	var resp TikTokTokenResponse
	if err := decodeResponse(path, body, &resp); err != nil {
		return nil, err
	}
	if err := a.checkEnvelope(cfg, path, &resp.TikTokResponse); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s returned no access token", integration.ErrPlatformInvalidResponse, path)
	}

	tokens := &integration.TokenSet{
		AccessToken:  resp.Data.AccessToken,
		RefreshToken: resp.Data.RefreshToken,
	}
	if t := unixTime(resp.Data.AccessTokenExpireIn); t != nil {
		tokens.ExpiresAt = *t
	}
	tokens.RefreshExpiresAt = unixTime(resp.Data.RefreshTokenExpireIn)
	return tokens, nil
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// FetchOrders fetches one page of orders. The cursor is TikTok's page token.
func (a *TikTokAdapter) FetchOrders(ctx context.Context, req *integration.FetchOrdersRequest) (*integration.OrderPage, error) {
	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > tiktokMaxPageSize {
		pageSize = tiktokMaxPageSize
	}

	query := url.Values{}
	query.Set("page_size", strconv.Itoa(pageSize))
	query.Set("sort_field", "update_time")
	query.Set("sort_order", "ASC")
	if req.Cursor != "" {
		query.Set("page_token", req.Cursor)
	}

	search := TikTokOrderSearchRequest{OrderStatus: req.Status}
	if req.TimeFrom != nil {
		search.UpdateTimeGE = req.TimeFrom.Unix()
	}
	if req.TimeTo != nil {
		search.UpdateTimeLT = req.TimeTo.Unix()
	}
	payload, err := json.Marshal(search)
	if err != nil {
		return nil, fmt.Errorf("tiktok: failed to marshal search request: %w", err)
	}

	body, err := a.call(ctx, http.MethodPost, tiktokPathOrderSearch, query, payload)
	if err != nil {
		return nil, err
	}

	var resp TikTokOrderSearchResponse
	if err := decodeResponse(tiktokPathOrderSearch, body, &resp); err != nil {
		return nil, err
	}
	page := &integration.OrderPage{}
	if resp.Data == nil {
		return page, nil
	}

	page.Orders = make([]integration.RawOrder, 0, len(resp.Data.Orders))
	for _, order := range resp.Data.Orders {
		raw, err := json.Marshal(order)
		if err != nil {
			return nil, fmt.Errorf("tiktok: failed to marshal order: %w", err)
		}
		page.Orders = append(page.Orders, integration.RawOrder{
			PlatformOrderID: order.ID,
			Payload:         raw,
			HasDetail:       len(order.LineItems) > 0,
		})
	}
	page.Total = resp.Data.TotalCount
	page.NextCursor = resp.Data.NextPageToken
	page.HasMore = resp.Data.NextPageToken != ""
	return page, nil
}

// FetchOrderDetail fetches one order by id
func (a *TikTokAdapter) FetchOrderDetail(ctx context.Context, platformOrderID string) (integration.RawOrder, error) {
	query := url.Values{}
	query.Set("ids", platformOrderID)

	body, err := a.call(ctx, http.MethodGet, tiktokPathOrderDetail, query, nil)
	if err != nil {
		return integration.RawOrder{}, err
	}

	var resp TikTokOrderDetailResponse
	if err := decodeResponse(tiktokPathOrderDetail, body, &resp); err != nil {
		return integration.RawOrder{}, err
	}
	if resp.Data == nil || len(resp.Data.Orders) == 0 {
		return integration.RawOrder{}, fmt.Errorf("%w: tiktok order %s", integration.ErrOrderNotFound, platformOrderID)
	}

	raw, err := json.Marshal(resp.Data.Orders[0])
	if err != nil {
		return integration.RawOrder{}, fmt.Errorf("tiktok: failed to marshal order: %w", err)
	}
	return integration.RawOrder{PlatformOrderID: platformOrderID, Payload: raw, HasDetail: true}, nil
}

// NormalizeOrder maps a TikTok order into the canonical model. Line items are
// per unit and are grouped by seller SKU and price.
func (a *TikTokAdapter) NormalizeOrder(raw integration.RawOrder) (*integration.CanonicalOrder, error) {
	var order TikTokOrder
	if err := json.Unmarshal(raw.Payload, &order); err != nil {
		return nil, mappingError(a.platform, raw.PlatformOrderID, err)
	}
	if order.ID == "" {
		order.ID = raw.PlatformOrderID
	}
	if order.ID == "" {
		return nil, mappingError(a.platform, "", integration.ErrOrderMissingID)
	}

	cfg := a.snapshot()
	canonical := &integration.CanonicalOrder{
		Platform:        integration.PlatformTikTok,
		PlatformOrderID: order.ID,
		ShopID:          cfg.ShopID,
		Status:          a.NormalizeStatus(order.Status),
		RawStatus:       order.Status,
		CustomerEmail:   order.BuyerEmail,
		TrackingNumber:  order.TrackingNumber,
		ShippingCarrier: order.ShippingProviderName,
		OrderCreatedAt:  unixTime(order.CreateTime),
		OrderUpdatedAt:  unixTime(order.UpdateTime),
		PaidAt:          unixTime(order.PaidTime),
		RawPayload:      raw.Payload,
	}

	if addr := order.RecipientAddress; addr != nil {
		canonical.CustomerName = addr.Name
		canonical.CustomerPhone = addr.PhoneNumber
		canonical.ShippingName = addr.Name
		canonical.ShippingPhone = addr.PhoneNumber
		canonical.ShippingAddress = addr.FullAddress
		canonical.ShippingPostcode = addr.PostalCode
		canonical.ShippingCountry = addr.RegionCode
		for _, d := range addr.DistrictInfo {
			switch strings.ToLower(d.AddressLevelName) {
			case "province", "state":
				canonical.ShippingProvince = d.AddressName
			case "city", "district":
				if canonical.ShippingCity == "" {
					canonical.ShippingCity = d.AddressName
				}
			}
		}
	}

	if p := order.Payment; p != nil {
		canonical.Currency = p.Currency
		canonical.Subtotal = p.SubTotal
		canonical.ShippingFee = p.ShippingFee
		canonical.Discount = p.SellerDiscount.Add(p.PlatformDiscount)
		canonical.Total = p.TotalAmount
	}

	index := make(map[string]int)
	canonical.Items = make([]integration.CanonicalOrderItem, 0, len(order.LineItems))
	for _, line := range order.LineItems {
		if canonical.TrackingNumber == "" {
			canonical.TrackingNumber = line.TrackingNumber
			canonical.ShippingCarrier = line.ShippingProvider
		}
		key := line.SellerSKU + "|" + line.SkuID + "|" + line.SalePrice.String()
		if i, ok := index[key]; ok {
			canonical.Items[i].Quantity++
			canonical.Items[i].LineTotal = canonical.Items[i].LineTotal.Add(line.SalePrice)
			continue
		}
		index[key] = len(canonical.Items)
		canonical.Items = append(canonical.Items, integration.CanonicalOrderItem{
			PlatformItemID: line.SkuID,
			SKU:            line.SellerSKU,
			Name:           line.ProductName,
			Quantity:       1,
			UnitPrice:      line.SalePrice,
			LineTotal:      line.SalePrice,
			Variation:      line.SkuName,
			ImageURL:       line.SkuImage,
		})
	}
	if order.Payment == nil {
		subtotal := decimal.Zero
		for _, item := range canonical.Items {
			subtotal = subtotal.Add(item.LineTotal)
		}
		canonical.Subtotal = subtotal
		canonical.Total = subtotal
	}

	return canonical, nil
}

// NormalizeStatus maps a TikTok order status
func (a *TikTokAdapter) NormalizeStatus(raw string) integration.CanonicalStatus {
	return tiktokStatuses.lookup(raw)
}

// VerifyWebhookSignature checks HMAC-SHA256(app_secret, app_key + body)
func (a *TikTokAdapter) VerifyWebhookSignature(body []byte, signature, _ string) bool {
	cfg := a.snapshot()
	return verifyHexHMAC(cfg.EffectiveWebhookSecret(), cfg.AppKey+string(body), signature)
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// sign computes hex HMAC-SHA256(secret, secret + path + sorted(k+v) + body + secret),
// excluding sign and access_token from the sorted parameters
func (a *TikTokAdapter) sign(secret, path string, params url.Values, body []byte) string {
	base := secret + path + sortedConcat(params, "sign", "access_token") + string(body) + secret
	return hmacSHA256Hex(secret, base)
}

func (a *TikTokAdapter) checkEnvelope(cfg integration.PlatformAdapterConfig, path string, envelope *TikTokResponse) error {
	if envelope.IsSuccess() {
		return nil
	}
	if envelope.IsAuthFailure() {
		return integration.NewAuthError(a.platform, cfg.ShopID, strconv.Itoa(envelope.Code)+": "+envelope.Message, nil)
	}
	return &integration.PlatformAPIError{
		Platform:   a.platform,
		Endpoint:   path,
		HTTPStatus: http.StatusOK,
		Code:       strconv.Itoa(envelope.Code),
		Message:    envelope.Message,
	}
}

func (a *TikTokAdapter) call(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	return a.withAuthRetry(ctx, a, func(cfg integration.PlatformAdapterConfig) ([]byte, error) {
		params := url.Values{}
		for k, v := range query {
			params[k] = v
		}
		params.Set("app_key", cfg.AppKey)
		params.Set("timestamp", strconv.FormatInt(a.now().Unix(), 10))
		if cipher := cfg.Setting(TikTokSettingShopCipher); cipher != "" {
			params.Set("shop_cipher", cipher)
		}
		params.Set("sign", a.sign(cfg.AppSecret, path, params, body))

		resp, err := a.transport.execute(ctx, a.platform, &apiCall{
			Method:   method,
			URL:      a.baseURL + path,
			Endpoint: path,
			Query:    params,
			Headers:  map[string]string{"x-tts-access-token": cfg.AccessToken},
			Body:     body,
			ShopID:   cfg.ShopID,
		})
		if err != nil {
			return nil, err
		}

		var envelope TikTokResponse
		if err := decodeResponse(path, resp, &envelope); err != nil {
			return nil, err
		}
		if err := a.checkEnvelope(cfg, path, &envelope); err != nil {
			return nil, err
		}
		return resp, nil
	})
}

// ---------------------------------------------------------------------------
// Factory
// ---------------------------------------------------------------------------

// TikTokFactory builds TikTok Shop adapters
type TikTokFactory struct {
	deps AdapterDeps
}

// NewTikTokFactory creates a TikTok Shop adapter factory
func NewTikTokFactory(deps AdapterDeps) *TikTokFactory {
	return &TikTokFactory{deps: deps}
}

// Platform returns PlatformTikTok
func (f *TikTokFactory) Platform() integration.Platform {
	return integration.PlatformTikTok
}

// New builds an adapter for cfg
func (f *TikTokFactory) New(cfg *integration.PlatformAdapterConfig) (integration.PlatformAdapter, error) {
	return NewTikTokAdapter(cfg, f.deps)
}

// ParseWebhook extracts the order reference from a TikTok notification
func (f *TikTokFactory) ParseWebhook(payload []byte) (integration.WebhookRef, error) {
	var push TikTokPush
	if err := json.Unmarshal(payload, &push); err != nil {
		return integration.WebhookRef{}, fmt.Errorf("%w: %v", integration.ErrWebhookPayload, err)
	}
	return integration.WebhookRef{
		OrderID:   push.Data.OrderID,
		ShopID:    push.ShopID,
		EventType: strconv.Itoa(push.Type),
	}, nil
}

// Ensure TikTokAdapter implements PlatformAdapter
var _ integration.PlatformAdapter = (*TikTokAdapter)(nil)
var _ integration.AdapterFactory = (*TikTokFactory)(nil)
