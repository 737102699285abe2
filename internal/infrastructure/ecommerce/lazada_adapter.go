package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ordersync/backend/internal/domain/integration"
)

const (
	// LazadaProductionAPIURL is the Thailand production API endpoint
	LazadaProductionAPIURL = "https://api.lazada.co.th/rest"
	// LazadaAuthAPIURL is the global authorization endpoint
	LazadaAuthAPIURL = "https://auth.lazada.com/rest"

	lazadaPathTokenCreate  = "/auth/token/create"
	lazadaPathTokenRefresh = "/auth/token/refresh"
	lazadaPathOrders       = "/orders/get"
	lazadaPathOrder        = "/order/get"
	lazadaPathOrderItems   = "/order/items/get"

	lazadaMaxPageSize = 100
	lazadaTimeLayout  = "2006-01-02 15:04:05 -0700"
)

var lazadaStatuses = newStatusTable(map[string]integration.CanonicalStatus{
	"unpaid":                integration.StatusPendingPayment,
	"pending":               integration.StatusPaid,
	"packed":                integration.StatusReadyToShip,
	"ready_to_ship":         integration.StatusReadyToShip,
	"ready_to_ship_pending": integration.StatusReadyToShip,
	"shipped":               integration.StatusShipped,
	"delivered":             integration.StatusDelivered,
	"confirmed":             integration.StatusCompleted,
	"canceled":              integration.StatusCancelled,
	"returned":              integration.StatusReturned,
	"failed_delivery":       integration.StatusReturned,
	"shipped_back":          integration.StatusReturned,
})

// LazadaAdapter implements PlatformAdapter for Lazada Open Platform
type LazadaAdapter struct {
	*adapterBase
	authURL string
}

// NewLazadaAdapter creates a Lazada adapter bound to one seller
func NewLazadaAdapter(cfg *integration.PlatformAdapterConfig, deps AdapterDeps) (*LazadaAdapter, error) {
	base, err := newAdapterBase(integration.PlatformLazada, cfg, deps, LazadaProductionAPIURL)
	if err != nil {
		return nil, err
	}
	authURL := LazadaAuthAPIURL
	if base.baseURL != LazadaProductionAPIURL {
		// Sandboxes and test servers serve both on one host
		authURL = base.baseURL
	}
	return &LazadaAdapter{adapterBase: base, authURL: authURL}, nil
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

// Authenticate exchanges an authorization code for tokens
func (a *LazadaAdapter) Authenticate(ctx context.Context, authCode string) (*integration.TokenSet, error) {
	query := url.Values{}
	query.Set("code", authCode)
	tokens, err := a.requestToken(ctx, lazadaPathTokenCreate, query)
	if err != nil {
		return nil, err
	}
	a.applyTokens(tokens)
	return tokens, nil
}

// RefreshToken exchanges the refresh token for a new token set
func (a *LazadaAdapter) RefreshToken(ctx context.Context) (*integration.TokenSet, error) {
	query := url.Values{}
	query.Set("refresh_token", a.snapshot().RefreshToken)
	return a.requestToken(ctx, lazadaPathTokenRefresh, query)
}

// EnsureValidToken refreshes the access token when it is about to expire
func (a *LazadaAdapter) EnsureValidToken(ctx context.Context) error {
	return a.keeper.EnsureValid(ctx, a)
}

func (a *LazadaAdapter) requestToken(ctx context.Context, path string, query url.Values) (*integration.TokenSet, error) {
	body, err := a.call(ctx, a.authURL, path, query, false)
	if err != nil {
		return nil, err
	}
	var resp LazadaTokenResponse
	if err := decodeResponse(path, body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s returned no access token", integration.ErrPlatformInvalidResponse, path)
	}
	now := a.now()
	tokens := &integration.TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	if resp.RefreshExpiresIn > 0 {
		refreshExpires := now.Add(time.Duration(resp.RefreshExpiresIn) * time.Second)
		tokens.RefreshExpiresAt = &refreshExpires
	}
	return tokens, nil
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// FetchOrders fetches one offset page. The cursor is the decimal offset.
func (a *LazadaAdapter) FetchOrders(ctx context.Context, req *integration.FetchOrdersRequest) (*integration.OrderPage, error) {
	offset, err := parseOffsetCursor(req.Cursor)
	if err != nil {
		return nil, err
	}
	limit := req.PageSize
	if limit <= 0 || limit > lazadaMaxPageSize {
		limit = lazadaMaxPageSize
	}

	query := url.Values{}
	if req.TimeFrom != nil {
		query.Set("update_after", req.TimeFrom.Format(time.RFC3339))
	} else {
		query.Set("update_after", a.now().Add(-30*24*time.Hour).Format(time.RFC3339))
	}
	if req.TimeTo != nil {
		query.Set("update_before", req.TimeTo.Format(time.RFC3339))
	}
	if req.Status != "" {
		query.Set("status", req.Status)
	}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("sort_by", "updated_at")
	query.Set("sort_direction", "ASC")

	body, err := a.call(ctx, a.baseURL, lazadaPathOrders, query, true)
	if err != nil {
		return nil, err
	}

	var resp LazadaOrderListResponse
	if err := decodeResponse(lazadaPathOrders, body, &resp); err != nil {
		return nil, err
	}
	page := &integration.OrderPage{}
	if resp.Data == nil {
		return page, nil
	}

	page.Orders = make([]integration.RawOrder, 0, len(resp.Data.Orders))
	for _, order := range resp.Data.Orders {
		payload, err := json.Marshal(lazadaPayload{Order: order})
		if err != nil {
			return nil, fmt.Errorf("lazada: failed to marshal order: %w", err)
		}
		page.Orders = append(page.Orders, integration.RawOrder{
			PlatformOrderID: order.OrderID.String(),
			Payload:         payload,
			HasDetail:       false,
		})
	}

	next := offset + len(resp.Data.Orders)
	page.Total = resp.Data.CountTotal
	page.HasMore = len(resp.Data.Orders) > 0 && int64(next) < resp.Data.CountTotal
	if page.HasMore {
		page.NextCursor = strconv.Itoa(next)
	}
	return page, nil
}

// FetchOrderDetail fetches the order header and its item rows
func (a *LazadaAdapter) FetchOrderDetail(ctx context.Context, platformOrderID string) (integration.RawOrder, error) {
	query := url.Values{}
	query.Set("order_id", platformOrderID)

	body, err := a.call(ctx, a.baseURL, lazadaPathOrder, query, true)
	if err != nil {
		return integration.RawOrder{}, err
	}
	var orderResp LazadaOrderResponse
	if err := decodeResponse(lazadaPathOrder, body, &orderResp); err != nil {
		return integration.RawOrder{}, err
	}
	if orderResp.Data == nil {
		return integration.RawOrder{}, fmt.Errorf("%w: lazada order %s", integration.ErrOrderNotFound, platformOrderID)
	}

	body, err = a.call(ctx, a.baseURL, lazadaPathOrderItems, query, true)
	if err != nil {
		return integration.RawOrder{}, err
	}
	var itemsResp LazadaOrderItemsResponse
	if err := decodeResponse(lazadaPathOrderItems, body, &itemsResp); err != nil {
		return integration.RawOrder{}, err
	}

	payload, err := json.Marshal(lazadaPayload{Order: *orderResp.Data, Items: itemsResp.Data})
	if err != nil {
		return integration.RawOrder{}, fmt.Errorf("lazada: failed to marshal order: %w", err)
	}
	return integration.RawOrder{PlatformOrderID: platformOrderID, Payload: payload, HasDetail: true}, nil
}

// NormalizeOrder maps a Lazada order into the canonical model. Item rows are
// per unit and are grouped by SKU.
func (a *LazadaAdapter) NormalizeOrder(raw integration.RawOrder) (*integration.CanonicalOrder, error) {
	var payload lazadaPayload
	if err := json.Unmarshal(raw.Payload, &payload); err != nil {
		return nil, mappingError(a.platform, raw.PlatformOrderID, err)
	}
	order := payload.Order
	orderID := order.OrderID.String()
	if orderID == "" {
		orderID = raw.PlatformOrderID
	}
	if orderID == "" {
		return nil, mappingError(a.platform, "", integration.ErrOrderMissingID)
	}

	rawStatus := ""
	if len(order.Statuses) > 0 {
		rawStatus = order.Statuses[0]
	}

	cfg := a.snapshot()
	canonical := &integration.CanonicalOrder{
		Platform:        integration.PlatformLazada,
		PlatformOrderID: orderID,
		ShopID:          cfg.ShopID,
		Status:          a.NormalizeStatus(rawStatus),
		RawStatus:       rawStatus,
		CustomerName:    joinNonEmpty(" ", order.CustomerFirstName, order.CustomerLastName),
		ShippingFee:     order.ShippingFee,
		Discount:        order.Voucher,
		Total:           order.Price.Add(order.ShippingFee).Sub(order.Voucher),
		OrderCreatedAt:  parseTime(lazadaTimeLayout, order.CreatedAt),
		OrderUpdatedAt:  parseTime(lazadaTimeLayout, order.UpdatedAt),
		RawPayload:      raw.Payload,
	}

	if addr := order.AddressShipping; addr != nil {
		canonical.ShippingName = joinNonEmpty(" ", addr.FirstName, addr.LastName)
		canonical.ShippingPhone = addr.Phone
		canonical.ShippingAddress = joinNonEmpty(", ", addr.Address1, addr.Address2, addr.Address5, addr.Address4)
		canonical.ShippingCity = addr.City
		canonical.ShippingProvince = addr.Address3
		canonical.ShippingPostcode = addr.PostCode
		canonical.ShippingCountry = addr.Country
	}

	subtotal := decimal.Zero
	index := make(map[string]int)
	canonical.Items = make([]integration.CanonicalOrderItem, 0, len(payload.Items))
	for _, row := range payload.Items {
		subtotal = subtotal.Add(row.ItemPrice)
		if canonical.Currency == "" {
			canonical.Currency = row.Currency
		}
		if canonical.TrackingNumber == "" {
			canonical.TrackingNumber = row.TrackingCode
			canonical.ShippingCarrier = row.ShipmentProvider
		}

		key := row.SKU + "|" + row.ItemPrice.String()
		if i, ok := index[key]; ok {
			canonical.Items[i].Quantity++
			canonical.Items[i].LineTotal = canonical.Items[i].LineTotal.Add(row.ItemPrice)
			continue
		}
		index[key] = len(canonical.Items)
		canonical.Items = append(canonical.Items, integration.CanonicalOrderItem{
			PlatformItemID: row.OrderItemID.String(),
			SKU:            row.SKU,
			Name:           row.Name,
			Quantity:       1,
			UnitPrice:      row.ItemPrice,
			LineTotal:      row.ItemPrice,
			Variation:      row.Variation,
			ImageURL:       row.ProductMainImage,
		})
	}
	if len(payload.Items) > 0 {
		canonical.Subtotal = subtotal
	} else {
		canonical.Subtotal = order.Price
	}

	return canonical, nil
}

// NormalizeStatus maps a Lazada order status
func (a *LazadaAdapter) NormalizeStatus(raw string) integration.CanonicalStatus {
	return lazadaStatuses.lookup(raw)
}

// VerifyWebhookSignature checks HMAC-SHA256(app_secret, app_key + body)
func (a *LazadaAdapter) VerifyWebhookSignature(body []byte, signature, _ string) bool {
	cfg := a.snapshot()
	return verifyHexHMAC(cfg.EffectiveWebhookSecret(), cfg.AppKey+string(body), signature)
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// sign computes upper hex HMAC-SHA256(app_secret, path + sorted(k+v))
func (a *LazadaAdapter) sign(secret, path string, params url.Values) string {
	return strings.ToUpper(hmacSHA256Hex(secret, path+sortedConcat(params, "sign")))
}

func (a *LazadaAdapter) call(ctx context.Context, host, path string, query url.Values, authed bool) ([]byte, error) {
	do := func(cfg integration.PlatformAdapterConfig) ([]byte, error) {
		params := url.Values{}
		for k, v := range query {
			params[k] = v
		}
		params.Set("app_key", cfg.AppKey)
		params.Set("timestamp", strconv.FormatInt(a.now().UnixMilli(), 10))
		params.Set("sign_method", "sha256")
		if authed {
			params.Set("access_token", cfg.AccessToken)
		}
		params.Set("sign", a.sign(cfg.AppSecret, path, params))

		resp, err := a.transport.execute(ctx, a.platform, &apiCall{
			Method:   http.MethodGet,
			URL:      host + path,
			Endpoint: path,
			Query:    params,
			ShopID:   cfg.ShopID,
		})
		if err != nil {
			return nil, err
		}

		var envelope LazadaResponse
		if err := decodeResponse(path, resp, &envelope); err != nil {
			return nil, err
		}
		if !envelope.IsSuccess() {
			if envelope.IsAuthFailure() {
				return nil, integration.NewAuthError(a.platform, cfg.ShopID, envelope.Code+": "+envelope.Message, nil)
			}
			return nil, &integration.PlatformAPIError{
				Platform:   a.platform,
				Endpoint:   path,
				HTTPStatus: http.StatusOK,
				Code:       envelope.Code,
				Message:    envelope.Message,
			}
		}
		return resp, nil
	}

	if !authed {
		return do(a.snapshot())
	}
	return a.withAuthRetry(ctx, a, do)
}

// parseOffsetCursor decodes an offset cursor; empty means the first page
func parseOffsetCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: invalid offset cursor %q", integration.ErrPlatformRequestFailed, cursor)
	}
	return offset, nil
}

// ---------------------------------------------------------------------------
// Factory
// ---------------------------------------------------------------------------

// LazadaFactory builds Lazada adapters
type LazadaFactory struct {
	deps AdapterDeps
}

// NewLazadaFactory creates a Lazada adapter factory
func NewLazadaFactory(deps AdapterDeps) *LazadaFactory {
	return &LazadaFactory{deps: deps}
}

// Platform returns PlatformLazada
func (f *LazadaFactory) Platform() integration.Platform {
	return integration.PlatformLazada
}

// New builds an adapter for cfg
func (f *LazadaFactory) New(cfg *integration.PlatformAdapterConfig) (integration.PlatformAdapter, error) {
	return NewLazadaAdapter(cfg, f.deps)
}

// ParseWebhook extracts the order reference from a Lazada push
func (f *LazadaFactory) ParseWebhook(payload []byte) (integration.WebhookRef, error) {
	var push LazadaPush
	if err := json.Unmarshal(payload, &push); err != nil {
		return integration.WebhookRef{}, fmt.Errorf("%w: %v", integration.ErrWebhookPayload, err)
	}
	return integration.WebhookRef{
		OrderID:   push.Data.TradeOrderID,
		ShopID:    push.SellerID,
		EventType: strconv.Itoa(push.MessageType),
	}, nil
}

// Ensure LazadaAdapter implements PlatformAdapter
var _ integration.PlatformAdapter = (*LazadaAdapter)(nil)
var _ integration.AdapterFactory = (*LazadaFactory)(nil)
