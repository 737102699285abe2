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
	// ShopeeProductionAPIURL is the production API endpoint
	ShopeeProductionAPIURL = "https://partner.shopeemobile.com"

	shopeePathTokenGet     = "/api/v2/auth/token/get"
	shopeePathTokenRefresh = "/api/v2/auth/access_token/get"
	shopeePathOrderList    = "/api/v2/order/get_order_list"
	shopeePathOrderDetail  = "/api/v2/order/get_order_detail"

	// shopeeMaxWindow is the widest update_time range get_order_list accepts
	shopeeMaxWindow   = 15 * 24 * time.Hour
	shopeeMaxPageSize = 100

	shopeeDetailFields = "buyer_username,recipient_address,item_list,pay_time,shipping_carrier," +
		"total_amount,estimated_shipping_fee,voucher_from_seller,tracking_number"
)

var shopeeStatuses = newStatusTable(map[string]integration.CanonicalStatus{
	"UNPAID": integration.StatusPendingPayment,
	// Shopee's READY_TO_SHIP means paid and waiting for the seller to arrange
	// shipment; stock leaves the warehouse at PROCESSED.
	"READY_TO_SHIP":      integration.StatusPaid,
	"INVOICE_PENDING":    integration.StatusPaid,
	"PROCESSED":          integration.StatusReadyToShip,
	"RETRY_SHIP":         integration.StatusReadyToShip,
	"SHIPPED":            integration.StatusShipped,
	"TO_CONFIRM_RECEIVE": integration.StatusDelivered,
	"COMPLETED":          integration.StatusCompleted,
	"IN_CANCEL":          integration.StatusCancelled,
	"CANCELLED":          integration.StatusCancelled,
	"TO_RETURN":          integration.StatusReturned,
})

// ShopeeAdapter implements PlatformAdapter for Shopee Open Platform v2
type ShopeeAdapter struct {
	*adapterBase
}

// NewShopeeAdapter creates a Shopee adapter bound to one shop
func NewShopeeAdapter(cfg *integration.PlatformAdapterConfig, deps AdapterDeps) (*ShopeeAdapter, error) {
	base, err := newAdapterBase(integration.PlatformShopee, cfg, deps, ShopeeProductionAPIURL)
	if err != nil {
		return nil, err
	}
	return &ShopeeAdapter{adapterBase: base}, nil
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

// Authenticate exchanges a shop authorization code for tokens
func (a *ShopeeAdapter) Authenticate(ctx context.Context, authCode string) (*integration.TokenSet, error) {
	cfg := a.snapshot()
	tokens, err := a.requestToken(ctx, shopeePathTokenGet, map[string]any{
		"code":       authCode,
		"shop_id":    numericOrString(cfg.ShopID),
		"partner_id": numericOrString(cfg.AppKey),
	})
	if err != nil {
		return nil, err
	}
	a.applyTokens(tokens)
	return tokens, nil
}

// RefreshToken exchanges the refresh token for a new token set
func (a *ShopeeAdapter) RefreshToken(ctx context.Context) (*integration.TokenSet, error) {
	cfg := a.snapshot()
	return a.requestToken(ctx, shopeePathTokenRefresh, map[string]any{
		"refresh_token": cfg.RefreshToken,
		"shop_id":       numericOrString(cfg.ShopID),
		"partner_id":    numericOrString(cfg.AppKey),
	})
}

// EnsureValidToken refreshes the access token when it is about to expire
func (a *ShopeeAdapter) EnsureValidToken(ctx context.Context) error {
	return a.keeper.EnsureValid(ctx, a)
}

func (a *ShopeeAdapter) requestToken(ctx context.Context, path string, payload map[string]any) (*integration.TokenSet, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("shopee: failed to marshal token request: %w", err)
	}
	resp, err := a.call(ctx, http.MethodPost, path, nil, body, false)
	if err != nil {
		return nil, err
	}
	var tokenResp ShopeeTokenResponse
	if err := decodeResponse(path, resp, &tokenResp); err != nil {
		return nil, err
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s returned no access token", integration.ErrPlatformInvalidResponse, path)
	}
	return &integration.TokenSet{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    a.now().Add(time.Duration(tokenResp.ExpireIn) * time.Second),
	}, nil
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// FetchOrders fetches one cursor page of order numbers. The list endpoint
// returns identifiers only, so every RawOrder needs a detail fetch.
//
// Windows wider than shopeeMaxWindow are walked oldest slice first. The
// cursor is "<slice start unix>:<shopee cursor>", so paging continues into
// the next slice after Shopee reports the current one exhausted.
func (a *ShopeeAdapter) FetchOrders(ctx context.Context, req *integration.FetchOrdersRequest) (*integration.OrderPage, error) {
	to := a.now()
	if req.TimeTo != nil {
		to = *req.TimeTo
	}
	from := to.Add(-shopeeMaxWindow)
	if req.TimeFrom != nil {
		from = *req.TimeFrom
	}

	sliceFrom, cursor, err := parseShopeeCursor(req.Cursor, from)
	if err != nil {
		return nil, err
	}
	sliceTo := sliceFrom.Add(shopeeMaxWindow)
	if sliceTo.After(to) {
		sliceTo = to
	}

	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > shopeeMaxPageSize {
		pageSize = shopeeMaxPageSize
	}

	query := url.Values{}
	query.Set("time_range_field", "update_time")
	query.Set("time_from", strconv.FormatInt(sliceFrom.Unix(), 10))
	query.Set("time_to", strconv.FormatInt(sliceTo.Unix(), 10))
	query.Set("page_size", strconv.Itoa(pageSize))
	query.Set("cursor", cursor)
	query.Set("response_optional_fields", "order_status")
	if req.Status != "" {
		query.Set("order_status", req.Status)
	}

	body, err := a.call(ctx, http.MethodGet, shopeePathOrderList, query, nil, true)
	if err != nil {
		return nil, err
	}

	var resp ShopeeOrderListResponse
	if err := decodeResponse(shopeePathOrderList, body, &resp); err != nil {
		return nil, err
	}
	page := &integration.OrderPage{}
	if resp.Response == nil {
		nextShopeeSlice(page, sliceTo, to)
		return page, nil
	}

	page.Orders = make([]integration.RawOrder, 0, len(resp.Response.OrderList))
	for _, entry := range resp.Response.OrderList {
		payload, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("shopee: failed to marshal order entry: %w", err)
		}
		page.Orders = append(page.Orders, integration.RawOrder{
			PlatformOrderID: entry.OrderSN,
			Payload:         payload,
			HasDetail:       false,
		})
	}
	if resp.Response.More && resp.Response.NextCursor != "" {
		page.HasMore = true
		page.NextCursor = formatShopeeCursor(sliceFrom, resp.Response.NextCursor)
		return page, nil
	}
	nextShopeeSlice(page, sliceTo, to)
	return page, nil
}

// nextShopeeSlice points page at the slice after sliceTo, if any remains
func nextShopeeSlice(page *integration.OrderPage, sliceTo, to time.Time) {
	if !sliceTo.Before(to) {
		return
	}
	page.HasMore = true
	page.NextCursor = formatShopeeCursor(sliceTo, "")
}

func formatShopeeCursor(sliceFrom time.Time, cursor string) string {
	return strconv.FormatInt(sliceFrom.Unix(), 10) + ":" + cursor
}

// parseShopeeCursor splits a FetchOrders cursor. An empty cursor starts at from.
func parseShopeeCursor(raw string, from time.Time) (time.Time, string, error) {
	if raw == "" {
		return from, "", nil
	}
	start, cursor, ok := strings.Cut(raw, ":")
	unix, err := strconv.ParseInt(start, 10, 64)
	if !ok || err != nil {
		return time.Time{}, "", fmt.Errorf("shopee: malformed page cursor %q", raw)
	}
	return time.Unix(unix, 0).UTC(), cursor, nil
}

// FetchOrderDetail fetches a full order
func (a *ShopeeAdapter) FetchOrderDetail(ctx context.Context, platformOrderID string) (integration.RawOrder, error) {
	query := url.Values{}
	query.Set("order_sn_list", platformOrderID)
	query.Set("response_optional_fields", shopeeDetailFields)

	body, err := a.call(ctx, http.MethodGet, shopeePathOrderDetail, query, nil, true)
	if err != nil {
		return integration.RawOrder{}, err
	}

	var resp ShopeeOrderDetailResponse
	if err := decodeResponse(shopeePathOrderDetail, body, &resp); err != nil {
		return integration.RawOrder{}, err
	}
	if resp.Response == nil || len(resp.Response.OrderList) == 0 {
		return integration.RawOrder{}, fmt.Errorf("%w: shopee order %s", integration.ErrOrderNotFound, platformOrderID)
	}

	payload, err := json.Marshal(resp.Response.OrderList[0])
	if err != nil {
		return integration.RawOrder{}, fmt.Errorf("shopee: failed to marshal order: %w", err)
	}
	return integration.RawOrder{PlatformOrderID: platformOrderID, Payload: payload, HasDetail: true}, nil
}

// NormalizeOrder maps a Shopee order into the canonical model
func (a *ShopeeAdapter) NormalizeOrder(raw integration.RawOrder) (*integration.CanonicalOrder, error) {
	var order ShopeeOrder
	if err := json.Unmarshal(raw.Payload, &order); err != nil {
		return nil, mappingError(a.platform, raw.PlatformOrderID, err)
	}
	if order.OrderSN == "" {
		order.OrderSN = raw.PlatformOrderID
	}
	if order.OrderSN == "" {
		return nil, mappingError(a.platform, "", integration.ErrOrderMissingID)
	}

	cfg := a.snapshot()
	canonical := &integration.CanonicalOrder{
		Platform:        integration.PlatformShopee,
		PlatformOrderID: order.OrderSN,
		ShopID:          cfg.ShopID,
		Status:          a.NormalizeStatus(order.OrderStatus),
		RawStatus:       order.OrderStatus,
		CustomerName:    order.BuyerUsername,
		Currency:        order.Currency,
		ShippingFee:     order.EstimatedShippingFee,
		Discount:        order.VoucherFromSeller,
		Total:           order.TotalAmount,
		TrackingNumber:  order.TrackingNumber,
		ShippingCarrier: order.ShippingCarrier,
		OrderCreatedAt:  unixTime(order.CreateTime),
		OrderUpdatedAt:  unixTime(order.UpdateTime),
		PaidAt:          unixTime(order.PayTime),
		RawPayload:      raw.Payload,
	}

	if addr := order.RecipientAddress; addr != nil {
		canonical.ShippingName = addr.Name
		canonical.ShippingPhone = addr.Phone
		canonical.ShippingAddress = addr.FullAddress
		canonical.ShippingCity = joinNonEmpty(", ", addr.District, addr.City)
		canonical.ShippingProvince = addr.State
		canonical.ShippingPostcode = addr.Zipcode
		canonical.ShippingCountry = addr.Region
	}
	if canonical.ShippingCountry == "" {
		canonical.ShippingCountry = order.Region
	}

	subtotal := decimal.Zero
	canonical.Items = make([]integration.CanonicalOrderItem, 0, len(order.ItemList))
	for _, item := range order.ItemList {
		sku := item.ModelSKU
		if sku == "" {
			sku = item.ItemSKU
		}
		lineTotal := item.ModelDiscountedPrice.Mul(decimal.NewFromInt(int64(item.ModelQuantityPurchased)))
		subtotal = subtotal.Add(lineTotal)

		line := integration.CanonicalOrderItem{
			PlatformItemID: strconv.FormatInt(item.ItemID, 10),
			SKU:            sku,
			Name:           item.ItemName,
			Quantity:       item.ModelQuantityPurchased,
			UnitPrice:      item.ModelDiscountedPrice,
			LineTotal:      lineTotal,
			Variation:      item.ModelName,
		}
		if item.ModelID != 0 {
			line.PlatformItemID = fmt.Sprintf("%d:%d", item.ItemID, item.ModelID)
		}
		if item.ImageInfo != nil {
			line.ImageURL = item.ImageInfo.ImageURL
		}
		canonical.Items = append(canonical.Items, line)
	}
	canonical.Subtotal = subtotal

	return canonical, nil
}

// NormalizeStatus maps a Shopee order_status
func (a *ShopeeAdapter) NormalizeStatus(raw string) integration.CanonicalStatus {
	return shopeeStatuses.lookup(raw)
}

// VerifyWebhookSignature checks HMAC-SHA256(partner_key, callback_url + "|" + body)
func (a *ShopeeAdapter) VerifyWebhookSignature(body []byte, signature, _ string) bool {
	cfg := a.snapshot()
	return verifyHexHMAC(cfg.EffectiveWebhookSecret(), cfg.CallbackURL+"|"+string(body), signature)
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// sign computes hex HMAC-SHA256(partner_key, partner_key + path + sorted(k+v) + partner_key)
func (a *ShopeeAdapter) sign(secret, path string, params url.Values) string {
	return hmacSHA256Hex(secret, secret+path+sortedConcat(params, "sign")+secret)
}

// call performs a signed request and checks the response envelope
func (a *ShopeeAdapter) call(ctx context.Context, method, path string, query url.Values, body []byte, authed bool) ([]byte, error) {
	do := func(cfg integration.PlatformAdapterConfig) ([]byte, error) {
		params := url.Values{}
		for k, v := range query {
			params[k] = v
		}
		params.Set("partner_id", cfg.AppKey)
		params.Set("timestamp", strconv.FormatInt(a.now().Unix(), 10))
		if authed {
			params.Set("access_token", cfg.AccessToken)
			params.Set("shop_id", cfg.ShopID)
		}
		params.Set("sign", a.sign(cfg.AppSecret, path, params))

		resp, err := a.transport.execute(ctx, a.platform, &apiCall{
			Method:   method,
			URL:      a.baseURL + path,
			Endpoint: path,
			Query:    params,
			Body:     body,
			ShopID:   cfg.ShopID,
		})
		if err != nil {
			return nil, err
		}

		var envelope ShopeeResponse
		if err := decodeResponse(path, resp, &envelope); err != nil {
			return nil, err
		}
		if !envelope.IsSuccess() {
			if envelope.IsAuthFailure() {
				return nil, integration.NewAuthError(a.platform, cfg.ShopID, envelope.Error+": "+envelope.Message, nil)
			}
			return nil, &integration.PlatformAPIError{
				Platform:   a.platform,
				Endpoint:   path,
				HTTPStatus: http.StatusOK,
				Code:       envelope.Error,
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

// numericOrString sends numeric ids as JSON numbers
func numericOrString(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

// ---------------------------------------------------------------------------
// Factory
// ---------------------------------------------------------------------------

// ShopeeFactory builds Shopee adapters
type ShopeeFactory struct {
	deps AdapterDeps
}

// NewShopeeFactory creates a Shopee adapter factory
func NewShopeeFactory(deps AdapterDeps) *ShopeeFactory {
	return &ShopeeFactory{deps: deps}
}

// Platform returns PlatformShopee
func (f *ShopeeFactory) Platform() integration.Platform {
	return integration.PlatformShopee
}

// New builds an adapter for cfg
func (f *ShopeeFactory) New(cfg *integration.PlatformAdapterConfig) (integration.PlatformAdapter, error) {
	return NewShopeeAdapter(cfg, f.deps)
}

// ParseWebhook extracts the order reference from a Shopee push
func (f *ShopeeFactory) ParseWebhook(payload []byte) (integration.WebhookRef, error) {
	var push ShopeePush
	if err := json.Unmarshal(payload, &push); err != nil {
		return integration.WebhookRef{}, fmt.Errorf("%w: %v", integration.ErrWebhookPayload, err)
	}
	ref := integration.WebhookRef{
		OrderID:   push.Data.OrderSN,
		EventType: strconv.Itoa(push.Code),
	}
	if push.ShopID > 0 {
		ref.ShopID = strconv.FormatInt(push.ShopID, 10)
	}
	return ref, nil
}

// Ensure ShopeeAdapter implements PlatformAdapter
var _ integration.PlatformAdapter = (*ShopeeAdapter)(nil)
var _ integration.AdapterFactory = (*ShopeeFactory)(nil)
