package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ordersync/backend/internal/domain/integration"
)

const (
	// LnwShopProductionAPIURL is the production API endpoint
	LnwShopProductionAPIURL = "https://api.lnwshop.com"

	lnwshopPathOrders = "/api/v1/orders"

	lnwshopMaxPageSize = 100

	// LnwShopTokenHeader carries the shared webhook token
	LnwShopTokenHeader = "X-LnwShop-Token"
)

var lnwshopTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05"}

var lnwshopStatuses = newStatusTable(map[string]integration.CanonicalStatus{
	"pending":       integration.StatusPendingPayment,
	"paid":          integration.StatusPaid,
	"ready_to_ship": integration.StatusReadyToShip,
	"shipped":       integration.StatusShipped,
	"delivered":     integration.StatusDelivered,
	"completed":     integration.StatusCompleted,
	"cancelled":     integration.StatusCancelled,
	"returned":      integration.StatusReturned,
	"refunded":      integration.StatusReturned,
})

// LnwShopAdapter implements PlatformAdapter for the LnwShop REST API. LnwShop
// authenticates with a static API key; there is no token exchange.
type LnwShopAdapter struct {
	*adapterBase
}

// NewLnwShopAdapter creates an LnwShop adapter bound to one shop
func NewLnwShopAdapter(cfg *integration.PlatformAdapterConfig, deps AdapterDeps) (*LnwShopAdapter, error) {
	base, err := newAdapterBase(integration.PlatformLnwShop, cfg, deps, LnwShopProductionAPIURL)
	if err != nil {
		return nil, err
	}
	return &LnwShopAdapter{adapterBase: base}, nil
}

// Authenticate returns the static key as the token set
func (a *LnwShopAdapter) Authenticate(ctx context.Context, _ string) (*integration.TokenSet, error) {
	return a.RefreshToken(ctx)
}

// RefreshToken is a no-op returning the static API key
func (a *LnwShopAdapter) RefreshToken(_ context.Context) (*integration.TokenSet, error) {
	return &integration.TokenSet{AccessToken: a.snapshot().AppKey}, nil
}

// EnsureValidToken is a no-op: API keys do not expire
func (a *LnwShopAdapter) EnsureValidToken(_ context.Context) error {
	return nil
}

// FetchOrders fetches one offset page. The cursor is the decimal offset.
func (a *LnwShopAdapter) FetchOrders(ctx context.Context, req *integration.FetchOrdersRequest) (*integration.OrderPage, error) {
	offset, err := parseOffsetCursor(req.Cursor)
	if err != nil {
		return nil, err
	}
	limit := req.PageSize
	if limit <= 0 || limit > lnwshopMaxPageSize {
		limit = lnwshopMaxPageSize
	}

	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))
	if req.TimeFrom != nil {
		query.Set("updated_from", req.TimeFrom.UTC().Format(time.RFC3339))
	}
	if req.TimeTo != nil {
		query.Set("updated_to", req.TimeTo.UTC().Format(time.RFC3339))
	}
	if req.Status != "" {
		query.Set("status", req.Status)
	}

	body, err := a.call(ctx, lnwshopPathOrders, query)
	if err != nil {
		return nil, err
	}

	var resp LnwShopOrderListResponse
	if err := decodeResponse(lnwshopPathOrders, body, &resp); err != nil {
		return nil, err
	}

	page := &integration.OrderPage{Total: resp.Total}
	page.Orders = make([]integration.RawOrder, 0, len(resp.Data))
	for _, order := range resp.Data {
		raw, err := json.Marshal(order)
		if err != nil {
			return nil, fmt.Errorf("lnwshop: failed to marshal order: %w", err)
		}
		page.Orders = append(page.Orders, integration.RawOrder{
			PlatformOrderID: order.ID.String(),
			Payload:         raw,
			HasDetail:       len(order.Items) > 0,
		})
	}

	next := offset + len(resp.Data)
	page.HasMore = len(resp.Data) > 0 && int64(next) < resp.Total
	if page.HasMore {
		page.NextCursor = strconv.Itoa(next)
	}
	return page, nil
}

// FetchOrderDetail fetches one order by id
func (a *LnwShopAdapter) FetchOrderDetail(ctx context.Context, platformOrderID string) (integration.RawOrder, error) {
	path := lnwshopPathOrders + "/" + url.PathEscape(platformOrderID)
	body, err := a.call(ctx, path, nil)
	if err != nil {
		return integration.RawOrder{}, err
	}

	var resp LnwShopOrderResponse
	if err := decodeResponse(lnwshopPathOrders, body, &resp); err != nil {
		return integration.RawOrder{}, err
	}
	if resp.Data == nil {
		return integration.RawOrder{}, fmt.Errorf("%w: lnwshop order %s", integration.ErrOrderNotFound, platformOrderID)
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return integration.RawOrder{}, fmt.Errorf("lnwshop: failed to marshal order: %w", err)
	}
	return integration.RawOrder{PlatformOrderID: platformOrderID, Payload: raw, HasDetail: true}, nil
}

// NormalizeOrder maps an LnwShop order into the canonical model
func (a *LnwShopAdapter) NormalizeOrder(raw integration.RawOrder) (*integration.CanonicalOrder, error) {
	var order LnwShopOrder
	if err := json.Unmarshal(raw.Payload, &order); err != nil {
		return nil, mappingError(a.platform, raw.PlatformOrderID, err)
	}
	orderID := order.ID.String()
	if orderID == "" {
		orderID = raw.PlatformOrderID
	}
	if orderID == "" {
		return nil, mappingError(a.platform, "", integration.ErrOrderMissingID)
	}

	cfg := a.snapshot()
	canonical := &integration.CanonicalOrder{
		Platform:        integration.PlatformLnwShop,
		PlatformOrderID: orderID,
		ShopID:          cfg.ShopID,
		Status:          a.NormalizeStatus(order.Status),
		RawStatus:       order.Status,
		Currency:        order.Currency,
		Subtotal:        order.Subtotal,
		ShippingFee:     order.ShippingFee,
		Discount:        order.Discount,
		Total:           order.Total,
		TrackingNumber:  order.TrackingNumber,
		ShippingCarrier: order.ShippingMethod,
		OrderCreatedAt:  parseLnwShopTime(order.CreatedAt),
		OrderUpdatedAt:  parseLnwShopTime(order.UpdatedAt),
		PaidAt:          parseLnwShopTime(order.PaidAt),
		ShippedAt:       parseLnwShopTime(order.ShippedAt),
		RawPayload:      raw.Payload,
	}
	if canonical.Currency == "" {
		canonical.Currency = "THB"
	}

	if c := order.Customer; c != nil {
		canonical.CustomerName = c.Name
		canonical.CustomerPhone = c.Phone
		canonical.CustomerEmail = c.Email
	}
	if addr := order.Shipping; addr != nil {
		canonical.ShippingName = addr.Name
		canonical.ShippingPhone = addr.Phone
		canonical.ShippingAddress = joinNonEmpty(", ", addr.Address, addr.Subdistrict)
		canonical.ShippingCity = addr.District
		canonical.ShippingProvince = addr.Province
		canonical.ShippingPostcode = addr.Postcode
		canonical.ShippingCountry = addr.Country
	}

	canonical.Items = make([]integration.CanonicalOrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		lineTotal := item.Total
		if lineTotal.IsZero() {
			lineTotal = item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		}
		canonical.Items = append(canonical.Items, integration.CanonicalOrderItem{
			PlatformItemID: item.ID.String(),
			SKU:            item.SKU,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPrice:      item.Price,
			LineTotal:      lineTotal,
			Variation:      item.Option,
			ImageURL:       item.ImageURL,
		})
	}

	return canonical, nil
}

// NormalizeStatus maps an LnwShop order status
func (a *LnwShopAdapter) NormalizeStatus(raw string) integration.CanonicalStatus {
	return lnwshopStatuses.lookup(raw)
}

// VerifyWebhookSignature compares the shared webhook token in constant time.
// LnwShop sends the token itself rather than a body signature.
func (a *LnwShopAdapter) VerifyWebhookSignature(_ []byte, signature, _ string) bool {
	cfg := a.snapshot()
	return constantTimeEqual(cfg.EffectiveWebhookSecret(), signature)
}

func (a *LnwShopAdapter) call(ctx context.Context, path string, query url.Values) ([]byte, error) {
	cfg := a.snapshot()
	body, err := a.transport.execute(ctx, a.platform, &apiCall{
		Method:   http.MethodGet,
		URL:      a.baseURL + path,
		Endpoint: path,
		Query:    query,
		Headers:  map[string]string{"X-API-Key": cfg.AppKey, "Accept": "application/json"},
		ShopID:   cfg.ShopID,
	})
	if err != nil {
		return nil, err
	}

	var envelope LnwShopErrorResponse
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
		return nil, &integration.PlatformAPIError{
			Platform:   a.platform,
			Endpoint:   path,
			HTTPStatus: http.StatusOK,
			Code:       envelope.Error,
			Message:    envelope.Message,
		}
	}
	return body, nil
}

func parseLnwShopTime(value string) *time.Time {
	for _, layout := range lnwshopTimeLayouts {
		if t := parseTime(layout, value); t != nil {
			return t
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Factory
// ---------------------------------------------------------------------------

// LnwShopFactory builds LnwShop adapters
type LnwShopFactory struct {
	deps AdapterDeps
}

// NewLnwShopFactory creates an LnwShop adapter factory
func NewLnwShopFactory(deps AdapterDeps) *LnwShopFactory {
	return &LnwShopFactory{deps: deps}
}

// Platform returns PlatformLnwShop
func (f *LnwShopFactory) Platform() integration.Platform {
	return integration.PlatformLnwShop
}

// New builds an adapter for cfg
func (f *LnwShopFactory) New(cfg *integration.PlatformAdapterConfig) (integration.PlatformAdapter, error) {
	return NewLnwShopAdapter(cfg, f.deps)
}

// ParseWebhook extracts the order reference from an LnwShop webhook
func (f *LnwShopFactory) ParseWebhook(payload []byte) (integration.WebhookRef, error) {
	var push LnwShopPush
	if err := json.Unmarshal(payload, &push); err != nil {
		return integration.WebhookRef{}, fmt.Errorf("%w: %v", integration.ErrWebhookPayload, err)
	}
	return integration.WebhookRef{
		OrderID:   push.OrderID,
		ShopID:    push.ShopID,
		EventType: push.Event,
	}, nil
}

// Ensure LnwShopAdapter implements PlatformAdapter
var _ integration.PlatformAdapter = (*LnwShopAdapter)(nil)
var _ integration.AdapterFactory = (*LnwShopFactory)(nil)
