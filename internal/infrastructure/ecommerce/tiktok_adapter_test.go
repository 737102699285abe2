package ecommerce

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/backend/internal/domain/integration"
)

func TestTikTokAdapter_NormalizeStatus(t *testing.T) {
	adapter, err := NewTikTokAdapter(testConfig(integration.PlatformTikTok, ""), testDeps(nil, testNow))
	require.NoError(t, err)

	tests := []struct {
		raw  string
		want integration.CanonicalStatus
	}{
		{"UNPAID", integration.StatusPendingPayment},
		{"ON_HOLD", integration.StatusPaid},
		{"AWAITING_SHIPMENT", integration.StatusPaid},
		{"AWAITING_COLLECTION", integration.StatusReadyToShip},
		{"PARTIALLY_SHIPPING", integration.StatusShipped},
		{"IN_TRANSIT", integration.StatusShipped},
		{"DELIVERED", integration.StatusDelivered},
		{"COMPLETED", integration.StatusCompleted},
		{"CANCELLED", integration.StatusCancelled},
		{"awaiting_collection", integration.StatusReadyToShip},
		{"UNKNOWN", integration.StatusNew},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, adapter.NormalizeStatus(tt.raw))
		})
	}
}

func TestTikTokAdapter_FetchOrders(t *testing.T) {
	cfg := testConfig(integration.PlatformTikTok, "")
	cfg.Settings = map[string]string{TikTokSettingShopCipher: "ROW_abc"}

	var adapter *TikTokAdapter
	server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, tiktokPathOrderSearch, r.URL.Path)
		assert.Equal(t, "old-token", r.Header.Get("x-tts-access-token"))

		q := r.URL.Query()
		assert.Equal(t, "ROW_abc", q.Get("shop_cipher"))
		assert.Equal(t, "page-1", q.Get("page_token"))

		body, _ := io.ReadAll(r.Body)
		var search TikTokOrderSearchRequest
		assert.NoError(t, json.Unmarshal(body, &search))
		assert.Equal(t, testNow.Unix(), search.UpdateTimeLT)
		assert.Equal(t, adapter.sign(cfg.AppSecret, tiktokPathOrderSearch, q, body), q.Get("sign"))

		_, _ = w.Write([]byte(`{"code": 0, "message": "Success", "data": {
			"next_page_token": "page-2", "total_count": 3,
			"orders": [{"id": "5771", "status": "AWAITING_COLLECTION",
				"line_items": [{"id": "1", "sku_id": "s1", "seller_sku": "BAG", "sale_price": "250"}]}]
		}}`))
	})
	defer server.Close()

	cfg.BaseURL = server.URL
	var err error
	adapter, err = NewTikTokAdapter(cfg, testDeps(nil, testNow))
	require.NoError(t, err)

	to := testNow
	page, err := adapter.FetchOrders(context.Background(), &integration.FetchOrdersRequest{TimeTo: &to, Cursor: "page-1"})
	require.NoError(t, err)

	assert.True(t, page.HasMore)
	assert.Equal(t, "page-2", page.NextCursor)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, "5771", page.Orders[0].PlatformOrderID)
	assert.True(t, page.Orders[0].HasDetail)
}

func TestTikTokAdapter_NormalizeOrder_GroupsLineItems(t *testing.T) {
	adapter, err := NewTikTokAdapter(testConfig(integration.PlatformTikTok, ""), testDeps(nil, testNow))
	require.NoError(t, err)

	payload := []byte(`{
		"id": "5771", "status": "AWAITING_COLLECTION", "create_time": 1705312200, "paid_time": 1705312300,
		"buyer_email": "buyer@example.com",
		"recipient_address": {"name": "Anan", "phone_number": "0811111111", "full_address": "5 Rama IV",
			"postal_code": "10330", "region_code": "TH",
			"district_info": [{"address_level_name": "Province", "address_name": "Bangkok"},
				{"address_level_name": "District", "address_name": "Pathum Wan"}]},
		"payment": {"currency": "THB", "sub_total": "750", "shipping_fee": "30", "seller_discount": "20",
			"platform_discount": "10", "total_amount": "750"},
		"line_items": [
			{"id": "1", "sku_id": "s1", "seller_sku": "BAG", "product_name": "Bag", "sale_price": "250",
			 "tracking_number": "TT1", "shipping_provider_name": "J&T"},
			{"id": "2", "sku_id": "s1", "seller_sku": "BAG", "product_name": "Bag", "sale_price": "250"},
			{"id": "3", "sku_id": "s2", "seller_sku": "BELT", "product_name": "Belt", "sale_price": "250"}
		]
	}`)

	order, err := adapter.NormalizeOrder(integration.RawOrder{PlatformOrderID: "5771", Payload: payload, HasDetail: true})
	require.NoError(t, err)

	assert.Equal(t, integration.StatusReadyToShip, order.Status)
	assert.Equal(t, "Bangkok", order.ShippingProvince)
	assert.Equal(t, "Pathum Wan", order.ShippingCity)
	assert.Equal(t, "TT1", order.TrackingNumber)
	assert.Equal(t, "J&T", order.ShippingCarrier)
	assert.True(t, order.Discount.Equal(decimal.NewFromInt(30)))
	assert.True(t, order.Total.Equal(decimal.NewFromInt(750)))

	require.Len(t, order.Items, 2)
	assert.Equal(t, "BAG", order.Items[0].SKU)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.True(t, order.Items[0].LineTotal.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "BELT", order.Items[1].SKU)
}

func TestTikTokAdapter_RefreshToken(t *testing.T) {
	server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, tiktokPathTokenRefresh, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "refresh_token", q.Get("grant_type"))
		assert.Equal(t, "refresh-token", q.Get("refresh_token"))
		_, _ = w.Write([]byte(`{"code": 0, "data": {"access_token": "tt-new", "access_token_expire_in": 1705917000,
			"refresh_token": "tt-refresh", "refresh_token_expire_in": 1736853000}}`))
	})
	defer server.Close()

	adapter, err := NewTikTokAdapter(testConfig(integration.PlatformTikTok, server.URL), testDeps(nil, testNow))
	require.NoError(t, err)

	tokens, err := adapter.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tt-new", tokens.AccessToken)
	assert.Equal(t, int64(1705917000), tokens.ExpiresAt.Unix())
	require.NotNil(t, tokens.RefreshExpiresAt)
	assert.Equal(t, int64(1736853000), tokens.RefreshExpiresAt.Unix())
}

func TestTikTokAdapter_ExpiredCodeIsAuthError(t *testing.T) {
	server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tiktokPathTokenRefresh {
			_, _ = w.Write([]byte(`{"code": 36004004, "message": "refresh token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code": 105002, "message": "access token expired"}`))
	})
	defer server.Close()

	adapter, err := NewTikTokAdapter(testConfig(integration.PlatformTikTok, server.URL), testDeps(nil, testNow))
	require.NoError(t, err)

	_, err = adapter.FetchOrderDetail(context.Background(), "5771")
	assert.ErrorIs(t, err, integration.ErrPlatformAuthFailed)
}

func TestTikTokAdapter_VerifyWebhookSignature(t *testing.T) {
	cfg := testConfig(integration.PlatformTikTok, "")
	adapter, err := NewTikTokAdapter(cfg, testDeps(nil, testNow))
	require.NoError(t, err)

	body := []byte(`{"type":1,"shop_id":"100200","data":{"order_id":"5771","order_status":"AWAITING_COLLECTION"}}`)
	sig := hmacSHA256Hex(cfg.AppSecret, cfg.AppKey+string(body))

	assert.True(t, adapter.VerifyWebhookSignature(body, sig, ""))
	assert.False(t, adapter.VerifyWebhookSignature(body, hmacSHA256Hex(cfg.AppSecret, string(body)), ""))

	ref, err := NewTikTokFactory(testDeps(nil, testNow)).ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, "5771", ref.OrderID)
	assert.Equal(t, "100200", ref.ShopID)
	assert.Equal(t, "1", ref.EventType)
}
