package ecommerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/backend/internal/domain/integration"
)

func TestShopeeAdapter_NormalizeStatus(t *testing.T) {
	adapter, err := NewShopeeAdapter(testConfig(integration.PlatformShopee, ""), testDeps(nil, testNow))
	require.NoError(t, err)

	tests := []struct {
		raw  string
		want integration.CanonicalStatus
	}{
		{"UNPAID", integration.StatusPendingPayment},
		// Shopee READY_TO_SHIP is paid, not yet arranged
		{"READY_TO_SHIP", integration.StatusPaid},
		{"PROCESSED", integration.StatusReadyToShip},
		{"RETRY_SHIP", integration.StatusReadyToShip},
		{"SHIPPED", integration.StatusShipped},
		{"TO_CONFIRM_RECEIVE", integration.StatusDelivered},
		{"COMPLETED", integration.StatusCompleted},
		{"IN_CANCEL", integration.StatusCancelled},
		{"CANCELLED", integration.StatusCancelled},
		{"TO_RETURN", integration.StatusReturned},
		{"processed", integration.StatusReadyToShip},
		{" shipped ", integration.StatusShipped},
		{"SOMETHING_NEW", integration.StatusNew},
		{"", integration.StatusNew},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, adapter.NormalizeStatus(tt.raw))
		})
	}
}

func TestNewShopeeAdapter_Validation(t *testing.T) {
	deps := testDeps(nil, testNow)

	_, err := NewShopeeAdapter(nil, deps)
	assert.ErrorIs(t, err, integration.ErrPlatformNotConfigured)

	_, err = NewShopeeAdapter(testConfig(integration.PlatformLazada, ""), deps)
	assert.ErrorIs(t, err, integration.ErrPlatformNotSupported)

	cfg := testConfig(integration.PlatformShopee, "")
	cfg.AppSecret = ""
	_, err = NewShopeeAdapter(cfg, deps)
	assert.ErrorIs(t, err, integration.ErrConfigInvalidCreds)
}

func TestShopeeAdapter_NormalizeOrder(t *testing.T) {
	adapter, err := NewShopeeAdapter(testConfig(integration.PlatformShopee, ""), testDeps(nil, testNow))
	require.NoError(t, err)

	payload := []byte(`{
		"order_sn": "240115ABCDEF",
		"order_status": "PROCESSED",
		"region": "TH",
		"currency": "THB",
		"buyer_username": "buyer01",
		"create_time": 1705312200,
		"update_time": 1705315800,
		"pay_time": 1705312500,
		"tracking_number": "TH123",
		"shipping_carrier": "Kerry",
		"total_amount": 450.5,
		"estimated_shipping_fee": 40,
		"voucher_from_seller": 20,
		"recipient_address": {"name": "Somchai", "phone": "0812345678", "full_address": "1 Sukhumvit",
			"city": "Bangkok", "district": "Watthana", "state": "Bangkok", "zipcode": "10110", "region": "TH"},
		"item_list": [
			{"item_id": 11, "item_name": "Mug", "item_sku": "MUG", "model_id": 22, "model_name": "Red",
			 "model_sku": "MUG-RED", "model_quantity_purchased": 2, "model_discounted_price": 150.25},
			{"item_id": 12, "item_name": "Spoon", "item_sku": "SPOON", "model_id": 0,
			 "model_quantity_purchased": 1, "model_discounted_price": "130"}
		]
	}`)

	order, err := adapter.NormalizeOrder(integration.RawOrder{PlatformOrderID: "240115ABCDEF", Payload: payload, HasDetail: true})
	require.NoError(t, err)

	assert.Equal(t, integration.PlatformShopee, order.Platform)
	assert.Equal(t, "240115ABCDEF", order.PlatformOrderID)
	assert.Equal(t, "100200", order.ShopID)
	assert.Equal(t, integration.StatusReadyToShip, order.Status)
	assert.Equal(t, "PROCESSED", order.RawStatus)
	assert.Equal(t, "Somchai", order.ShippingName)
	assert.Equal(t, "10110", order.ShippingPostcode)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("450.5")))
	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("430.5")))
	require.NotNil(t, order.PaidAt)
	assert.Equal(t, int64(1705312500), order.PaidAt.Unix())

	require.Len(t, order.Items, 2)
	assert.Equal(t, "MUG-RED", order.Items[0].SKU)
	assert.Equal(t, "11:22", order.Items[0].PlatformItemID)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, "SPOON", order.Items[1].SKU)
	assert.Equal(t, "12", order.Items[1].PlatformItemID)
}

func TestShopeeAdapter_NormalizeOrder_Invalid(t *testing.T) {
	adapter, err := NewShopeeAdapter(testConfig(integration.PlatformShopee, ""), testDeps(nil, testNow))
	require.NoError(t, err)

	_, err = adapter.NormalizeOrder(integration.RawOrder{PlatformOrderID: "X", Payload: []byte(`{not json`)})
	assert.ErrorIs(t, err, integration.ErrOrderMapping)

	_, err = adapter.NormalizeOrder(integration.RawOrder{Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, integration.ErrOrderMissingID)
}

func TestShopeeAdapter_FetchOrders(t *testing.T) {
	var gotQuery url.Values
	server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, shopeePathOrderList, r.URL.Path)
		gotQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode(ShopeeOrderListResponse{
			Response: &ShopeeOrderListData{
				More:       true,
				NextCursor: "cursor-2",
				OrderList: []ShopeeOrderSNEntry{
					{OrderSN: "A1", OrderStatus: "UNPAID"},
					{OrderSN: "A2", OrderStatus: "PROCESSED"},
				},
			},
		})
	})
	defer server.Close()

	cfg := testConfig(integration.PlatformShopee, server.URL)
	adapter, err := NewShopeeAdapter(cfg, testDeps(nil, testNow))
	require.NoError(t, err)

	from := testNow.Add(-time.Hour)
	page, err := adapter.FetchOrders(context.Background(), &integration.FetchOrdersRequest{TimeFrom: &from, PageSize: 50})
	require.NoError(t, err)

	assert.True(t, page.HasMore)
	assert.Equal(t, strconv.FormatInt(from.Unix(), 10)+":cursor-2", page.NextCursor)
	assert.Equal(t, strconv.FormatInt(from.Unix(), 10), gotQuery.Get("time_from"))
	assert.Equal(t, strconv.FormatInt(testNow.Unix(), 10), gotQuery.Get("time_to"))
	require.Len(t, page.Orders, 2)
	assert.Equal(t, "A1", page.Orders[0].PlatformOrderID)
	assert.False(t, page.Orders[0].HasDetail)

	assert.Equal(t, "50", gotQuery.Get("page_size"))
	assert.Equal(t, "old-token", gotQuery.Get("access_token"))
	assert.Equal(t, cfg.AppKey, gotQuery.Get("partner_id"))
	assert.Equal(t, "100200", gotQuery.Get("shop_id"))

	// The signature covers every parameter except sign itself
	assert.Equal(t, adapter.sign(cfg.AppSecret, shopeePathOrderList, gotQuery), gotQuery.Get("sign"))
}

func TestShopeeAdapter_FetchOrders_WalksWideWindowInSlices(t *testing.T) {
	var queries []url.Values
	server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		queries = append(queries, q)
		data := &ShopeeOrderListData{OrderList: []ShopeeOrderSNEntry{{OrderSN: "S" + strconv.Itoa(len(queries))}}}
		if q.Get("cursor") == "" {
			data.More = true
			data.NextCursor = "next"
		}
		_ = json.NewEncoder(w).Encode(ShopeeOrderListResponse{Response: data})
	})
	defer server.Close()

	adapter, err := NewShopeeAdapter(testConfig(integration.PlatformShopee, server.URL), testDeps(nil, testNow))
	require.NoError(t, err)

	from := testNow.Add(-30 * 24 * time.Hour)
	to := testNow
	req := &integration.FetchOrdersRequest{TimeFrom: &from, TimeTo: &to}
	var seen []string
	for i := 0; i < 10; i++ {
		page, err := adapter.FetchOrders(context.Background(), req)
		require.NoError(t, err)
		for _, o := range page.Orders {
			seen = append(seen, o.PlatformOrderID)
		}
		if !page.HasMore {
			break
		}
		req.Cursor = page.NextCursor
	}

	unix := func(ts time.Time) string { return strconv.FormatInt(ts.Unix(), 10) }
	mid := from.Add(shopeeMaxWindow)
	require.Len(t, queries, 4)
	assert.Equal(t, []string{"S1", "S2", "S3", "S4"}, seen)

	assert.Equal(t, unix(from), queries[0].Get("time_from"))
	assert.Equal(t, unix(mid), queries[0].Get("time_to"))
	assert.Equal(t, "next", queries[1].Get("cursor"))
	assert.Equal(t, unix(from), queries[1].Get("time_from"))

	assert.Equal(t, unix(mid), queries[2].Get("time_from"))
	assert.Equal(t, unix(to), queries[2].Get("time_to"))
	assert.Empty(t, queries[2].Get("cursor"))
	assert.Equal(t, "next", queries[3].Get("cursor"))
}

func TestShopeeAdapter_FetchOrders_MalformedCursor(t *testing.T) {
	adapter, err := NewShopeeAdapter(testConfig(integration.PlatformShopee, "http://127.0.0.1:1"), testDeps(nil, testNow))
	require.NoError(t, err)

	_, err = adapter.FetchOrders(context.Background(), &integration.FetchOrdersRequest{Cursor: "cursor-2"})
	assert.ErrorContains(t, err, "malformed page cursor")
}

func TestShopeeAdapter_FetchOrderDetail(t *testing.T) {
	server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, shopeePathOrderDetail, r.URL.Path)
		if r.URL.Query().Get("order_sn_list") == "MISSING" {
			_, _ = w.Write([]byte(`{"response": {"order_list": []}}`))
			return
		}
		_, _ = w.Write([]byte(`{"response": {"order_list": [{"order_sn": "A1", "order_status": "SHIPPED"}]}}`))
	})
	defer server.Close()

	adapter, err := NewShopeeAdapter(testConfig(integration.PlatformShopee, server.URL), testDeps(nil, testNow))
	require.NoError(t, err)

	raw, err := adapter.FetchOrderDetail(context.Background(), "A1")
	require.NoError(t, err)
	assert.True(t, raw.HasDetail)

	order, err := adapter.NormalizeOrder(raw)
	require.NoError(t, err)
	assert.Equal(t, integration.StatusShipped, order.Status)

	_, err = adapter.FetchOrderDetail(context.Background(), "MISSING")
	assert.ErrorIs(t, err, integration.ErrOrderNotFound)
}

func TestShopeeAdapter_BusinessErrors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantAuth bool
	}{
		{"auth failure", `{"error": "invalid_access_token", "message": "token expired"}`, true},
		{"api failure", `{"error": "error_param", "message": "bad cursor"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == shopeePathTokenRefresh {
					// refresh fails so the auth error surfaces
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				_, _ = w.Write([]byte(tt.response))
			})
			defer server.Close()

			adapter, err := NewShopeeAdapter(testConfig(integration.PlatformShopee, server.URL), testDeps(nil, testNow))
			require.NoError(t, err)

			_, err = adapter.FetchOrders(context.Background(), &integration.FetchOrdersRequest{})
			require.Error(t, err)
			assert.Equal(t, tt.wantAuth, integration.IsAuthError(err))
			if !tt.wantAuth {
				assert.ErrorIs(t, err, integration.ErrPlatformRequestFailed)
			}
		})
	}
}

func TestShopeeAdapter_RefreshAndRetryOnUnauthorized(t *testing.T) {
	var listCalls, refreshCalls int32
	server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case shopeePathTokenRefresh:
			atomic.AddInt32(&refreshCalls, 1)
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "refresh-token", body["refresh_token"])
			_, _ = w.Write([]byte(`{"access_token": "new-token", "refresh_token": "new-refresh", "expire_in": 14400}`))
		case shopeePathOrderList:
			atomic.AddInt32(&listCalls, 1)
			if r.URL.Query().Get("access_token") != "new-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"response": {"more": false, "order_list": [{"order_sn": "A1"}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	defer server.Close()

	cfg := testConfig(integration.PlatformShopee, server.URL)
	store := newMemTokenStore(cfg)
	adapter, err := NewShopeeAdapter(cfg, testDeps(store, testNow))
	require.NoError(t, err)

	page, err := adapter.FetchOrders(context.Background(), &integration.FetchOrdersRequest{})
	require.NoError(t, err)
	assert.Len(t, page.Orders, 1)

	assert.Equal(t, int32(2), atomic.LoadInt32(&listCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls))

	stored, err := store.FindByID(context.Background(), cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-token", stored.AccessToken)
	assert.Equal(t, "new-refresh", stored.RefreshToken)
}

func TestShopeeAdapter_UnauthorizedTwiceReturnsAuthError(t *testing.T) {
	var listCalls int32
	server := createMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == shopeePathTokenRefresh {
			_, _ = w.Write([]byte(`{"access_token": "new-token", "expire_in": 14400}`))
			return
		}
		atomic.AddInt32(&listCalls, 1)
		w.WriteHeader(http.StatusForbidden)
	})
	defer server.Close()

	cfg := testConfig(integration.PlatformShopee, server.URL)
	adapter, err := NewShopeeAdapter(cfg, testDeps(newMemTokenStore(cfg), testNow))
	require.NoError(t, err)

	_, err = adapter.FetchOrders(context.Background(), &integration.FetchOrdersRequest{})
	assert.ErrorIs(t, err, integration.ErrPlatformAuthFailed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&listCalls))
}

func TestShopeeAdapter_VerifyWebhookSignature(t *testing.T) {
	cfg := testConfig(integration.PlatformShopee, "")
	cfg.WebhookSecret = "push-secret"
	adapter, err := NewShopeeAdapter(cfg, testDeps(nil, testNow))
	require.NoError(t, err)

	body := []byte(`{"shop_id":100200,"code":3,"data":{"ordersn":"A1","status":"PROCESSED"}}`)
	valid := hmacSHA256Hex("push-secret", cfg.CallbackURL+"|"+string(body))

	assert.True(t, adapter.VerifyWebhookSignature(body, valid, ""))
	assert.False(t, adapter.VerifyWebhookSignature(body, hmacSHA256Hex("wrong", cfg.CallbackURL+"|"+string(body)), ""))
	assert.False(t, adapter.VerifyWebhookSignature([]byte(`{"tampered":true}`), valid, ""))
	assert.False(t, adapter.VerifyWebhookSignature(body, "", ""))
	assert.False(t, adapter.VerifyWebhookSignature(body, "not-hex", ""))
}

func TestShopeeFactory_ParseWebhook(t *testing.T) {
	f := NewShopeeFactory(testDeps(nil, testNow))

	ref, err := f.ParseWebhook([]byte(`{"shop_id":100200,"code":3,"timestamp":1705312200,"data":{"ordersn":"A1","status":"PROCESSED"}}`))
	require.NoError(t, err)
	assert.Equal(t, "A1", ref.OrderID)
	assert.Equal(t, "100200", ref.ShopID)
	assert.Equal(t, "3", ref.EventType)

	ref, err = f.ParseWebhook([]byte(`{"code":0}`))
	require.NoError(t, err)
	assert.Empty(t, ref.OrderID)

	_, err = f.ParseWebhook([]byte(`nope`))
	assert.ErrorIs(t, err, integration.ErrWebhookPayload)
}
