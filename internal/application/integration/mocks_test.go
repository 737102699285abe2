package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/ordersync/backend/internal/domain/integration"
)

// MockOrderRepository is a mock implementation of OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByPlatformOrderID(ctx context.Context, platform integration.Platform, platformOrderID string) (*integration.CanonicalOrder, error) {
	args := m.Called(ctx, platform, platformOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.CanonicalOrder), args.Error(1)
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.CanonicalOrder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.CanonicalOrder), args.Error(1)
}

func (m *MockOrderRepository) InsertOrder(ctx context.Context, order *integration.CanonicalOrder) (bool, error) {
	args := m.Called(ctx, order)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) UpdateOrderStatus(ctx context.Context, order *integration.CanonicalOrder) (bool, error) {
	args := m.Called(ctx, order)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context, filter integration.OrderFilter) ([]integration.CanonicalOrder, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]integration.CanonicalOrder), args.Get(1).(int64), args.Error(2)
}

// MockAdapterConfigRepository is a mock implementation of AdapterConfigRepository
type MockAdapterConfigRepository struct {
	mock.Mock
}

func (m *MockAdapterConfigRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.PlatformAdapterConfig, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.PlatformAdapterConfig), args.Error(1)
}

func (m *MockAdapterConfigRepository) FindByPlatformAndShop(ctx context.Context, platform integration.Platform, shopID string) (*integration.PlatformAdapterConfig, error) {
	args := m.Called(ctx, platform, shopID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.PlatformAdapterConfig), args.Error(1)
}

func (m *MockAdapterConfigRepository) FindEnabled(ctx context.Context) ([]integration.PlatformAdapterConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.PlatformAdapterConfig), args.Error(1)
}

func (m *MockAdapterConfigRepository) FindEnabledByPlatform(ctx context.Context, platform integration.Platform) ([]integration.PlatformAdapterConfig, error) {
	args := m.Called(ctx, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.PlatformAdapterConfig), args.Error(1)
}

func (m *MockAdapterConfigRepository) Save(ctx context.Context, cfg *integration.PlatformAdapterConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

func (m *MockAdapterConfigRepository) UpdateTokens(ctx context.Context, id uuid.UUID, tokens *integration.TokenSet) error {
	args := m.Called(ctx, id, tokens)
	return args.Error(0)
}

func (m *MockAdapterConfigRepository) UpdateLastSyncAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// MockSyncJobRepository is a mock implementation of SyncJobRepository
type MockSyncJobRepository struct {
	mock.Mock
}

func (m *MockSyncJobRepository) Create(ctx context.Context, job *integration.SyncJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockSyncJobRepository) Update(ctx context.Context, job *integration.SyncJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockSyncJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncJob), args.Error(1)
}

func (m *MockSyncJobRepository) FindLatestByConfig(ctx context.Context, configID uuid.UUID) (*integration.SyncJob, error) {
	args := m.Called(ctx, configID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncJob), args.Error(1)
}

func (m *MockSyncJobRepository) FindRunningByConfig(ctx context.Context, configID uuid.UUID) ([]integration.SyncJob, error) {
	args := m.Called(ctx, configID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.SyncJob), args.Error(1)
}

func (m *MockSyncJobRepository) List(ctx context.Context, filter integration.SyncJobFilter) ([]integration.SyncJob, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]integration.SyncJob), args.Get(1).(int64), args.Error(2)
}

func (m *MockSyncJobRepository) ExpireStale(ctx context.Context, cutoff, now time.Time) (int64, error) {
	args := m.Called(ctx, cutoff, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockWebhookEventRepository is a mock implementation of WebhookEventRepository
type MockWebhookEventRepository struct {
	mock.Mock
}

func (m *MockWebhookEventRepository) Create(ctx context.Context, event *integration.WebhookEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockWebhookEventRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.WebhookEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.WebhookEvent), args.Error(1)
}

func (m *MockWebhookEventRepository) FindUnprocessed(ctx context.Context, limit int) ([]integration.WebhookEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.WebhookEvent), args.Error(1)
}

func (m *MockWebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, result integration.WebhookResult, errMsg string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, result, errMsg, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockWebhookEventRepository) List(ctx context.Context, filter integration.WebhookEventFilter) ([]integration.WebhookEvent, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]integration.WebhookEvent), args.Get(1).(int64), args.Error(2)
}

func (m *MockWebhookEventRepository) Counts(ctx context.Context) (*integration.WebhookEventCounts, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.WebhookEventCounts), args.Error(1)
}

// MockOrderDeductor is a mock implementation of OrderDeductor
type MockOrderDeductor struct {
	mock.Mock
}

func (m *MockOrderDeductor) Deduct(ctx context.Context, order *integration.CanonicalOrder) (bool, error) {
	args := m.Called(ctx, order)
	return args.Bool(0), args.Error(1)
}

// ---------------------------------------------------------------------------
// Fake adapter
// ---------------------------------------------------------------------------

// fakeAdapter serves canned pages and details. Raw payloads are the canonical
// status string; NormalizeOrder fails for payloads equal to "bad".
type fakeAdapter struct {
	platform   integration.Platform
	pages      []integration.OrderPage
	details    map[string]integration.RawOrder
	tokenErr   error
	pageErr    error
	validSig   string
	requests   []integration.FetchOrdersRequest
	detailHits []string
}

func (a *fakeAdapter) Platform() integration.Platform { return a.platform }

func (a *fakeAdapter) Authenticate(context.Context, string) (*integration.TokenSet, error) {
	return &integration.TokenSet{AccessToken: "granted", ExpiresAt: time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)}, nil
}

func (a *fakeAdapter) RefreshToken(context.Context) (*integration.TokenSet, error) {
	return &integration.TokenSet{AccessToken: "refreshed"}, nil
}

func (a *fakeAdapter) EnsureValidToken(context.Context) error { return a.tokenErr }

func (a *fakeAdapter) FetchOrders(_ context.Context, req *integration.FetchOrdersRequest) (*integration.OrderPage, error) {
	a.requests = append(a.requests, *req)
	if a.pageErr != nil {
		return nil, a.pageErr
	}
	i := 0
	if req.Cursor != "" {
		for n, c := range []string{"", "p2", "p3", "p4"} {
			if c == req.Cursor {
				i = n
			}
		}
	}
	if i >= len(a.pages) {
		return &integration.OrderPage{}, nil
	}
	page := a.pages[i]
	return &page, nil
}

func (a *fakeAdapter) FetchOrderDetail(_ context.Context, id string) (integration.RawOrder, error) {
	a.detailHits = append(a.detailHits, id)
	raw, ok := a.details[id]
	if !ok {
		return integration.RawOrder{}, &integration.PlatformAPIError{Platform: a.platform, Endpoint: "/detail", HTTPStatus: 404, Message: "not found"}
	}
	return raw, nil
}

func (a *fakeAdapter) NormalizeOrder(raw integration.RawOrder) (*integration.CanonicalOrder, error) {
	if string(raw.Payload) == "bad" {
		return nil, &integration.MappingError{Platform: a.platform, PlatformOrderID: raw.PlatformOrderID, Err: fakeErr("unexpected shape")}
	}
	return &integration.CanonicalOrder{
		Platform:        a.platform,
		PlatformOrderID: raw.PlatformOrderID,
		Status:          integration.CanonicalStatus(raw.Payload),
		RawStatus:       string(raw.Payload),
		Items: []integration.CanonicalOrderItem{
			{SKU: "SOAP-01", Quantity: 1},
		},
	}, nil
}

func (a *fakeAdapter) NormalizeStatus(raw string) integration.CanonicalStatus {
	return integration.StatusNew
}

func (a *fakeAdapter) VerifyWebhookSignature(_ []byte, signature, _ string) bool {
	return signature == a.validSig
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

type fakeFactory struct {
	adapter  *fakeAdapter
	builds   int
	buildErr error
}

func (f *fakeFactory) Platform() integration.Platform { return f.adapter.platform }

func (f *fakeFactory) New(*integration.PlatformAdapterConfig) (integration.PlatformAdapter, error) {
	f.builds++
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return f.adapter, nil
}

// ParseWebhook reads payloads of the form "order_id|shop_id"
func (f *fakeFactory) ParseWebhook(payload []byte) (integration.WebhookRef, error) {
	s := string(payload)
	if s == "{" {
		return integration.WebhookRef{}, integration.ErrWebhookPayload
	}
	if s == "panic" {
		panic("boom")
	}
	ref := integration.WebhookRef{}
	for i := 0; i < len(s); i++ {
		if s[i] == '|' {
			ref.OrderID, ref.ShopID = s[:i], s[i+1:]
			return ref, nil
		}
	}
	ref.OrderID = s
	return ref, nil
}

func rawOrder(id string, status integration.CanonicalStatus, hasDetail bool) integration.RawOrder {
	return integration.RawOrder{PlatformOrderID: id, Payload: []byte(status), HasDetail: hasDetail}
}

func testAdapterConfig() *integration.PlatformAdapterConfig {
	last := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	warehouseID := uuid.New()
	return &integration.PlatformAdapterConfig{
		ID:          uuid.New(),
		Platform:    integration.PlatformShopee,
		ShopID:      "100200",
		AppKey:      "2001887",
		AppSecret:   "secret",
		Enabled:     true,
		LastSyncAt:  &last,
		WarehouseID: &warehouseID,
	}
}
