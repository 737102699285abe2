package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appintegration "github.com/ordersync/backend/internal/application/integration"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/interfaces/http/dto"
	"github.com/ordersync/backend/internal/interfaces/http/middleware"
)

// MockWebhookQueries is a mock implementation of WebhookQueries
type MockWebhookQueries struct {
	mock.Mock
}

func (m *MockWebhookQueries) ListWebhookEvents(ctx context.Context, filter integration.WebhookEventFilter) (*appintegration.WebhookEventListResponse, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.WebhookEventListResponse), args.Error(1)
}

func (m *MockWebhookQueries) WebhookEventCounts(ctx context.Context) (*appintegration.WebhookStatsResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.WebhookStatsResponse), args.Error(1)
}

// MockProcessorControl is a mock implementation of WebhookProcessorControl
type MockProcessorControl struct {
	mock.Mock
}

func (m *MockProcessorControl) Status() appintegration.ProcessorStatus {
	args := m.Called()
	return args.Get(0).(appintegration.ProcessorStatus)
}

func (m *MockProcessorControl) Reprocess(ctx context.Context, id uuid.UUID) (integration.WebhookResult, string, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(integration.WebhookResult), args.String(1), args.Error(2)
}

// memoryEventStore records created events
type memoryEventStore struct {
	events []*integration.WebhookEvent
	err    error
}

func (s *memoryEventStore) Create(_ context.Context, event *integration.WebhookEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type staticClassifier struct {
	ref integration.WebhookRef
	err error
}

func (c staticClassifier) ParseWebhook(integration.Platform, []byte) (integration.WebhookRef, error) {
	return c.ref, c.err
}

func TestWebhookHandler_ListEvents(t *testing.T) {
	t.Run("filters", func(t *testing.T) {
		queries := new(MockWebhookQueries)
		queries.On("ListWebhookEvents", mock.Anything, mock.MatchedBy(func(f integration.WebhookEventFilter) bool {
			return f.Platform == integration.PlatformTikTok &&
				f.Processed != nil && !*f.Processed &&
				f.Result == "" && f.Page == 1 && f.PageSize == 20
		})).Return(&appintegration.WebhookEventListResponse{
			Items: []appintegration.WebhookEventResponse{{ID: uuid.New(), Platform: integration.PlatformTikTok}},
			Total: 1, Page: 1, PageSize: 20,
		}, nil)

		r := gin.New()
		NewWebhookHandler(queries, nil).RegisterRoutes(r.Group("/api/v1"))
		w := serve(r, http.MethodGet, "/api/v1/webhooks/events?platform=TikTok&processed=false", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(1), decodeResponse(t, w).Meta.Total)
		queries.AssertExpectations(t)
	})

	t.Run("result filter", func(t *testing.T) {
		queries := new(MockWebhookQueries)
		queries.On("ListWebhookEvents", mock.Anything, mock.MatchedBy(func(f integration.WebhookEventFilter) bool {
			return f.Result == integration.WebhookResultNoOrderID && f.Processed == nil
		})).Return(&appintegration.WebhookEventListResponse{Page: 1, PageSize: 20}, nil)

		r := gin.New()
		NewWebhookHandler(queries, nil).RegisterRoutes(r.Group("/api/v1"))
		w := serve(r, http.MethodGet, "/api/v1/webhooks/events?result=NO_ORDER_ID", "")

		assert.Equal(t, http.StatusOK, w.Code)
		queries.AssertExpectations(t)
	})

	for name, query := range map[string]string{
		"processed": "processed=maybe",
		"result":    "result=DONE",
		"platform":  "platform=ebay",
	} {
		t.Run("invalid "+name, func(t *testing.T) {
			r := gin.New()
			NewWebhookHandler(new(MockWebhookQueries), nil).RegisterRoutes(r.Group("/api/v1"))
			w := serve(r, http.MethodGet, "/api/v1/webhooks/events?"+query, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestWebhookHandler_StatsAndProcessor(t *testing.T) {
	queries := new(MockWebhookQueries)
	queries.On("WebhookEventCounts", mock.Anything).Return(&appintegration.WebhookStatsResponse{
		Total:       10,
		Unprocessed: 3,
		ByResult:    map[string]int64{"CREATED": 5, "SKIPPED": 2},
	}, nil)
	processor := new(MockProcessorControl)
	processor.On("Status").Return(appintegration.ProcessorStatus{Running: true, Processed: 7, Created: 5})

	r := gin.New()
	NewWebhookHandler(queries, processor).RegisterRoutes(r.Group("/api/v1"))

	w := serve(r, http.MethodGet, "/api/v1/webhooks/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, float64(3), stats["unprocessed"])

	w = serve(r, http.MethodGet, "/api/v1/webhooks/processor", "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, true, status["running"])
	assert.Equal(t, float64(7), status["processed"])
}

func TestWebhookHandler_Reprocess(t *testing.T) {
	eventID := uuid.New()
	missing := uuid.New()
	processor := new(MockProcessorControl)
	processor.On("Reprocess", mock.Anything, eventID).Return(integration.WebhookResultUpdated, "", nil)
	processor.On("Reprocess", mock.Anything, missing).Return(integration.WebhookResult(""), "", integration.ErrWebhookEventNotFound)

	r := gin.New()
	NewWebhookHandler(nil, processor).RegisterRoutes(r.Group("/api/v1"))

	w := serve(r, http.MethodPost, "/api/v1/webhooks/events/"+eventID.String()+"/reprocess", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "UPDATED", decodeResponse(t, w).Data.(map[string]any)["result"])

	w = serve(r, http.MethodPost, "/api/v1/webhooks/events/"+missing.String()+"/reprocess", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func newReceiverRouter(receiver *WebhookReceiver, maxBody int64) *gin.Engine {
	r := gin.New()
	root := r.Group("", middleware.BodyLimit(maxBody))
	receiver.RegisterRoutes(root)
	return r
}

func TestWebhookReceiver_Receive(t *testing.T) {
	receivedAt := time.Date(2025, 1, 15, 8, 30, 0, 0, time.UTC)

	t.Run("stores the event as received", func(t *testing.T) {
		store := &memoryEventStore{}
		receiver := NewWebhookReceiver(store, staticClassifier{ref: integration.WebhookRef{OrderID: "A1", EventType: "order_status_update"}}, nil)
		receiver.now = func() time.Time { return receivedAt }

		payload := `{"shop_id":1,"data":{"ordersn":"A1"}}`
		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopee", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "sig-123")
		req.Header.Set("X-Timestamp", "1736929800")
		req.Header.Set("Cookie", "session=secret")
		w := httptest.NewRecorder()
		newReceiverRouter(receiver, 1024).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, store.events, 1)
		event := store.events[0]
		assert.Equal(t, integration.PlatformShopee, event.Platform)
		assert.Equal(t, payload, string(event.Payload))
		assert.Equal(t, "sig-123", event.Signature)
		assert.Equal(t, "1736929800", event.Timestamp)
		assert.Equal(t, "order_status_update", event.EventType)
		assert.Equal(t, receivedAt, event.ReceivedAt)
		assert.False(t, event.Processed)
		assert.Equal(t, "application/json", event.Headers["Content-Type"])
		assert.NotContains(t, event.Headers, "Cookie")

		var ack WebhookAck
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
		assert.True(t, ack.Received)
		assert.Equal(t, event.ID, ack.EventID)
	})

	t.Run("lnwshop token and unparseable payload", func(t *testing.T) {
		store := &memoryEventStore{}
		receiver := NewWebhookReceiver(store, staticClassifier{err: errors.New("bad json")}, nil)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/lnwshop", strings.NewReader("not json"))
		req.Header.Set("X-Lnw-Token", "tok")
		req.Header.Set("Timestamp", "42")
		w := httptest.NewRecorder()
		newReceiverRouter(receiver, 1024).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, store.events, 1)
		assert.Equal(t, "tok", store.events[0].Signature)
		assert.Equal(t, "42", store.events[0].Timestamp)
		assert.Empty(t, store.events[0].EventType)
	})

	t.Run("fallback signature header", func(t *testing.T) {
		store := &memoryEventStore{}
		req := httptest.NewRequest(http.MethodPost, "/webhooks/lazada", strings.NewReader("{}"))
		req.Header.Set("X-Signature", "fallback")
		w := httptest.NewRecorder()
		newReceiverRouter(NewWebhookReceiver(store, nil, nil), 1024).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "fallback", store.events[0].Signature)
	})

	cases := []struct {
		name       string
		path       string
		body       string
		storeErr   error
		wantStatus int
		wantCode   string
	}{
		{"unknown platform", "/webhooks/amazon", "{}", nil, http.StatusNotFound, dto.ErrCodePlatformUnsupported},
		{"empty body", "/webhooks/tiktok", "", nil, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"body too large", "/webhooks/tiktok", strings.Repeat("x", 2048), nil, http.StatusRequestEntityTooLarge, dto.ErrCodePayloadTooLarge},
		{"store failure", "/webhooks/tiktok", "{}", errors.New("db down"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &memoryEventStore{err: tc.storeErr}
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			newReceiverRouter(NewWebhookReceiver(store, nil, nil), 1024).ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.wantCode, decodeResponse(t, w).Error.Code)
			assert.Empty(t, store.events)
		})
	}
}

func TestWebhookReceiver_StreamedBodyOverLimit(t *testing.T) {
	store := &memoryEventStore{}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopee", strings.NewReader(strings.Repeat("x", 2048)))
	req.ContentLength = -1
	w := httptest.NewRecorder()
	newReceiverRouter(NewWebhookReceiver(store, nil, nil), 1024).ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, store.events)
}
