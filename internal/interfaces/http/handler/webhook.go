package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appintegration "github.com/ordersync/backend/internal/application/integration"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/interfaces/http/dto"
	"github.com/ordersync/backend/internal/interfaces/http/middleware"
)

// WebhookQueries is the read side of the webhook event log
type WebhookQueries interface {
	ListWebhookEvents(ctx context.Context, filter integration.WebhookEventFilter) (*appintegration.WebhookEventListResponse, error)
	WebhookEventCounts(ctx context.Context) (*appintegration.WebhookStatsResponse, error)
}

// WebhookProcessorControl exposes the background processor to operators
type WebhookProcessorControl interface {
	Status() appintegration.ProcessorStatus
	Reprocess(ctx context.Context, id uuid.UUID) (integration.WebhookResult, string, error)
}

// WebhookHandler serves the webhook event log to operators
type WebhookHandler struct {
	BaseHandler
	queries   WebhookQueries
	processor WebhookProcessorControl
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(queries WebhookQueries, processor WebhookProcessorControl) *WebhookHandler {
	return &WebhookHandler{queries: queries, processor: processor}
}

// ListWebhookEventsQuery filters GET /webhooks/events
type ListWebhookEventsQuery struct {
	dto.ListRequest
	Platform  string `form:"platform" binding:"omitempty,platform"`
	Processed string `form:"processed" binding:"omitempty,boolean"`
	Result    string `form:"result" binding:"omitempty,oneof=NO_ORDER_ID CREATED UPDATED SKIPPED FAILED"`
}

// ReprocessResponse is the outcome of handling one event again
type ReprocessResponse struct {
	EventID      uuid.UUID                 `json:"event_id"`
	Result       integration.WebhookResult `json:"result"`
	ErrorMessage string                    `json:"error_message,omitempty"`
}

// ListEvents godoc
// @Summary      List webhook events
// @Tags         webhooks
// @Produce      json
// @Param        platform   query  string  false  "Platform"
// @Param        processed  query  bool    false  "Processed flag"
// @Param        result     query  string  false  "Processing result"
// @Router       /api/v1/webhooks/events [get]
func (h *WebhookHandler) ListEvents(c *gin.Context) {
	query := ListWebhookEventsQuery{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	filter := integration.WebhookEventFilter{
		Result:   integration.WebhookResult(query.Result),
		Page:     query.Page,
		PageSize: query.PageSize,
		OrderBy:  query.OrderBy,
		OrderDir: query.OrderDir,
	}
	if query.Platform != "" {
		filter.Platform, _ = parsePlatform(query.Platform)
	}
	if query.Processed != "" {
		processed, _ := strconv.ParseBool(query.Processed)
		filter.Processed = &processed
	}

	page, err := h.queries.ListWebhookEvents(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Stats godoc
// @Summary      Webhook event counts
// @Tags         webhooks
// @Produce      json
// @Router       /api/v1/webhooks/stats [get]
func (h *WebhookHandler) Stats(c *gin.Context) {
	stats, err := h.queries.WebhookEventCounts(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// ProcessorStatus godoc
// @Summary      Webhook processor counters
// @Tags         webhooks
// @Produce      json
// @Router       /api/v1/webhooks/processor [get]
func (h *WebhookHandler) ProcessorStatus(c *gin.Context) {
	h.Success(c, h.processor.Status())
}

// Reprocess godoc
// @Summary      Handle one webhook event again
// @Tags         webhooks
// @Produce      json
// @Param        id  path  string  true  "Webhook event ID"
// @Router       /api/v1/webhooks/events/{id}/reprocess [post]
func (h *WebhookHandler) Reprocess(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	result, errMsg, err := h.processor.Reprocess(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ReprocessResponse{EventID: id, Result: result, ErrorMessage: errMsg})
}

// RegisterRoutes mounts the operator webhook routes on the versioned API group
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	webhooks := rg.Group("/webhooks")
	webhooks.GET("/events", h.ListEvents)
	webhooks.POST("/events/:id/reprocess", h.Reprocess)
	webhooks.GET("/stats", h.Stats)
	webhooks.GET("/processor", h.ProcessorStatus)
}

// ---------------------------------------------------------------------------
// Receiver
// ---------------------------------------------------------------------------

// WebhookEventStore persists inbound events
type WebhookEventStore interface {
	Create(ctx context.Context, event *integration.WebhookEvent) error
}

// WebhookClassifier names the event type of a payload. It must not have side
// effects; a failure leaves the event type empty.
type WebhookClassifier interface {
	ParseWebhook(platform integration.Platform, payload []byte) (integration.WebhookRef, error)
}

// signatureHeaders lists where each platform puts its request signature
var signatureHeaders = map[integration.Platform]string{
	integration.PlatformShopee:  "Authorization",
	integration.PlatformLazada:  "Authorization",
	integration.PlatformTikTok:  "Authorization",
	integration.PlatformLnwShop: "X-Lnw-Token",
}

const fallbackSignatureHeader = "X-Signature"

// WebhookReceiver accepts marketplace notifications. It only records them;
// the event processor does the rest.
type WebhookReceiver struct {
	BaseHandler
	store      WebhookEventStore
	classifier WebhookClassifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewWebhookReceiver creates a receiver. classifier may be nil.
func NewWebhookReceiver(store WebhookEventStore, classifier WebhookClassifier, logger *zap.Logger) *WebhookReceiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookReceiver{
		store:      store,
		classifier: classifier,
		logger:     logger,
		now:        time.Now,
	}
}

// WebhookAck is returned to the platform once the event is stored
type WebhookAck struct {
	Received bool      `json:"received"`
	EventID  uuid.UUID `json:"event_id"`
}

// Receive godoc
// @Summary      Receive a marketplace webhook
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        platform  path  string  true  "shopee, lazada, tiktok or lnwshop"
// @Router       /webhooks/{platform} [post]
func (r *WebhookReceiver) Receive(c *gin.Context) {
	platform, ok := parsePlatform(c.Param("platform"))
	if !ok {
		r.ErrorWithCode(c, dto.ErrCodePlatformUnsupported, "Unsupported platform: "+c.Param("platform"))
		return
	}
	c.Set(middleware.PlatformKey, string(platform))

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			r.ErrorWithCode(c, dto.ErrCodePayloadTooLarge, "Webhook body too large")
			return
		}
		r.BadRequest(c, "Failed to read webhook body")
		return
	}
	if len(payload) == 0 {
		r.BadRequest(c, "Webhook body is empty")
		return
	}

	event := integration.NewWebhookEvent(
		platform,
		payload,
		captureHeaders(c.Request.Header),
		signatureOf(platform, c.Request.Header),
		timestampOf(c.Request.Header),
		r.now(),
	)
	if r.classifier != nil {
		if ref, err := r.classifier.ParseWebhook(platform, payload); err == nil {
			event.EventType = ref.EventType
		}
	}

	if err := r.store.Create(c.Request.Context(), event); err != nil {
		logger.WithLogger(c.Request.Context(), r.logger).Error("Failed to store webhook event",
			zap.String("platform", string(platform)),
			zap.Error(err),
		)
		r.InternalError(c, "Failed to store webhook event")
		return
	}

	c.JSON(http.StatusOK, WebhookAck{Received: true, EventID: event.ID})
}

// RegisterRoutes mounts the receiver on an unversioned group
func (r *WebhookReceiver) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/:platform", r.Receive)
}

// captureHeaders flattens request headers, dropping cookies
func captureHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if strings.EqualFold(name, "Cookie") {
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func signatureOf(platform integration.Platform, h http.Header) string {
	if name, ok := signatureHeaders[platform]; ok {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return h.Get(fallbackSignatureHeader)
}

func timestampOf(h http.Header) string {
	if v := h.Get("X-Timestamp"); v != "" {
		return v
	}
	return h.Get("Timestamp")
}
