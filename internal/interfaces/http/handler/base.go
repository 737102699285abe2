package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/domain/inventory"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/infrastructure/scheduler"
	"github.com/ordersync/backend/internal/interfaces/http/dto"
	"github.com/ordersync/backend/internal/interfaces/http/middleware"
)

// BaseHandler writes the dto.Response envelope for the API handlers
type BaseHandler struct{}

func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta writes one page of a list endpoint
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Accepted acknowledges work queued for later, such as a manual sync
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error writes an error body tagged with the request id
func (h *BaseHandler) Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// ErrorWithCode derives the status from code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.ErrorWithCode(c, dto.ErrCodeBadRequest, message)
}

func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.ErrorWithCode(c, dto.ErrCodeInternal, message)
}

// ValidationError rejects the request with per-field details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed", middleware.GetRequestID(c), details))
}

// errorMapping ties a sentinel error to the code and message shown to callers
type errorMapping struct {
	target  error
	code    string
	message string
}

var errorMappings = []errorMapping{
	{integration.ErrConfigNotFound, dto.ErrCodeNotFound, "Adapter config not found"},
	{integration.ErrSyncJobNotFound, dto.ErrCodeNotFound, "Sync job not found"},
	{integration.ErrWebhookEventNotFound, dto.ErrCodeNotFound, "Webhook event not found"},
	{integration.ErrOrderNotFound, dto.ErrCodeNotFound, "Order not found"},
	{integration.ErrPlatformNotSupported, dto.ErrCodePlatformUnsupported, "Platform not supported"},
	{integration.ErrPlatformNotEnabled, dto.ErrCodePlatformDisabled, "Adapter config is disabled"},
	{integration.ErrPlatformNotConfigured, dto.ErrCodeInsufficientConfig, "Adapter config is incomplete"},
	{integration.ErrSyncAlreadyRunning, dto.ErrCodeSyncRunning, "A sync is already running for this shop"},
	{scheduler.ErrSyncInvalidTimeRange, dto.ErrCodeInvalidTimeRange, "Invalid sync time range"},
	{scheduler.ErrJobQueueFull, dto.ErrCodeQueueFull, "Sync queue is full, try again later"},
	{scheduler.ErrSchedulerNotRunning, dto.ErrCodeUnavailable, "Sync scheduler is not running"},
	{inventory.ErrBomCycle, dto.ErrCodeBomCycle, "Bill of materials contains a cycle"},
}

// HandleError converts sentinel and domain errors to HTTP responses. Errors
// without a mapping are reported as internal errors without their text.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			h.ErrorWithCode(c, m.code, m.message)
			return
		}
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, domainErr.Message)
		return
	}

	_ = c.Error(err)
	h.InternalError(c, "An unexpected error occurred")
}

// parseUUIDParam reads a UUID path parameter, writing a 400 response on failure
func (h *BaseHandler) parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.ValidationError(c, []dto.ValidationDetail{{Field: name, Message: "Invalid UUID format"}})
		return uuid.Nil, false
	}
	return id, true
}
