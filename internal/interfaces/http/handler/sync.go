package handler

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appintegration "github.com/ordersync/backend/internal/application/integration"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/interfaces/http/dto"
	"github.com/ordersync/backend/internal/interfaces/http/middleware"
)

// SyncQueries is the read side of sync bookkeeping
type SyncQueries interface {
	ListJobs(ctx context.Context, filter integration.SyncJobFilter) (*appintegration.SyncJobListResponse, error)
	GetJob(ctx context.Context, id uuid.UUID) (*appintegration.SyncJobResponse, error)
	SyncStatus(ctx context.Context, configID uuid.UUID) (*appintegration.SyncStatusResponse, error)
}

// ManualSyncTrigger queues an out-of-schedule sync for one config
type ManualSyncTrigger interface {
	TriggerManualSync(ctx context.Context, configID uuid.UUID, from, to *time.Time) error
}

// SyncHandler serves sync job queries and the manual sync trigger
type SyncHandler struct {
	BaseHandler
	queries SyncQueries
	trigger ManualSyncTrigger
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(queries SyncQueries, trigger ManualSyncTrigger) *SyncHandler {
	return &SyncHandler{queries: queries, trigger: trigger}
}

// ListSyncJobsQuery filters GET /sync/jobs
type ListSyncJobsQuery struct {
	dto.ListRequest
	ConfigID string `form:"config_id" binding:"omitempty,uuid"`
	Platform string `form:"platform" binding:"omitempty,platform"`
	Status   string `form:"status" binding:"omitempty,oneof=RUNNING SUCCESS FAILED"`
}

// RunSyncRequest is the optional body of POST /sync/configs/:id/run
type RunSyncRequest struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

// RunSyncResponse acknowledges a queued manual sync
type RunSyncResponse struct {
	ConfigID uuid.UUID  `json:"config_id"`
	Queued   bool       `json:"queued"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
}

// ListJobs godoc
// @Summary      List sync jobs
// @Tags         sync
// @Produce      json
// @Param        config_id  query  string  false  "Adapter config ID"
// @Param        platform   query  string  false  "Platform"
// @Param        status     query  string  false  "RUNNING, SUCCESS or FAILED"
// @Param        page       query  int     false  "Page"
// @Param        page_size  query  int     false  "Page size"
// @Router       /api/v1/sync/jobs [get]
func (h *SyncHandler) ListJobs(c *gin.Context) {
	query := ListSyncJobsQuery{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	filter := integration.SyncJobFilter{
		Status:   integration.SyncJobStatus(query.Status),
		Page:     query.Page,
		PageSize: query.PageSize,
		OrderBy:  query.OrderBy,
		OrderDir: query.OrderDir,
	}
	if query.ConfigID != "" {
		id := uuid.MustParse(query.ConfigID)
		filter.ConfigID = &id
	}
	if query.Platform != "" {
		filter.Platform, _ = parsePlatform(query.Platform)
	}

	page, err := h.queries.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// GetJob godoc
// @Summary      Get a sync job
// @Tags         sync
// @Produce      json
// @Param        id  path  string  true  "Sync job ID"
// @Router       /api/v1/sync/jobs/{id} [get]
func (h *SyncHandler) GetJob(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	job, err := h.queries.GetJob(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// GetConfigStatus godoc
// @Summary      Sync status of one shop config
// @Tags         sync
// @Produce      json
// @Param        id  path  string  true  "Adapter config ID"
// @Router       /api/v1/sync/configs/{id}/status [get]
func (h *SyncHandler) GetConfigStatus(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	status, err := h.queries.SyncStatus(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// RunConfig godoc
// @Summary      Queue a manual sync
// @Description  Queues a sync of one shop config. from/to are optional RFC3339 timestamps.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        id       path  string          true   "Adapter config ID"
// @Param        request  body  RunSyncRequest  false  "Sync window"
// @Router       /api/v1/sync/configs/{id}/run [post]
func (h *SyncHandler) RunConfig(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req RunSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.ValidationError(c, []dto.ValidationDetail{{Field: "body", Message: "from and to must be RFC3339 timestamps"}})
		return
	}

	if err := h.trigger.TriggerManualSync(c.Request.Context(), id, req.From, req.To); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, RunSyncResponse{ConfigID: id, Queued: true, From: req.From, To: req.To})
}

// RegisterRoutes mounts the sync routes on the versioned API group
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sync := rg.Group("/sync")
	sync.GET("/jobs", h.ListJobs)
	sync.GET("/jobs/:id", h.GetJob)
	sync.GET("/configs/:id/status", h.GetConfigStatus)
	sync.POST("/configs/:id/run", h.RunConfig)
}

// parsePlatform accepts platform names in any case
func parsePlatform(s string) (integration.Platform, bool) {
	p := integration.Platform(strings.ToUpper(strings.TrimSpace(s)))
	return p, p.IsValid()
}
