package integration

import (
	"time"

	"github.com/google/uuid"

	"github.com/ordersync/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Sync Job DTOs
// ---------------------------------------------------------------------------

// SyncJobResponse represents a sync job in API responses
type SyncJobResponse struct {
	ID           uuid.UUID                 `json:"id"`
	ConfigID     uuid.UUID                 `json:"config_id"`
	Platform     integration.Platform      `json:"platform"`
	ShopID       string                    `json:"shop_id"`
	Status       integration.SyncJobStatus `json:"status"`
	StartedAt    time.Time                 `json:"started_at"`
	FinishedAt   *time.Time                `json:"finished_at,omitempty"`
	WindowFrom   *time.Time                `json:"window_from,omitempty"`
	WindowTo     *time.Time                `json:"window_to,omitempty"`
	DurationMs   int64                     `json:"duration_ms"`
	Fetched      int                       `json:"fetched"`
	Created      int                       `json:"created"`
	Updated      int                       `json:"updated"`
	Skipped      int                       `json:"skipped"`
	Errors       int                       `json:"errors"`
	ErrorMessage string                    `json:"error_message,omitempty"`
}

// ToSyncJobResponse converts a domain SyncJob to a response DTO
func ToSyncJobResponse(job *integration.SyncJob, now time.Time) SyncJobResponse {
	return SyncJobResponse{
		ID:           job.ID,
		ConfigID:     job.ConfigID,
		Platform:     job.Platform,
		ShopID:       job.ShopID,
		Status:       job.Status,
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
		WindowFrom:   job.WindowFrom,
		WindowTo:     job.WindowTo,
		DurationMs:   job.Duration(now).Milliseconds(),
		Fetched:      job.Fetched,
		Created:      job.Created,
		Updated:      job.Updated,
		Skipped:      job.Skipped,
		Errors:       job.Errors,
		ErrorMessage: job.ErrorMessage,
	}
}

// SyncJobListResponse is a page of sync jobs
type SyncJobListResponse struct {
	Items    []SyncJobResponse `json:"items"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// SyncStatusResponse is the sync state of one shop config
type SyncStatusResponse struct {
	ConfigID   uuid.UUID            `json:"config_id"`
	Platform   integration.Platform `json:"platform"`
	ShopID     string               `json:"shop_id"`
	Enabled    bool                 `json:"enabled"`
	Running    bool                 `json:"running"`
	LastSyncAt *time.Time           `json:"last_sync_at,omitempty"`
	LatestJob  *SyncJobResponse     `json:"latest_job,omitempty"`
}

// SyncStatsResponse is the result of a manual sync
type SyncStatsResponse struct {
	Fetched int `json:"fetched"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// ToSyncStatsResponse converts SyncStats to a response DTO
func ToSyncStatsResponse(stats *integration.SyncStats) SyncStatsResponse {
	if stats == nil {
		return SyncStatsResponse{}
	}
	return SyncStatsResponse{
		Fetched: stats.Fetched,
		Created: stats.Created,
		Updated: stats.Updated,
		Skipped: stats.Skipped,
		Errors:  stats.Errors,
	}
}

// ---------------------------------------------------------------------------
// Webhook DTOs
// ---------------------------------------------------------------------------

// WebhookEventResponse represents a webhook event in API responses. The raw
// payload is omitted from listings.
type WebhookEventResponse struct {
	ID           uuid.UUID                 `json:"id"`
	Platform     integration.Platform      `json:"platform"`
	EventType    string                    `json:"event_type,omitempty"`
	ReceivedAt   time.Time                 `json:"received_at"`
	Processed    bool                      `json:"processed"`
	ProcessedAt  *time.Time                `json:"processed_at,omitempty"`
	Result       integration.WebhookResult `json:"result,omitempty"`
	ErrorMessage string                    `json:"error_message,omitempty"`
	PayloadBytes int                       `json:"payload_bytes"`
}

// ToWebhookEventResponse converts a domain WebhookEvent to a response DTO
func ToWebhookEventResponse(e *integration.WebhookEvent) WebhookEventResponse {
	return WebhookEventResponse{
		ID:           e.ID,
		Platform:     e.Platform,
		EventType:    e.EventType,
		ReceivedAt:   e.ReceivedAt,
		Processed:    e.Processed,
		ProcessedAt:  e.ProcessedAt,
		Result:       e.Result,
		ErrorMessage: e.ErrorMessage,
		PayloadBytes: len(e.Payload),
	}
}

// WebhookEventListResponse is a page of webhook events
type WebhookEventListResponse struct {
	Items    []WebhookEventResponse `json:"items"`
	Total    int64                  `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
}

// WebhookStatsResponse summarizes the webhook event log
type WebhookStatsResponse struct {
	Total       int64            `json:"total"`
	Unprocessed int64            `json:"unprocessed"`
	ByResult    map[string]int64 `json:"by_result"`
}
