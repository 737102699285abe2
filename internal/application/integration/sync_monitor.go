package integration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
)

// SyncMonitor answers dashboard queries about sync jobs and the webhook log.
// Every status read sweeps stale jobs first, so a crashed job is reported as
// FAILED and stops blocking new syncs.
type SyncMonitor struct {
	jobs       integration.SyncJobRepository
	events     integration.WebhookEventRepository
	configs    integration.AdapterConfigRepository
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewSyncMonitor creates a new SyncMonitor. staleAfter <= 0 uses the default.
func NewSyncMonitor(
	jobs integration.SyncJobRepository,
	events integration.WebhookEventRepository,
	configs integration.AdapterConfigRepository,
	staleAfter time.Duration,
	logger *zap.Logger,
) *SyncMonitor {
	if staleAfter <= 0 {
		staleAfter = integration.DefaultStaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncMonitor{
		jobs:       jobs,
		events:     events,
		configs:    configs,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// ExpireStaleJobs fails every RUNNING job older than the staleness threshold
func (m *SyncMonitor) ExpireStaleJobs(ctx context.Context) (int64, error) {
	now := m.now()
	expired, err := m.jobs.ExpireStale(ctx, now.Add(-m.staleAfter), now)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		m.logger.Warn("Expired stale sync jobs",
			zap.Int64("count", expired),
			zap.Duration("stale_after", m.staleAfter),
		)
	}
	return expired, nil
}

// SyncStatus reports the latest job of a config and whether a sync is running
func (m *SyncMonitor) SyncStatus(ctx context.Context, configID uuid.UUID) (*SyncStatusResponse, error) {
	cfg, err := m.configs.FindByID(ctx, configID)
	if err != nil {
		return nil, err
	}
	if _, err := m.ExpireStaleJobs(ctx); err != nil {
		return nil, err
	}

	resp := &SyncStatusResponse{
		ConfigID:   cfg.ID,
		Platform:   cfg.Platform,
		ShopID:     cfg.ShopID,
		Enabled:    cfg.Enabled,
		LastSyncAt: cfg.LastSyncAt,
	}
	latest, err := m.jobs.FindLatestByConfig(ctx, configID)
	if err != nil {
		if errors.Is(err, integration.ErrSyncJobNotFound) {
			return resp, nil
		}
		return nil, err
	}
	job := ToSyncJobResponse(latest, m.now())
	resp.LatestJob = &job
	resp.Running = latest.IsRunning()
	return resp, nil
}

// ListJobs returns a page of sync jobs, newest first
func (m *SyncMonitor) ListJobs(ctx context.Context, filter integration.SyncJobFilter) (*SyncJobListResponse, error) {
	if _, err := m.ExpireStaleJobs(ctx); err != nil {
		return nil, err
	}
	filter.Normalize()
	jobs, total, err := m.jobs.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := m.now()
	items := make([]SyncJobResponse, len(jobs))
	for i := range jobs {
		items[i] = ToSyncJobResponse(&jobs[i], now)
	}
	return &SyncJobListResponse{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

// GetJob returns one sync job
func (m *SyncMonitor) GetJob(ctx context.Context, id uuid.UUID) (*SyncJobResponse, error) {
	if _, err := m.ExpireStaleJobs(ctx); err != nil {
		return nil, err
	}
	job, err := m.jobs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToSyncJobResponse(job, m.now())
	return &resp, nil
}

// ListWebhookEvents returns a page of webhook events, newest first
func (m *SyncMonitor) ListWebhookEvents(ctx context.Context, filter integration.WebhookEventFilter) (*WebhookEventListResponse, error) {
	filter.Normalize()
	events, total, err := m.events.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]WebhookEventResponse, len(events))
	for i := range events {
		items[i] = ToWebhookEventResponse(&events[i])
	}
	return &WebhookEventListResponse{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

// WebhookEventCounts summarizes the webhook event log
func (m *SyncMonitor) WebhookEventCounts(ctx context.Context) (*WebhookStatsResponse, error) {
	counts, err := m.events.Counts(ctx)
	if err != nil {
		return nil, err
	}
	byResult := make(map[string]int64, len(counts.ByResult))
	for _, result := range integration.AllWebhookResults() {
		byResult[result.String()] = counts.ByResult[result]
	}
	return &WebhookStatsResponse{
		Total:       counts.Total,
		Unprocessed: counts.Unprocessed,
		ByResult:    byResult,
	}, nil
}
