package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SyncMetrics records order sync, webhook and inventory deduction outcomes.
// It satisfies the application layer's metrics port.
type SyncMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	syncJobTotal       *Counter
	orderOutcomeTotal  *Counter
	webhookEventTotal  *Counter
	deductionTotal     *Counter
	syncJobDurationSec *Histogram

	// Gauge metrics (point-in-time values)
	webhookBacklog  *Gauge
	runningSyncJobs *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	backlogProvider BacklogProvider
}

// BacklogProvider reports queue depths for periodic collection.
type BacklogProvider interface {
	// CountUnprocessedWebhooks returns unprocessed webhook events per platform
	CountUnprocessedWebhooks(ctx context.Context) (map[string]int64, error)

	// CountRunningSyncJobs returns RUNNING sync jobs per platform
	CountRunningSyncJobs(ctx context.Context) (map[string]int64, error)
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	BacklogProvider BacklogProvider
}

// NewSyncMetrics creates a new SyncMetrics instance.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SyncMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		stopChan:        make(chan struct{}),
		backlogProvider: cfg.BacklogProvider,
	}

	var err error

	sm.syncJobTotal, err = NewCounter(cfg.Meter,
		"ordersync_sync_job_total",
		"Total number of finished sync jobs",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	sm.orderOutcomeTotal, err = NewCounter(cfg.Meter,
		"ordersync_order_upsert_total",
		"Total number of canonical order upserts by outcome",
		"{orders}",
	)
	if err != nil {
		return nil, err
	}

	sm.webhookEventTotal, err = NewCounter(cfg.Meter,
		"ordersync_webhook_event_total",
		"Total number of processed webhook events by result",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	sm.deductionTotal, err = NewCounter(cfg.Meter,
		"ordersync_inventory_deduction_total",
		"Total number of inventory deduction attempts",
		"{deductions}",
	)
	if err != nil {
		return nil, err
	}

	sm.syncJobDurationSec, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "ordersync_sync_job_duration_seconds",
		Description: "Wall time of a sync job",
		Unit:        "s",
		Boundaries:  SyncJobDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	sm.webhookBacklog, err = NewGauge(cfg.Meter,
		"ordersync_webhook_backlog",
		"Number of webhook events waiting to be processed",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	sm.runningSyncJobs, err = NewGauge(cfg.Meter,
		"ordersync_sync_jobs_running",
		"Number of sync jobs currently in RUNNING state",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// RecordSyncJob records a finished sync job and its duration.
func (sm *SyncMetrics) RecordSyncJob(ctx context.Context, platform, status string, duration time.Duration) {
	attrs := []attribute.KeyValue{AttrPlatform.String(platform), AttrSyncStatus.String(status)}
	sm.syncJobTotal.Inc(ctx, attrs...)
	sm.syncJobDurationSec.RecordDuration(ctx, duration, attrs...)
}

// RecordOrderOutcome records one upsert outcome (created, updated, skipped, error).
func (sm *SyncMetrics) RecordOrderOutcome(ctx context.Context, platform, outcome string) {
	sm.orderOutcomeTotal.Inc(ctx,
		AttrPlatform.String(platform),
		AttrOrderOutcome.String(outcome),
	)
}

// RecordWebhookEvent records the terminal result of one webhook event.
func (sm *SyncMetrics) RecordWebhookEvent(ctx context.Context, platform, result string) {
	sm.webhookEventTotal.Inc(ctx,
		AttrPlatform.String(platform),
		AttrWebhookResult.String(result),
	)
}

// RecordDeduction records a deduction attempt; a nil err counts as success.
func (sm *SyncMetrics) RecordDeduction(ctx context.Context, platform string, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}
	sm.deductionTotal.Inc(ctx,
		AttrPlatform.String(platform),
		AttrDeductResult.String(result),
	)
}

// StartPeriodicCollection starts periodic collection of backlog gauges.
// This is non-blocking - use Stop() to stop collection.
func (sm *SyncMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	sm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}
		go sm.runPeriodicCollection(ctx, interval)
	})
}

func (sm *SyncMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sm.collectBacklog(ctx)

	for {
		select {
		case <-sm.stopChan:
			sm.logger.Info("Stopping periodic sync metrics collection")
			return
		case <-ctx.Done():
			sm.logger.Info("Context cancelled, stopping periodic sync metrics collection")
			return
		case <-ticker.C:
			sm.collectBacklog(ctx)
		}
	}
}

func (sm *SyncMetrics) collectBacklog(ctx context.Context) {
	if sm.backlogProvider == nil {
		sm.logger.Debug("No backlog provider configured, skipping backlog collection")
		return
	}

	pending, err := sm.backlogProvider.CountUnprocessedWebhooks(ctx)
	if err != nil {
		sm.logger.Warn("Failed to count unprocessed webhook events", zap.Error(err))
	} else {
		for platform, n := range pending {
			sm.webhookBacklog.Record(ctx, n, AttrPlatform.String(platform))
		}
	}

	running, err := sm.backlogProvider.CountRunningSyncJobs(ctx)
	if err != nil {
		sm.logger.Warn("Failed to count running sync jobs", zap.Error(err))
	} else {
		for platform, n := range running {
			sm.runningSyncJobs.Record(ctx, n, AttrPlatform.String(platform))
		}
	}
}

// Stop stops the periodic collection.
func (sm *SyncMetrics) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
