package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// ErrPageLimitExceeded is returned when a platform keeps reporting more pages
// beyond SyncEngineConfig.MaxPages
var ErrPageLimitExceeded = errors.New("integration: sync page limit exceeded")

// OrderDeductor consumes shipment stock for an order. Deduct must be
// idempotent per order.
type OrderDeductor interface {
	Deduct(ctx context.Context, order *integration.CanonicalOrder) (bool, error)
}

// UpsertOutcome is what an upsert did to the stored order
type UpsertOutcome string

const (
	UpsertCreated UpsertOutcome = "CREATED"
	UpsertUpdated UpsertOutcome = "UPDATED"
	UpsertSkipped UpsertOutcome = "SKIPPED"
)

// WebhookResult maps the outcome onto the webhook event log
func (o UpsertOutcome) WebhookResult() integration.WebhookResult {
	switch o {
	case UpsertCreated:
		return integration.WebhookResultCreated
	case UpsertUpdated:
		return integration.WebhookResultUpdated
	default:
		return integration.WebhookResultSkipped
	}
}

// UpsertResult is the result of one upsert
type UpsertResult struct {
	Outcome UpsertOutcome
	// Order is the stored order; updates and stock-consuming skips reload it so
	// ID is the local one
	Order *integration.CanonicalOrder
	// Deducted is true when the order's stock is consumed after the call
	Deducted bool
	// DeductionErr is the deductor failure, which does not fail the upsert
	DeductionErr error
}

// SyncEngineConfig configures the sync engine
type SyncEngineConfig struct {
	// PageSize is the number of orders requested per page
	PageSize int
	// FetchDetail fetches order detail when a list page omits line items
	FetchDetail bool
	// Lookback is subtracted from last_sync_at to form the next window start
	Lookback time.Duration
	// InitialLookback is the window of a shop's first sync
	InitialLookback time.Duration
	// StaleAfter is how long a RUNNING job may live before it is expired
	StaleAfter time.Duration
	// MaxPages bounds one sync run; <= 0 means unbounded
	MaxPages int
}

// DefaultSyncEngineConfig returns the default sync engine configuration
func DefaultSyncEngineConfig() SyncEngineConfig {
	return SyncEngineConfig{
		PageSize:        50,
		FetchDetail:     true,
		Lookback:        10 * time.Minute,
		InitialLookback: 72 * time.Hour,
		StaleAfter:      integration.DefaultStaleAfter,
		MaxPages:        500,
	}
}

// SyncEngine pulls orders from a shop and upserts them. Upsert is the only
// writer of canonical order state; the webhook processor goes through it too.
type SyncEngine struct {
	config   SyncEngineConfig
	registry *integration.AdapterRegistry
	orders   integration.OrderRepository
	configs  integration.AdapterConfigRepository
	jobs     integration.SyncJobRepository
	deductor OrderDeductor
	metrics  SyncMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewSyncEngine creates a sync engine. deductor and metrics may be nil.
func NewSyncEngine(
	config SyncEngineConfig,
	registry *integration.AdapterRegistry,
	orders integration.OrderRepository,
	configs integration.AdapterConfigRepository,
	jobs integration.SyncJobRepository,
	deductor OrderDeductor,
	metrics SyncMetrics,
	logger *zap.Logger,
) *SyncEngine {
	defaults := DefaultSyncEngineConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.Lookback < 0 {
		config.Lookback = 0
	}
	if config.InitialLookback <= 0 {
		config.InitialLookback = defaults.InitialLookback
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncEngine{
		config:   config,
		registry: registry,
		orders:   orders,
		configs:  configs,
		jobs:     jobs,
		deductor: deductor,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Config returns the engine configuration
func (e *SyncEngine) Config() SyncEngineConfig {
	return e.config
}

// ---------------------------------------------------------------------------
// Sync
// ---------------------------------------------------------------------------

// Sync runs one polling job for cfg. from and to default to the window derived
// from the config's last sync. Per-order failures are counted and do not stop
// the run; the returned error is set only when the job was aborted.
// last_sync_at is written on every path once the job exists.
func (e *SyncEngine) Sync(ctx context.Context, cfg *integration.PlatformAdapterConfig, from, to *time.Time) (*integration.SyncStats, error) {
	if cfg == nil {
		return nil, integration.ErrPlatformNotConfigured
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "sync_engine", "sync")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPlatform, cfg.Platform.String(),
		telemetry.SpanAttrShopID, cfg.ShopID,
		telemetry.SpanAttrConfigID, cfg.ID.String(),
	)

	now := e.now()
	if err := e.ensureNotRunning(ctx, cfg, now); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	windowFrom, windowTo := cfg.SyncWindow(now, e.config.Lookback, e.config.InitialLookback)
	if from != nil {
		windowFrom = *from
	}
	if to != nil {
		windowTo = *to
	}

	job := integration.NewSyncJob(cfg, now)
	job.WindowFrom = &windowFrom
	job.WindowTo = &windowTo
	if err := e.jobs.Create(ctx, job); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("create sync job: %w", err)
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrJobID, job.ID.String())

	ctx, log := logger.WithShop(ctx, e.logger, cfg.ShopKey())
	ctx, log = logger.WithJobID(ctx, log, job.ID.String())
	log.Info("Sync started", zap.Time("from", windowFrom), zap.Time("to", windowTo))

	stats := &integration.SyncStats{}
	firstErr, err := e.run(ctx, cfg, windowFrom, windowTo, stats, log)
	if err != nil {
		job.RecordStats(*stats)
		job.Fail(err.Error(), e.now())
		e.finish(ctx, job, cfg, windowTo, log)
		log.Error("Sync aborted", zap.Error(err))
		telemetry.RecordError(span, err)
		return stats, err
	}

	job.Complete(*stats, firstErr, e.now())
	e.finish(ctx, job, cfg, windowTo, log)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrFetched, stats.Fetched,
		telemetry.SpanAttrErrors, stats.Errors,
	)
	log.Info("Sync finished",
		zap.String("status", job.Status.String()),
		zap.Int("fetched", stats.Fetched),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
	)
	return stats, nil
}

// ensureNotRunning expires stale jobs, then refuses to start while a fresh
// RUNNING job exists for the config
func (e *SyncEngine) ensureNotRunning(ctx context.Context, cfg *integration.PlatformAdapterConfig, now time.Time) error {
	if expired, err := e.jobs.ExpireStale(ctx, now.Add(-e.config.StaleAfter), now); err != nil {
		return fmt.Errorf("expire stale jobs: %w", err)
	} else if expired > 0 {
		e.logger.Warn("Expired stale sync jobs", zap.Int64("count", expired))
	}

	running, err := e.jobs.FindRunningByConfig(ctx, cfg.ID)
	if err != nil {
		return fmt.Errorf("find running jobs: %w", err)
	}
	if len(running) > 0 {
		return fmt.Errorf("%w: %s started at %s", integration.ErrSyncAlreadyRunning,
			cfg.ShopKey(), running[0].StartedAt.Format(time.RFC3339))
	}
	return nil
}

// run builds the adapter and walks every page of the window
func (e *SyncEngine) run(ctx context.Context, cfg *integration.PlatformAdapterConfig, from, to time.Time, stats *integration.SyncStats, log *zap.Logger) (firstErr, abortErr error) {
	adapter, err := e.registry.NewAdapter(cfg)
	if err != nil {
		return nil, fmt.Errorf("build adapter: %w", err)
	}
	if err := adapter.EnsureValidToken(ctx); err != nil {
		return nil, fmt.Errorf("token invalid: %w", err)
	}

	cursor := ""
	for page := 1; ; page++ {
		if e.config.MaxPages > 0 && page > e.config.MaxPages {
			return firstErr, fmt.Errorf("%w: %d pages", ErrPageLimitExceeded, e.config.MaxPages)
		}
		if err := ctx.Err(); err != nil {
			return firstErr, err
		}

		result, err := adapter.FetchOrders(ctx, &integration.FetchOrdersRequest{
			TimeFrom: &from,
			TimeTo:   &to,
			Cursor:   cursor,
			PageSize: e.config.PageSize,
		})
		if err != nil {
			return firstErr, fmt.Errorf("fetch page %d: %w", page, err)
		}
		log.Debug("Fetched order page",
			zap.Int("page", page),
			zap.Int("orders", len(result.Orders)),
			zap.Bool("has_more", result.HasMore),
		)
		telemetry.AddEvent(trace.SpanFromContext(ctx), "order_page_fetched",
			"page", page,
			"orders", len(result.Orders),
		)

		for _, raw := range result.Orders {
			stats.Fetched++
			upserted, err := e.syncOne(ctx, adapter, cfg, raw)
			if err != nil {
				stats.Errors++
				if firstErr == nil {
					firstErr = fmt.Errorf("order %s: %w", raw.PlatformOrderID, err)
				}
				log.Warn("Order sync failed",
					zap.String("platform_order_id", raw.PlatformOrderID),
					zap.Error(err),
				)
				continue
			}
			switch upserted.Outcome {
			case UpsertCreated:
				stats.Created++
			case UpsertUpdated:
				stats.Updated++
			default:
				stats.Skipped++
			}
		}

		if !result.HasMore || result.NextCursor == "" {
			return firstErr, nil
		}
		cursor = result.NextCursor
	}
}

// syncOne fetches detail when needed, normalizes and upserts one raw order
func (e *SyncEngine) syncOne(ctx context.Context, adapter integration.PlatformAdapter, cfg *integration.PlatformAdapterConfig, raw integration.RawOrder) (*UpsertResult, error) {
	if !raw.HasDetail && e.config.FetchDetail {
		detail, err := adapter.FetchOrderDetail(ctx, raw.PlatformOrderID)
		if err != nil {
			return nil, fmt.Errorf("fetch detail: %w", err)
		}
		raw = detail
	}
	order, err := adapter.NormalizeOrder(raw)
	if err != nil {
		return nil, err
	}
	StampOrder(order, cfg)
	return e.Upsert(ctx, order)
}

// finish persists the job and last_sync_at even when ctx is already done
func (e *SyncEngine) finish(ctx context.Context, job *integration.SyncJob, cfg *integration.PlatformAdapterConfig, windowTo time.Time, log *zap.Logger) {
	bg := context.WithoutCancel(ctx)
	if err := e.jobs.Update(bg, job); err != nil {
		log.Error("Failed to persist sync job", zap.Error(err))
	}
	if err := e.configs.UpdateLastSyncAt(bg, cfg.ID, windowTo); err != nil {
		log.Error("Failed to update last sync time", zap.Error(err))
	} else {
		cfg.LastSyncAt = &windowTo
	}
	e.metrics.RecordSyncJob(bg, cfg.Platform.String(), job.Status.String(), job.Duration(e.now()))
}

// StampOrder copies shop ownership from the config onto a normalized order
func StampOrder(order *integration.CanonicalOrder, cfg *integration.PlatformAdapterConfig) {
	if order == nil || cfg == nil {
		return
	}
	configID := cfg.ID
	order.ConfigID = &configID
	order.ShopID = cfg.ShopID
	if order.WarehouseID == nil && cfg.WarehouseID != nil {
		warehouseID := *cfg.WarehouseID
		order.WarehouseID = &warehouseID
	}
}

// ---------------------------------------------------------------------------
// Upsert
// ---------------------------------------------------------------------------

// Upsert inserts the order when its natural key is new, otherwise updates the
// status fields when the status changed, otherwise does nothing. Both steps
// are single statements guarded by the database, so concurrent upserts of the
// same order produce one row. Any outcome in a stock-consuming status runs the
// deductor, which is idempotent, so a missed or failed deduction is retried
// on the next sighting of the order.
func (e *SyncEngine) Upsert(ctx context.Context, order *integration.CanonicalOrder) (*UpsertResult, error) {
	if order == nil {
		return nil, integration.ErrOrderMissingID
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "sync_engine", "upsert")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPlatform, order.Platform.String(),
		telemetry.SpanAttrPlatformOrderID, order.PlatformOrderID,
		telemetry.SpanAttrOrderStatus, order.Status.String(),
	)

	inserted, err := e.orders.InsertOrder(ctx, order)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("insert order %s: %w", order.NaturalKey(), err)
	}

	result := &UpsertResult{Outcome: UpsertCreated, Order: order}
	if !inserted {
		updated, err := e.orders.UpdateOrderStatus(ctx, order)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("update order %s: %w", order.NaturalKey(), err)
		}
		result.Outcome = UpsertUpdated
		if !updated {
			result.Outcome = UpsertSkipped
			if e.deductor == nil || !order.Status.ConsumesStock() {
				telemetry.SetAttribute(span, telemetry.SpanAttrOutcome, string(result.Outcome))
				e.metrics.RecordOrderOutcome(ctx, order.Platform.String(), string(result.Outcome))
				return result, nil
			}
		}

		stored, err := e.orders.FindByPlatformOrderID(ctx, order.Platform, order.PlatformOrderID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("reload order %s: %w", order.NaturalKey(), err)
		}
		result.Order = stored
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrOutcome, string(result.Outcome),
		telemetry.SpanAttrOrderID, result.Order.ID.String(),
	)
	e.metrics.RecordOrderOutcome(ctx, order.Platform.String(), string(result.Outcome))

	if e.deductor != nil && result.Order.Status.ConsumesStock() {
		e.deduct(ctx, result)
	}
	return result, nil
}

func (e *SyncEngine) deduct(ctx context.Context, result *UpsertResult) {
	order := result.Order
	deducted, err := e.deductor.Deduct(ctx, order)
	e.metrics.RecordDeduction(ctx, order.Platform.String(), err)
	if err != nil {
		result.DeductionErr = err
		e.logger.Error("Stock deduction failed",
			zap.String("platform", order.Platform.String()),
			zap.String("platform_order_id", order.PlatformOrderID),
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return
	}
	result.Deducted = deducted
	if !deducted {
		e.logger.Warn("Order has no stock to deduct",
			zap.String("platform", order.Platform.String()),
			zap.String("platform_order_id", order.PlatformOrderID),
			zap.String("order_id", order.ID.String()),
			zap.Int("items", len(order.Items)),
		)
	}
}
