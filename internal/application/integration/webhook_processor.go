package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// WebhookProcessorConfig holds configuration for the webhook event processor
type WebhookProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	VerifySignatures bool
}

// DefaultWebhookProcessorConfig returns default configuration
func DefaultWebhookProcessorConfig() WebhookProcessorConfig {
	return WebhookProcessorConfig{
		BatchSize:        50,
		PollInterval:     5 * time.Second,
		VerifySignatures: true,
	}
}

// ProcessorStatus is a snapshot of the processor counters
type ProcessorStatus struct {
	Running    bool       `json:"running"`
	LastTickAt *time.Time `json:"last_tick_at,omitempty"`
	Processed  int64      `json:"processed"`
	Created    int64      `json:"created"`
	Updated    int64      `json:"updated"`
	Skipped    int64      `json:"skipped"`
	Failed     int64      `json:"failed"`
	NoOrderID  int64      `json:"no_order_id"`
	LastError  string     `json:"last_error,omitempty"`
}

// WebhookEventProcessor drains the webhook event log in the background. Each
// event is resolved to an order, fetched from the platform and passed through
// SyncEngine.Upsert, then marked processed exactly once.
type WebhookEventProcessor struct {
	events   integration.WebhookEventRepository
	configs  integration.AdapterConfigRepository
	registry *integration.AdapterRegistry
	engine   *SyncEngine
	metrics  SyncMetrics
	config   WebhookProcessorConfig
	logger   *zap.Logger
	now      func() time.Time

	batchMu sync.Mutex

	mu     sync.Mutex
	status ProcessorStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWebhookEventProcessor creates a new webhook event processor
func NewWebhookEventProcessor(
	events integration.WebhookEventRepository,
	configs integration.AdapterConfigRepository,
	registry *integration.AdapterRegistry,
	engine *SyncEngine,
	metrics SyncMetrics,
	config WebhookProcessorConfig,
	logger *zap.Logger,
) *WebhookEventProcessor {
	defaults := DefaultWebhookProcessorConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookEventProcessor{
		events:   events,
		configs:  configs,
		registry: registry,
		engine:   engine,
		metrics:  metrics,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Start starts the background processing
func (p *WebhookEventProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.status.Running = true
	p.mu.Unlock()

	go p.processLoop(ctx, done)

	p.logger.Info("webhook event processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Bool("verify_signatures", p.config.VerifySignatures),
	)
	return nil
}

// Stop cancels the loop and waits for the batch in flight. When ctx expires
// first the loop is left to drain on its own and Start may be called again.
func (p *WebhookEventProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.status.Running = false
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		p.logger.Info("webhook event processor stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("webhook event processor stop timed out", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// Status returns a snapshot of the processor counters
func (p *WebhookEventProcessor) Status() ProcessorStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := p.status
	if p.status.LastTickAt != nil {
		at := *p.status.LastTickAt
		status.LastTickAt = &at
	}
	return status
}

func (p *WebhookEventProcessor) processLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("failed to process webhook batch", zap.Error(err))
			}
		}
	}
}

// ProcessBatch handles up to BatchSize unprocessed events, oldest first, and
// returns how many events this call marked processed
func (p *WebhookEventProcessor) ProcessBatch(ctx context.Context) (int, error) {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()

	now := p.now()
	p.mu.Lock()
	p.status.LastTickAt = &now
	p.mu.Unlock()

	pending, err := p.events.FindUnprocessed(ctx, p.config.BatchSize)
	if err != nil {
		p.recordError(err)
		return 0, fmt.Errorf("find unprocessed webhook events: %w", err)
	}

	adapters := make(map[uuid.UUID]integration.PlatformAdapter)
	marked := 0
	for i := range pending {
		if ctx.Err() != nil {
			return marked, ctx.Err()
		}
		event := &pending[i]
		result, errMsg := p.handle(ctx, event, adapters)
		ok, err := p.events.MarkProcessed(ctx, event.ID, result, errMsg, p.now())
		if err != nil {
			p.recordError(err)
			p.logger.Error("failed to mark webhook event processed",
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			// another worker recorded the outcome first
			continue
		}
		marked++
		p.record(ctx, event.Platform, result, errMsg)
	}
	return marked, nil
}

// Reprocess runs the handling of one event again. The outcome is recorded only
// when the event was still unprocessed; the stored order is protected by the
// natural key either way.
func (p *WebhookEventProcessor) Reprocess(ctx context.Context, id uuid.UUID) (integration.WebhookResult, string, error) {
	event, err := p.events.FindByID(ctx, id)
	if err != nil {
		return "", "", err
	}
	result, errMsg := p.handle(ctx, event, make(map[uuid.UUID]integration.PlatformAdapter))
	if !event.Processed {
		ok, err := p.events.MarkProcessed(ctx, event.ID, result, errMsg, p.now())
		if err != nil {
			return result, errMsg, err
		}
		if ok {
			p.record(ctx, event.Platform, result, errMsg)
		}
	}
	return result, errMsg, nil
}

// handle resolves and upserts the order of one event. Panics are recovered and
// reported as FAILED so one bad payload cannot stop the loop.
func (p *WebhookEventProcessor) handle(ctx context.Context, event *integration.WebhookEvent, adapters map[uuid.UUID]integration.PlatformAdapter) (result integration.WebhookResult, errMsg string) {
	ctx, span := telemetry.StartServiceSpan(ctx, "webhook_processor", "handle")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEventID, event.ID.String(),
		telemetry.SpanAttrPlatform, event.Platform.String(),
	)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while processing webhook event",
				zap.String("event_id", event.ID.String()),
				zap.Any("panic", r),
			)
			result = integration.WebhookResultFailed
			errMsg = fmt.Sprintf("panic: %v", r)
		}
		telemetry.SetAttribute(span, telemetry.SpanAttrOutcome, string(result))
	}()

	ref, err := p.registry.ParseWebhook(event.Platform, event.Payload)
	if err != nil {
		if errors.Is(err, integration.ErrWebhookPayload) {
			return integration.WebhookResultNoOrderID, err.Error()
		}
		telemetry.RecordError(span, err)
		return integration.WebhookResultFailed, err.Error()
	}
	if ref.OrderID == "" {
		return integration.WebhookResultNoOrderID, ""
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrPlatformOrderID, ref.OrderID)

	upserted, err := p.syncOrder(ctx, event, ref, adapters)
	if err != nil {
		telemetry.RecordError(span, err)
		p.logger.Warn("webhook event failed",
			zap.String("event_id", event.ID.String()),
			zap.String("platform", event.Platform.String()),
			zap.String("platform_order_id", ref.OrderID),
			zap.Error(err),
		)
		return integration.WebhookResultFailed, err.Error()
	}
	return upserted.Outcome.WebhookResult(), ""
}

func (p *WebhookEventProcessor) syncOrder(ctx context.Context, event *integration.WebhookEvent, ref integration.WebhookRef, adapters map[uuid.UUID]integration.PlatformAdapter) (*UpsertResult, error) {
	cfg, err := p.resolveConfig(ctx, event.Platform, ref.ShopID)
	if err != nil {
		return nil, err
	}

	adapter, ok := adapters[cfg.ID]
	if !ok {
		adapter, err = p.registry.NewAdapter(cfg)
		if err != nil {
			return nil, fmt.Errorf("build adapter: %w", err)
		}
		adapters[cfg.ID] = adapter
	}

	if p.config.VerifySignatures && !adapter.VerifyWebhookSignature(event.Payload, event.Signature, event.Timestamp) {
		return nil, integration.ErrPlatformInvalidSignature
	}
	if err := adapter.EnsureValidToken(ctx); err != nil {
		return nil, fmt.Errorf("token invalid: %w", err)
	}

	raw, err := adapter.FetchOrderDetail(ctx, ref.OrderID)
	if err != nil {
		return nil, fmt.Errorf("fetch detail: %w", err)
	}
	order, err := adapter.NormalizeOrder(raw)
	if err != nil {
		return nil, err
	}
	StampOrder(order, cfg)
	return p.engine.Upsert(ctx, order)
}

// resolveConfig finds the shop config by (platform, shop id), or the single
// enabled config of the platform when the payload carries no shop id
func (p *WebhookEventProcessor) resolveConfig(ctx context.Context, platform integration.Platform, shopID string) (*integration.PlatformAdapterConfig, error) {
	if shopID != "" {
		cfg, err := p.configs.FindByPlatformAndShop(ctx, platform, shopID)
		if err != nil {
			return nil, err
		}
		if !cfg.Enabled {
			return nil, fmt.Errorf("%w: %s", integration.ErrPlatformNotEnabled, cfg.ShopKey())
		}
		return cfg, nil
	}

	enabled, err := p.configs.FindEnabledByPlatform(ctx, platform)
	if err != nil {
		return nil, err
	}
	switch len(enabled) {
	case 0:
		return nil, fmt.Errorf("%w: no enabled %s shop", integration.ErrConfigNotFound, platform)
	case 1:
		return &enabled[0], nil
	default:
		return nil, fmt.Errorf("%w: %d enabled %s shops and no shop id in payload",
			integration.ErrConfigAmbiguous, len(enabled), platform)
	}
}

func (p *WebhookEventProcessor) record(ctx context.Context, platform integration.Platform, result integration.WebhookResult, errMsg string) {
	p.metrics.RecordWebhookEvent(ctx, platform.String(), result.String())

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Processed++
	switch result {
	case integration.WebhookResultCreated:
		p.status.Created++
	case integration.WebhookResultUpdated:
		p.status.Updated++
	case integration.WebhookResultSkipped:
		p.status.Skipped++
	case integration.WebhookResultNoOrderID:
		p.status.NoOrderID++
	default:
		p.status.Failed++
		p.status.LastError = errMsg
	}
}

func (p *WebhookEventProcessor) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.LastError = err.Error()
}
