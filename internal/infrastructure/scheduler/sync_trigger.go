package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
)

// MaxManualWindow caps a manual sync window. Shopee rejects order list
// ranges longer than 15 days.
const MaxManualWindow = 15 * 24 * time.Hour

// ConfigSource lists shop configurations
type ConfigSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*integration.PlatformAdapterConfig, error)
	FindEnabled(ctx context.Context) ([]integration.PlatformAdapterConfig, error)
}

// JobSubmitter accepts sync requests
type JobSubmitter interface {
	Submit(req SyncRequest) error
}

// ---------------------------------------------------------------------------
// SyncTriggerConfig
// ---------------------------------------------------------------------------

// SyncTriggerConfig holds configuration for the sync trigger
type SyncTriggerConfig struct {
	// CheckInterval is how often enabled configs are checked
	CheckInterval time.Duration

	// DefaultSyncInterval applies to configs without sync_interval_minutes
	DefaultSyncInterval time.Duration
}

// DefaultSyncTriggerConfig returns default configuration
func DefaultSyncTriggerConfig() SyncTriggerConfig {
	return SyncTriggerConfig{
		CheckInterval:       time.Minute,
		DefaultSyncInterval: 15 * time.Minute,
	}
}

// ---------------------------------------------------------------------------
// SyncTrigger
// ---------------------------------------------------------------------------

// SyncTrigger submits a sync for every enabled shop whose interval elapsed
type SyncTrigger struct {
	config    SyncTriggerConfig
	scheduler JobSubmitter
	configs   ConfigSource
	logger    *zap.Logger
	now       func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// last scheduled time per shop key, to avoid duplicate scheduling
	lastScheduledMu sync.RWMutex
	lastScheduled   map[string]time.Time
}

// NewSyncTrigger creates a new sync trigger
func NewSyncTrigger(config SyncTriggerConfig, scheduler JobSubmitter, configs ConfigSource, logger *zap.Logger) *SyncTrigger {
	defaults := DefaultSyncTriggerConfig()
	if config.CheckInterval <= 0 {
		config.CheckInterval = defaults.CheckInterval
	}
	if config.DefaultSyncInterval <= 0 {
		config.DefaultSyncInterval = defaults.DefaultSyncInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncTrigger{
		config:        config,
		scheduler:     scheduler,
		configs:       configs,
		logger:        logger,
		now:           time.Now,
		lastScheduled: make(map[string]time.Time),
	}
}

// Start starts the trigger loop
func (c *SyncTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}
	c.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Sync trigger started",
		zap.Duration("check_interval", c.config.CheckInterval),
		zap.Duration("default_sync_interval", c.config.DefaultSyncInterval),
	)
	return nil
}

// Stop stops the trigger loop
func (c *SyncTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Sync trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SyncTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	c.checkAndSchedule(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndSchedule(ctx)
		}
	}
}

// checkAndSchedule submits every enabled config that is due and returns
// how many were submitted
func (c *SyncTrigger) checkAndSchedule(ctx context.Context) int {
	configs, err := c.configs.FindEnabled(ctx)
	if err != nil {
		c.logger.Error("Failed to get enabled shop configs", zap.Error(err))
		return 0
	}
	if len(configs) == 0 {
		c.logger.Debug("No enabled shop configs found")
		return 0
	}

	now := c.now()
	submitted := 0
	for i := range configs {
		cfg := &configs[i]
		if !cfg.Enabled || !c.isDue(cfg, now) {
			continue
		}

		if err := c.scheduler.Submit(SyncRequest{Config: cfg, SubmittedAt: now}); err != nil {
			c.logger.Warn("Failed to schedule sync job",
				zap.String("shop", cfg.ShopKey()),
				zap.Error(err),
			)
			continue
		}
		c.markScheduled(cfg.ShopKey(), now)
		submitted++
	}

	if submitted > 0 {
		c.logger.Debug("Scheduled sync jobs", zap.Int("count", submitted), zap.Int("configs", len(configs)))
	}
	return submitted
}

// isDue reports whether neither a recent schedule nor a recent sync covers
// the config's interval
func (c *SyncTrigger) isDue(cfg *integration.PlatformAdapterConfig, now time.Time) bool {
	interval := cfg.SyncInterval(c.config.DefaultSyncInterval)

	c.lastScheduledMu.RLock()
	last, scheduled := c.lastScheduled[cfg.ShopKey()]
	c.lastScheduledMu.RUnlock()
	if scheduled && now.Sub(last) < interval {
		return false
	}

	if cfg.LastSyncAt != nil && now.Sub(*cfg.LastSyncAt) < interval {
		return false
	}
	return true
}

func (c *SyncTrigger) markScheduled(key string, t time.Time) {
	c.lastScheduledMu.Lock()
	c.lastScheduled[key] = t
	c.lastScheduledMu.Unlock()
}

// TriggerManualSync queues an immediate sync of one config. from and to are
// optional; when both are set the window must be ordered and at most
// MaxManualWindow long.
func (c *SyncTrigger) TriggerManualSync(ctx context.Context, configID uuid.UUID, from, to *time.Time) error {
	if err := validateWindow(from, to, c.now()); err != nil {
		return err
	}

	cfg, err := c.configs.FindByID(ctx, configID)
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		return fmt.Errorf("%w: %s", integration.ErrPlatformNotEnabled, cfg.ShopKey())
	}

	c.logger.Info("Manual sync triggered",
		zap.String("shop", cfg.ShopKey()),
		zap.Timep("from", from),
		zap.Timep("to", to),
	)

	if err := c.scheduler.Submit(SyncRequest{Config: cfg, From: from, To: to, Manual: true, SubmittedAt: c.now()}); err != nil {
		return err
	}
	c.markScheduled(cfg.ShopKey(), c.now())
	return nil
}

func validateWindow(from, to *time.Time, now time.Time) error {
	end := now
	if to != nil {
		end = *to
	}
	if from == nil {
		return nil
	}
	if from.After(end) {
		return fmt.Errorf("%w: from %s is after to %s", ErrSyncInvalidTimeRange,
			from.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if end.Sub(*from) > MaxManualWindow {
		return fmt.Errorf("%w: window longer than %s", ErrSyncInvalidTimeRange, MaxManualWindow)
	}
	return nil
}

// TriggerStats is a snapshot of the trigger state
type TriggerStats struct {
	Running       bool                 `json:"running"`
	CheckInterval string               `json:"check_interval"`
	LastScheduled map[string]time.Time `json:"last_scheduled"`
}

// Stats returns the trigger state
func (c *SyncTrigger) Stats() TriggerStats {
	c.mu.Lock()
	running := c.isRunning
	c.mu.Unlock()

	c.lastScheduledMu.RLock()
	defer c.lastScheduledMu.RUnlock()

	last := make(map[string]time.Time, len(c.lastScheduled))
	for k, t := range c.lastScheduled {
		last[k] = t
	}
	return TriggerStats{
		Running:       running,
		CheckInterval: c.config.CheckInterval.String(),
		LastScheduled: last,
	}
}
