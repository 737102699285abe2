package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/logger"
)

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// SyncRunner runs one sync job for a shop
type SyncRunner interface {
	Sync(ctx context.Context, cfg *integration.PlatformAdapterConfig, from, to *time.Time) (*integration.SyncStats, error)
}

// Locker is a non-blocking TTL lock keyed by string
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// SyncRequest is one queued sync of a shop
type SyncRequest struct {
	Config      *integration.PlatformAdapterConfig
	From        *time.Time
	To          *time.Time
	Manual      bool
	SubmittedAt time.Time
}

// ---------------------------------------------------------------------------
// SyncSchedulerConfig
// ---------------------------------------------------------------------------

// SyncSchedulerConfig holds configuration for the sync scheduler
type SyncSchedulerConfig struct {
	// MaxConcurrentShops is the number of workers, so the number of shops
	// that may sync at the same time
	MaxConcurrentShops int
	// QueueSize is the capacity of the job channel
	QueueSize int
	// JobTimeout is the maximum time a job can run
	JobTimeout time.Duration
	// LockTTL bounds how long a crashed instance can hold a shop lock.
	// Zero uses JobTimeout plus one minute.
	LockTTL time.Duration
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		MaxConcurrentShops: 4,
		QueueSize:          100,
		JobTimeout:         15 * time.Minute,
	}
}

// Validate validates the configuration
func (c *SyncSchedulerConfig) Validate() error {
	if c.MaxConcurrentShops <= 0 {
		return ErrInvalidConfig
	}
	if c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.LockTTL < 0 {
		return ErrInvalidConfig
	}
	return nil
}

func (c *SyncSchedulerConfig) lockTTL() time.Duration {
	if c.LockTTL > 0 {
		return c.LockTTL
	}
	return c.JobTimeout + time.Minute
}

// SchedulerStats is a snapshot of scheduler counters
type SchedulerStats struct {
	Running   bool   `json:"running"`
	Workers   int    `json:"workers"`
	Queued    int    `json:"queued"`
	Active    int64  `json:"active"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Skipped   uint64 `json:"skipped"`
	Panics    uint64 `json:"panics"`
}

// ---------------------------------------------------------------------------
// SyncScheduler
// ---------------------------------------------------------------------------

// SyncScheduler runs sync jobs on a bounded worker pool. A per-shop lock keeps
// two syncs of the same shop from overlapping, across instances when the
// locker is backed by Redis.
type SyncScheduler struct {
	config SyncSchedulerConfig
	runner SyncRunner
	locker Locker
	logger *zap.Logger

	jobs      chan SyncRequest
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	active    atomic.Int64
	completed atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64
	panics    atomic.Uint64
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config SyncSchedulerConfig, runner SyncRunner, locker Locker, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if runner == nil || locker == nil {
		return nil, ErrInvalidConfig
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SyncScheduler{
		config: config,
		runner: runner,
		locker: locker,
		logger: logger,
		jobs:   make(chan SyncRequest, config.QueueSize),
	}, nil
}

// Start starts the worker pool
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentShops; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("workers", s.config.MaxConcurrentShops),
		zap.Int("queue_size", s.config.QueueSize),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers to exit
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	if s.cancel != nil {
		s.cancel()
	}
	close(s.jobs)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

// Submit queues a sync request without blocking
func (s *SyncScheduler) Submit(req SyncRequest) error {
	if req.Config == nil {
		return integration.ErrPlatformNotConfigured
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}

	// held across the send so Stop cannot close the channel underneath us
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- req:
		s.logger.Debug("Sync job submitted",
			zap.String("shop", req.Config.ShopKey()),
			zap.Bool("manual", req.Manual),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// Stats returns a snapshot of the scheduler counters
func (s *SyncScheduler) Stats() SchedulerStats {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()

	return SchedulerStats{
		Running:   running,
		Workers:   s.config.MaxConcurrentShops,
		Queued:    len(s.jobs),
		Active:    s.active.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Skipped:   s.skipped.Load(),
		Panics:    s.panics.Load(),
	}
}

func (s *SyncScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Sync worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Sync worker stopping", zap.Int("worker_id", workerID))
			return
		case req, ok := <-s.jobs:
			if !ok {
				return
			}
			s.processJob(ctx, req, workerID)
		}
	}
}

// processJob runs one request under the shop lock. A panic is recovered
// and counted so the worker keeps serving the queue.
func (s *SyncScheduler) processJob(ctx context.Context, req SyncRequest, workerID int) {
	shop := req.Config.ShopKey()
	ctx, log := logger.WithShop(ctx, s.logger, shop)
	log = log.With(zap.Int("worker_id", workerID))

	release, acquired, err := s.locker.TryLock(ctx, "sync:"+shop, s.config.lockTTL())
	if err != nil {
		s.failed.Add(1)
		log.Error("Failed to acquire shop lock", zap.Error(err))
		return
	}
	if !acquired {
		s.skipped.Add(1)
		log.Info("Shop is already syncing, skipping")
		return
	}
	defer release()

	s.active.Add(1)
	defer s.active.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.failed.Add(1)
			log.Error("Sync job panicked",
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	started := time.Now()
	stats, err := s.runner.Sync(jobCtx, req.Config, req.From, req.To)
	switch {
	case errors.Is(err, integration.ErrSyncAlreadyRunning):
		s.skipped.Add(1)
		log.Info("Sync already running elsewhere", zap.Error(err))
	case err != nil:
		s.failed.Add(1)
		log.Error("Sync job failed",
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
	default:
		s.completed.Add(1)
		fields := []zap.Field{zap.Duration("elapsed", time.Since(started)), zap.Bool("manual", req.Manual)}
		if stats != nil {
			fields = append(fields, zap.Int("fetched", stats.Fetched), zap.Int("errors", stats.Errors))
		}
		log.Info("Sync job completed", fields...)
	}
}
