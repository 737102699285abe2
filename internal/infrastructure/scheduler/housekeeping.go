package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// HousekeepingTask is a periodic maintenance job
type HousekeepingTask struct {
	Name string
	// Spec is a standard 5-field cron expression or a descriptor like "@every 5m"
	Spec string
	Run  func(ctx context.Context) error
}

// Housekeeping runs maintenance tasks (stale job expiry, token refresh) on
// cron schedules. A task that is still running when its next tick fires is
// skipped, and a panicking task is recovered.
type Housekeeping struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  *zap.Logger

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	tasks     []string
}

// NewHousekeeping creates a housekeeping runner; each task run is bounded
// by timeout
func NewHousekeeping(timeout time.Duration, logger *zap.Logger) *Housekeeping {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Housekeeping{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddTask registers a task; it must be called before Start
func (h *Housekeeping) AddTask(task HousekeepingTask) error {
	if task.Run == nil {
		return fmt.Errorf("%w: task %q has no run func", ErrInvalidConfig, task.Name)
	}
	if _, err := h.cron.AddFunc(task.Spec, func() { h.runTask(task) }); err != nil {
		return fmt.Errorf("%w: task %q: %v", ErrInvalidConfig, task.Name, err)
	}
	h.tasks = append(h.tasks, task.Name)
	return nil
}

// Start starts the cron scheduler
func (h *Housekeeping) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.isRunning {
		return
	}
	h.isRunning = true
	h.cron.Start()
	h.logger.Info("Housekeeping started", zap.Strings("tasks", h.tasks))
}

// Stop cancels running tasks and waits for them, bounded by ctx
func (h *Housekeeping) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.isRunning {
		h.mu.Unlock()
		return nil
	}
	h.isRunning = false
	h.mu.Unlock()

	h.cancel()
	stopped := h.cron.Stop()

	select {
	case <-stopped.Done():
		h.logger.Info("Housekeeping stopped")
		return nil
	case <-ctx.Done():
		h.logger.Warn("Housekeeping stop timed out")
		return ctx.Err()
	}
}

func (h *Housekeeping) runTask(task HousekeepingTask) {
	log := h.logger.With(zap.String("task", task.Name))
	defer func() {
		if r := recover(); r != nil {
			log.Error("Housekeeping task panicked",
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
	defer cancel()

	started := time.Now()
	if err := task.Run(ctx); err != nil {
		log.Error("Housekeeping task failed", zap.Error(err))
		return
	}
	log.Debug("Housekeeping task finished", zap.Duration("elapsed", time.Since(started)))
}
