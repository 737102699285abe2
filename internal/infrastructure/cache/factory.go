package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/infrastructure/config"
)

// Locker is a non-blocking TTL lock keyed by string
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

var (
	_ Locker = (*InMemoryLocker)(nil)
	_ Locker = (*RedisLocker)(nil)
)

// LockerFactory creates lockers based on configuration
type LockerFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// LockerFactoryOption is a functional option for configuring the factory
type LockerFactoryOption func(*LockerFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) LockerFactoryOption {
	return func(f *LockerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory locker
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) LockerFactoryOption {
	return func(f *LockerFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewLockerFactory creates a new factory
func NewLockerFactory(cfg config.RedisConfig, opts ...LockerFactoryOption) *LockerFactory {
	f := &LockerFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateLocker returns a Redis locker when Redis is enabled and reachable,
// otherwise an in-memory one. The returned close func releases the
// underlying client or cleanup goroutine.
func (f *LockerFactory) CreateLocker() (Locker, func() error, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory locker")
		l := NewInMemoryLocker()
		return l, l.Close, nil
	}

	client, err := NewRedisClient(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("using Redis locker", zap.String("addr", f.redisConfig.Addr()))
		return NewRedisLocker(client, "", f.logger), client.Close, nil
	}

	if !f.allowInMemoryFallback {
		return nil, nil, fmt.Errorf("Redis required for locking but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory locker. "+
		"Shops may be synced concurrently by several instances.",
		zap.Error(err),
	)
	l := NewInMemoryLocker()
	return l, l.Close, nil
}
