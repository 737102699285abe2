package cache

import (
	"context"
	"sync"
	"time"
)

// lease represents a held lock with expiration
type lease struct {
	token     uint64
	expiresAt time.Time
}

// InMemoryLocker implements a TTL lock over an in-process map.
// This is suitable for single-instance deployments and testing
type InMemoryLocker struct {
	mu        sync.Mutex
	leases    map[string]lease
	nextToken uint64
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryLocker creates a new in-memory locker
// It starts a background goroutine to drop expired leases
func NewInMemoryLocker() *InMemoryLocker {
	l := &InMemoryLocker{
		leases:   make(map[string]lease),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.cleanupLoop()

	return l
}

// TryLock acquires key for ttl without blocking. An expired lease is taken
// over. The release func is a no-op once the lease has been taken over.
func (l *InMemoryLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[key]; ok && now.Before(held.expiresAt) {
		return nil, false, nil
	}

	l.nextToken++
	token := l.nextToken
	l.leases[key] = lease{token: token, expiresAt: now.Add(ttl)}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if held, ok := l.leases[key]; ok && held.token == token {
				delete(l.leases, key)
			}
		})
	}
	return release, true, nil
}

// Close stops the cleanup goroutine
// Safe to call multiple times
func (l *InMemoryLocker) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()
	})
	return nil
}

func (l *InMemoryLocker) cleanupLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *InMemoryLocker) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, held := range l.leases {
		if now.After(held.expiresAt) {
			delete(l.leases, key)
		}
	}
}

// Size returns the number of held leases (for testing/monitoring)
func (l *InMemoryLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.leases)
}
