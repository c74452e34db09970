package lock

import (
	"context"
	"errors"
	"sync"
)

var ErrNotAcquired = errors.New("provider lock not acquired")

// Locker serializes the booking critical section per provider so that the
// conflict check and the appointment creation are indivisible.
type Locker interface {
	WithProviderLock(ctx context.Context, provider string, fn func(ctx context.Context) error) error
}

// localLocker serializes within a single process using one mutex per
// provider. Used by tests and deployments without Redis.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() Locker {
	return &localLocker{locks: map[string]*sync.Mutex{}}
}

func (l *localLocker) WithProviderLock(ctx context.Context, provider string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[provider]
	if !ok {
		m = &sync.Mutex{}
		l.locks[provider] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
