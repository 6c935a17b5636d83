// Package lock provides per-key mutual exclusion for sync runs.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrHeld is returned when another holder owns the key.
var ErrHeld = errors.New("lock is held")

// Release frees a lock obtained from a Locker.
type Release func(context.Context) error

// Locker acquires non-blocking locks by key.
type Locker interface {
	TryAcquire(ctx context.Context, key string) (Release, error)
}

// Local is an in-process Locker for single-instance deployments and tests.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal constructs a Local locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// TryAcquire implements Locker.
func (l *Local) TryAcquire(_ context.Context, key string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrHeld
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
