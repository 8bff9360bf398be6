// Package lock serializes read-modify-write cycles on named collections.
package lock

import (
	"context"
	"sync"
)

// Unlock releases a lock. Calling it more than once is a no-op.
type Unlock func()

// Locker grants exclusive access to a name.
type Locker interface {
	Lock(ctx context.Context, name string) (Unlock, error)
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[name] = ch
	}
	return ch
}

// Lock blocks until name is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, name string) (Unlock, error) {
	ch := l.slot(name)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
