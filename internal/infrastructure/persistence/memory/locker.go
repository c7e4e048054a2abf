package memory

import (
	"context"
	"sync"

	"github.com/alem-hub/gradebook/internal/domain/shared"
)

// KeyedMutex is an in-process per-key lock implementing student.Locker.
// Waiting respects the context.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewKeyedMutex creates a KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(key, l)
		return nil, shared.WrapError("student", "Lock", shared.ErrLockTimeout,
			"timed out waiting for student lock "+key, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-l.sem
			m.release(key, l)
		})
		return nil
	}, nil
}

func (m *KeyedMutex) release(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// Held returns the number of keys currently tracked.
func (m *KeyedMutex) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
