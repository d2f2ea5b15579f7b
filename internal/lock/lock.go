// internal/lock/lock.go
package lock

import (
	"context"
	"sync"
	"time"

	"mentor-points/internal/metrics"
	"mentor-points/internal/util"
)

// DefaultTimeout bounds how long a mutation waits for an owner's lock.
const DefaultTimeout = 5 * time.Second

// Locker serializes balance mutations per owner. Acquire blocks until the
// owner's lock is held, the timeout elapses (util.ErrAccountLockTimeout) or
// ctx is done. The returned func releases the lock and is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, owner string) (func(), error)
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// KeyedLocker is an in-process Locker. Each owner gets a one-slot semaphore
// that lives only while someone holds or waits for it.
type KeyedLocker struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
	timeout time.Duration
}

// NewKeyedLocker creates a KeyedLocker. A non-positive timeout uses DefaultTimeout.
func NewKeyedLocker(timeout time.Duration) *KeyedLocker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &KeyedLocker{
		entries: make(map[string]*keyedEntry),
		timeout: timeout,
	}
}

func (l *KeyedLocker) Acquire(ctx context.Context, owner string) (func(), error) {
	start := time.Now()
	entry := l.ref(owner)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		metrics.LockWait.WithLabelValues("memory").Observe(time.Since(start).Seconds())
		var once sync.Once
		return func() {
			once.Do(func() {
				<-entry.sem
				l.unref(owner)
			})
		}, nil
	case <-timer.C:
		l.unref(owner)
		metrics.LockTimeouts.WithLabelValues("memory").Inc()
		return nil, util.ErrAccountLockTimeout
	case <-ctx.Done():
		l.unref(owner)
		return nil, ctx.Err()
	}
}

func (l *KeyedLocker) ref(owner string) *keyedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[owner]
	if !ok {
		entry = &keyedEntry{sem: make(chan struct{}, 1)}
		l.entries[owner] = entry
	}
	entry.refs++
	return entry
}

func (l *KeyedLocker) unref(owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[owner]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, owner)
	}
}

// size reports how many owners currently have a live entry.
func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
