package lock

import (
	"context"
	"sync"
	"time"
)

// Locker guards an allocation scope against concurrent runs. Acquire returns
// false when another run already holds the scope; Release is best-effort and
// must only be called by the holder.
type Locker interface {
	Acquire(ctx context.Context, scope string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, scope string) error
}

// MemoryLocker is a single-process Locker used in tests and single-node
// deployments. Expired holds are reclaimed lazily on the next Acquire.
type MemoryLocker struct {
	mu    sync.Mutex
	holds map[string]time.Time
}

// NewMemoryLocker builds an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{holds: make(map[string]time.Time)}
}

// Acquire takes the scope unless it is held and unexpired.
func (l *MemoryLocker) Acquire(_ context.Context, scope string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if expiry, ok := l.holds[scope]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	l.holds[scope] = time.Now().Add(ttl)
	return true, nil
}

// Release frees the scope.
func (l *MemoryLocker) Release(_ context.Context, scope string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.holds, scope)
	return nil
}
