// Package lock provides Locker implementations: in-process and redis.
package lock

import (
	"context"
	"sync"
	"time"

	corelock "stockalloc/internal/core/lock"
)

// Local is an in-process Locker. TTL is ignored: a crashed holder takes its
// locks with it.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Obtain implements lock.Locker.
func (l *Local) Obtain(ctx context.Context, key string, _ time.Duration) (corelock.Lock, error) {
	s := l.acquireSlot(key)
	select {
	case s.ch <- struct{}{}:
		return &localLock{owner: l, key: key, slot: s}, nil
	case <-ctx.Done():
		l.releaseSlot(key, s)
		return nil, corelock.ErrNotObtained
	}
}

// TryObtain implements lock.Locker.
func (l *Local) TryObtain(_ context.Context, key string, _ time.Duration) (corelock.Lock, error) {
	s := l.acquireSlot(key)
	select {
	case s.ch <- struct{}{}:
		return &localLock{owner: l, key: key, slot: s}, nil
	default:
		l.releaseSlot(key, s)
		return nil, corelock.ErrNotObtained
	}
}

func (l *Local) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) releaseSlot(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

type localLock struct {
	owner *Local
	key   string
	slot  *slot
	once  sync.Once
}

func (k *localLock) Release(context.Context) error {
	k.once.Do(func() {
		<-k.slot.ch
		k.owner.releaseSlot(k.key, k.slot)
	})
	return nil
}

// Refresh is a no-op: local locks never expire.
func (k *localLock) Refresh(context.Context, time.Duration) error {
	return nil
}

var _ corelock.Locker = (*Local)(nil)
