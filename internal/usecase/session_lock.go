package usecase

import (
	"context"
	"fmt"
	"sync"
)

// SessionLocker serializes turns per session key, so the read-modify-write
// of a session log never interleaves with another turn on the same key.
type SessionLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is a one-slot semaphore shared by every waiter on a key.
type keyLock struct {
	slot chan struct{}
	refs int
}

// NewSessionLocker creates a new session locker.
func NewSessionLocker() *SessionLocker {
	return &SessionLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until the lock for key is held or ctx is done. The returned
// unlock function MUST be called exactly once.
func (sl *SessionLocker) Lock(ctx context.Context, key string) (unlock func(), err error) {
	sl.mu.Lock()
	kl, ok := sl.locks[key]
	if !ok {
		kl = &keyLock{slot: make(chan struct{}, 1)}
		sl.locks[key] = kl
	}
	kl.refs++
	sl.mu.Unlock()

	select {
	case kl.slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-kl.slot
				sl.release(key, kl)
			})
		}, nil
	case <-ctx.Done():
		sl.release(key, kl)
		return nil, fmt.Errorf("session lock %q: %w", key, ctx.Err())
	}
}

func (sl *SessionLocker) release(key string, kl *keyLock) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(sl.locks, key)
	}
}

// ActiveCount returns the number of keys with held or pending locks.
func (sl *SessionLocker) ActiveCount() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.locks)
}
