package sync

import (
	"context"
	"sync"
)

// SyncLock is the coarse lock guarding push/pull orchestration against one
// local store. Acquisition blocks rather than failing fast: a running sync is
// not safely abortable mid-flight, so callers wait their turn. The wait is
// still cancellable through the context.
type SyncLock struct {
	sem chan struct{}
}

// NewSyncLock creates an unheld lock.
func NewSyncLock() *SyncLock {
	return &SyncLock{sem: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is held or the context is done.
func (l *SyncLock) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release gives the lock back. Callers pair it with Acquire via defer.
func (l *SyncLock) Release() {
	select {
	case <-l.sem:
	default:
		// Releasing an unheld lock is a programming error; ignore.
	}
}

// keyedMutex serializes work per (entityType, entityID) key while letting
// unrelated entities proceed concurrently. Entries are reference-counted and
// removed once the last holder releases, so the map tracks the in-flight
// working set instead of every key ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// lock blocks until the key's mutex is held and returns the release func.
func (km *keyedMutex) lock(key string) func() {
	km.mu.Lock()
	e, ok := km.locks[key]
	if !ok {
		e = &keyedLock{}
		km.locks[key] = e
	}
	e.refs++
	km.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		km.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}
