package service

import (
	"context"
	"sync"
)

// deviceLocks hands out one mutex per device id. Entries are reference counted and dropped
// when the last holder releases, so idle devices cost nothing.
type deviceLocks struct {
	mu    sync.Mutex
	locks map[string]*deviceLock
}

type deviceLock struct {
	ch   chan struct{}
	refs int
}

func newDeviceLocks() *deviceLocks {
	return &deviceLocks{locks: make(map[string]*deviceLock)}
}

// lock blocks until the device's lock is held or ctx is done.
func (l *deviceLocks) lock(ctx context.Context, deviceID string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[deviceID]
	if !ok {
		entry = &deviceLock{ch: make(chan struct{}, 1)}
		l.locks[deviceID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return func() {
			<-entry.ch
			l.release(deviceID, entry)
		}, nil
	case <-ctx.Done():
		l.release(deviceID, entry)
		return nil, ctx.Err()
	}
}

func (l *deviceLocks) release(deviceID string, entry *deviceLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, deviceID)
	}
}
