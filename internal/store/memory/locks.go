package memory

import (
	"context"
	"sync"
)

// keyLocks hands out one lock per schedule key. Entries are dropped once no
// transaction holds or waits on them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// acquire takes every key in order. keys must already be sorted and unique.
// On failure nothing is held.
func (l *keyLocks) acquire(ctx context.Context, keys []string) error {
	for i, key := range keys {
		if err := l.lock(ctx, key); err != nil {
			l.release(keys[:i])
			return err
		}
	}
	return nil
}

func (l *keyLocks) release(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		l.unlock(keys[i])
	}
}

func (l *keyLocks) lock(ctx context.Context, key string) error {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(key, kl)
		return ctx.Err()
	}
}

func (l *keyLocks) unlock(key string) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	l.mu.Unlock()
	if !ok {
		return
	}
	<-kl.ch
	l.drop(key, kl)
}

func (l *keyLocks) drop(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
