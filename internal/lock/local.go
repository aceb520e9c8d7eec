package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type localEntry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process keyed mutex used when Redis is not configured.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	opts    Options
}

// NewLocalLocker builds a keyed mutex.
func NewLocalLocker(opts Options) *LocalLocker {
	return &LocalLocker{entries: map[string]*localEntry{}, opts: opts.withDefaults()}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.opts.Wait)
	defer timer.Stop()

	select {
	case entry.ch <- struct{}{}:
	case <-timer.C:
		l.drop(key, entry)
		return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
	case <-ctx.Done():
		l.drop(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.drop(key, entry)
		})
	}, nil
}

func (l *LocalLocker) drop(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}
