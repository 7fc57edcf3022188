// Package lock provides the per-slot mutual exclusion the engine relies on.
// Every multi-step slot mutation (admit, bump, promote, redistribute) runs
// inside WithLock/WithLocks; multi-key acquisition is always in ascending
// key order so cross-slot operations cannot deadlock each other.
package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotAcquired is returned by non-blocking implementations when a lock is
// already held elsewhere.
var ErrNotAcquired = errors.New("slot lock not acquired")

type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
	// WithLocks locks every key (deduplicated, ascending order) for the
	// duration of fn.
	WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// localLocker serializes by key with in-process mutexes. Suitable for a
// single-process deployment, tests and simulation; a multi-process
// deployment uses the Redis locker instead.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocal() Locker {
	return &localLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *localLocker) get(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

func (l *localLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	m := l.get(key)
	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

func (l *localLocker) WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	ordered := dedupSorted(keys)
	for _, key := range ordered {
		m := l.get(key)
		m.Lock()
		defer m.Unlock()
	}
	return fn(ctx)
}

// dedupSorted returns the unique keys in ascending order.
func dedupSorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i == 0 || k != out[n-1] {
			out[n] = k
			n++
		}
	}
	return out[:n]
}
