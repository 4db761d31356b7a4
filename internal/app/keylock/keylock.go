// Package keylock provides per-key mutual exclusion. Directory mutations
// for one application are serialized without blocking work on others.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyLock hands out one mutex per key on demand and frees it when the last
// holder releases.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New creates an empty KeyLock.
func New() *KeyLock {
	return &KeyLock{locks: make(map[string]*entry)}
}

// Lock blocks until the key's mutex is held and returns the release
// function. The release function must be called exactly once.
func (l *KeyLock) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}

func (l *KeyLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
