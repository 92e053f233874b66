// Package syncutil keeps the scoring and recording of one fingerprint
// history in order.
package syncutil

import "sync"

// KeyedMutex serializes callers that share a key, typically a history key.
// An entry lives only while some caller holds or waits for its key, so
// per-account histories do not accumulate locks.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the function that releases it.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Active returns the number of keys currently held or waited on.
func (k *KeyedMutex) Active() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
