// Package kmutex provides mutual exclusion keyed by arbitrary strings.
// Holders of different keys proceed in parallel; holders of the same key
// serialize. Lock entries are reference-counted and removed when released.
package kmutex

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KMutex is a set of named mutexes.
type KMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New creates an empty keyed mutex.
func New() *KMutex {
	return &KMutex{locks: make(map[string]*entry)}
}

// Lock acquires the mutex for key, blocking while another holder owns it.
func (k *KMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key.
func (k *KMutex) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if ok {
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
	}
	k.mu.Unlock()

	if ok {
		e.mu.Unlock()
	}
}
