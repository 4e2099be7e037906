// Package syncutil provides small concurrency helpers shared by the engines.
package syncutil

import "sync"

// KeyedMutex serializes operations on a per-key basis. Locks are created
// lazily and never reclaimed, which is fine for the bounded key spaces it
// guards (channel ids, conversation ids).
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for key and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
