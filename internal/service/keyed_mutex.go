package service

import "sync"

func NewKeyedMutex[K comparable]() *KeyedMutex[K] {
	return &KeyedMutex[K]{
		locks: make(map[K]*keyedLock),
	}
}

// KeyedMutex serializes work per key: concurrent setup callbacks for the
// same state token and concurrent reconciliations for the same account.
type KeyedMutex[K comparable] struct {
	m     sync.Mutex
	locks map[K]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (km *KeyedMutex[K]) Lock(key K) {
	km.m.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	km.m.Unlock()

	l.mu.Lock()
}

func (km *KeyedMutex[K]) Unlock(key K) {
	km.m.Lock()
	l := km.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(km.locks, key)
	}
	km.m.Unlock()

	l.mu.Unlock()
}
