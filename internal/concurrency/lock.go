package concurrency

import "sync"

// KeyedMutex serializes work per key while letting different keys proceed in parallel.
type KeyedMutex struct {
	locks map[string]*keyedLock
	mu    sync.Mutex
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*keyedLock),
	}
}

// Lock blocks until key is free and returns the matching unlock function.
// Entries are reference counted and dropped once no holder or waiter remains.
func (m *KeyedMutex) Lock(key string) func() {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &keyedLock{}
		m.locks[key] = lock
	}
	lock.refs++
	m.mu.Unlock()

	lock.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			lock.mu.Unlock()
			m.mu.Lock()
			lock.refs--
			if lock.refs == 0 {
				delete(m.locks, key)
			}
			m.mu.Unlock()
		})
	}
}

// Len reports how many keys are currently held or awaited.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
