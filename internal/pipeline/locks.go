package pipeline

import "sync"

// locationLocks hands out one mutex per resource location so that at most
// one pass works on a location at a time. Locks are never freed; there is
// one per location ever seen.
type locationLocks struct {
	mu sync.RWMutex
	m  map[string]*sync.Mutex
}

func newLocationLocks() *locationLocks {
	return &locationLocks{m: make(map[string]*sync.Mutex)}
}

// get returns the mutex for location, creating it on first use.
func (l *locationLocks) get(location string) *sync.Mutex {
	l.mu.RLock()
	lock, ok := l.m[location]
	l.mu.RUnlock()
	if ok {
		return lock
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Another goroutine may have created it between the two locks.
	if lock, ok := l.m[location]; ok {
		return lock
	}
	lock = &sync.Mutex{}
	l.m[location] = lock
	return lock
}

// Len returns the number of tracked locations.
func (l *locationLocks) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.m)
}
