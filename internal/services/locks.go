package services

import (
	"fmt"
	"sync"

	"k8s.io/utils/keymutex"
)

var _ keymutex.KeyMutex = (*labelLocks)(nil)

// labelLocks holds one mutex per machine label. Entries exist only while a
// holder or waiter references them.
type labelLocks struct {
	mu    sync.Mutex
	locks map[string]*labelLock
}

type labelLock struct {
	sync.Mutex
	refs int
}

func newLabelLocks() *labelLocks {
	return &labelLocks{locks: make(map[string]*labelLock)}
}

func (l *labelLocks) LockKey(label string) {
	l.mu.Lock()
	lock, ok := l.locks[label]
	if !ok {
		lock = &labelLock{}
		l.locks[label] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.Lock()
}

func (l *labelLocks) UnlockKey(label string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[label]
	if !ok {
		return fmt.Errorf("machine %s is not locked", label)
	}
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, label)
	}
	lock.Unlock()
	return nil
}

func (l *labelLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
