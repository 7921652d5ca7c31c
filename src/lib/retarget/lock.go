// Package retarget provides the locks the C-style runtime services expect
// (recursive locks, the allocator lock), built on comutex and the running
// task's handle.
package retarget

import (
	"github.com/blocksds/libnds-sub001/src/comutex"
	"github.com/blocksds/libnds-sub001/src/cothread"
	"github.com/blocksds/libnds-sub001/src/lib/trust"
)

// Tasker is the part of the scheduler a recursive lock needs.
type Tasker interface {
	Yield()
	Current() cothread.Handle
}

// RecursiveLock may be taken again by the task that holds it; it is free
// once every Acquire has been matched by a Release.
type RecursiveLock struct {
	mutex comutex.Mutex
	owner cothread.Handle
	count int
}

// Acquire yields until the lock is free or already ours.
func (l *RecursiveLock) Acquire(t Tasker) {
	self := t.Current()
	if l.count > 0 && l.owner == self {
		l.count++
		return
	}
	l.mutex.Acquire(t)
	l.owner = self
	l.count = 1
}

// TryAcquire is Acquire without waiting.
func (l *RecursiveLock) TryAcquire(t Tasker) bool {
	self := t.Current()
	if l.count > 0 && l.owner == self {
		l.count++
		return true
	}
	if !l.mutex.TryAcquire() {
		return false
	}
	l.owner = self
	l.count = 1
	return true
}

// Release undoes one Acquire.  A release by a task that does not hold the
// lock is ignored.
func (l *RecursiveLock) Release(t Tasker) {
	self := t.Current()
	if l.count == 0 || l.owner != self {
		trust.Warnf("retarget: %v released a lock held by %v (depth %d)", self, l.owner, l.count)
		return
	}
	l.count--
	if l.count == 0 {
		l.owner = cothread.NoHandle
		l.mutex.Release()
	}
}

// Held reports whether the lock is held and by whom.
func (l *RecursiveLock) Held() (cothread.Handle, bool) {
	return l.owner, l.count > 0
}

// MallocLock serializes the allocator across tasks.
var MallocLock RecursiveLock
