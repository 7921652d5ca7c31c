// Package comutex is the mutual exclusion flag for cooperative tasks.  It is
// neither recursive nor owner aware: it is one word that is either locked
// or not, and waiting for it means yielding until it is not.
package comutex

import (
	"sync/atomic"
)

// Yielder gives up the processor for one scheduler turn.  The cothread
// scheduler is one.
type Yielder interface {
	Yield()
}

// Mutex is unlocked in its zero value.
type Mutex struct {
	state uint32
}

// TryAcquire takes the lock if it is free and reports whether it did.  It
// never blocks.  The test-and-set is atomic so interrupt sources may also
// use it.
func (m *Mutex) TryAcquire() bool {
	return atomic.CompareAndSwapUint32(&m.state, 0, 1)
}

// Acquire yields through y until the lock can be taken.
func (m *Mutex) Acquire(y Yielder) {
	for !m.TryAcquire() {
		y.Yield()
	}
}

// Release unlocks unconditionally.  Releasing a lock you do not hold is a
// bug in the caller and is not detected.
func (m *Mutex) Release() {
	atomic.StoreUint32(&m.state, 0)
}

func (m *Mutex) Locked() bool {
	return atomic.LoadUint32(&m.state) != 0
}
