package upbeat

import (
	"sync/atomic"
)

// IRQ bits, laid out like the interrupt enable/flag registers of the
// console so masks can be passed straight through.
const (
	IRQVBlank       uint32 = 1 << 0
	IRQHBlank       uint32 = 1 << 1
	IRQVCount       uint32 = 1 << 2
	IRQTimer0       uint32 = 1 << 3
	IRQTimer1       uint32 = 1 << 4
	IRQTimer2       uint32 = 1 << 5
	IRQTimer3       uint32 = 1 << 6
	IRQNetwork      uint32 = 1 << 7
	IRQDMA0         uint32 = 1 << 8
	IRQDMA1         uint32 = 1 << 9
	IRQDMA2         uint32 = 1 << 10
	IRQDMA3         uint32 = 1 << 11
	IRQKeys         uint32 = 1 << 12
	IRQCart         uint32 = 1 << 13
	IRQIPCSync      uint32 = 1 << 16
	IRQFIFOEmpty    uint32 = 1 << 17
	IRQFIFONotEmpty uint32 = 1 << 18
	IRQCard         uint32 = 1 << 19
	IRQCardLine     uint32 = 1 << 20
	IRQGeometryFIFO uint32 = 1 << 21
	IRQLid          uint32 = 1 << 22
	IRQSPI          uint32 = 1 << 23
	IRQWifi         uint32 = 1 << 24
)

// Events is the pending-interrupt word.  Raise may be called from any
// goroutine (those play the part of interrupt handlers); the rest is
// normally called from the scheduler or from tasks.
type Events struct {
	pending uint32
	wake    chan struct{}
}

func NewEvents() *Events {
	return &Events{wake: make(chan struct{}, 1)}
}

// Raise marks the given interrupt bits pending and wakes a halted waiter.
func (e *Events) Raise(mask uint32) {
	for {
		old := atomic.LoadUint32(&e.pending)
		if atomic.CompareAndSwapUint32(&e.pending, old, old|mask) {
			break
		}
	}
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Pending returns the subset of mask that is currently pending.
func (e *Events) Pending(mask uint32) uint32 {
	return atomic.LoadUint32(&e.pending) & mask
}

// Take returns the subset of mask that was pending and acknowledges it.
func (e *Events) Take(mask uint32) uint32 {
	for {
		old := atomic.LoadUint32(&e.pending)
		if atomic.CompareAndSwapUint32(&e.pending, old, old&^mask) {
			return old & mask
		}
	}
}

// Clear acknowledges the bits without looking at them.
func (e *Events) Clear(mask uint32) {
	e.Take(mask)
}

// WaitAny blocks until at least one bit of mask is pending.  This is the
// halt-until-interrupt of the hardware.
func (e *Events) WaitAny(mask uint32) {
	for e.Pending(mask) == 0 {
		<-e.wake
	}
}
