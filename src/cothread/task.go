package cothread

import (
	"unsafe"
)

// API is the task surface handed to code that only needs to manage tasks.
type API interface {
	Create(entry Entry, arg Word, stackSize int, flags Flags) (Handle, error)
	CreateManual(entry Entry, arg Word, stack []byte, flags Flags) (Handle, error)
	Detach(h Handle) error
	HasJoined(h Handle) (bool, error)
	ExitCode(h Handle) (Word, error)
	Delete(h Handle) error
	Yield()
	YieldUntil(mask uint32)
	Current() Handle
}

var _ API = (*Scheduler)(nil)

// Create starts a task running entry(arg) with a stack of stackSize bytes
// that the scheduler allocates and frees.  The task itself executes on its
// goroutine's stack; the allocation is the memory the task owns and is
// what runs out when stack memory is exhausted.  A stackSize of 0 means the
// configured default.  The task gets its first turn after every task
// already registered has had one.
func (s *Scheduler) Create(entry Entry, arg Word, stackSize int, flags Flags) (Handle, error) {
	if entry == nil || stackSize < 0 || stackSize%4 != 0 || flags&^knownFlags != 0 {
		return NoHandle, s.fail(ErrInvalidArgument)
	}
	if stackSize == 0 {
		stackSize = s.cfg.DefaultStackSize
	}
	stack, err := s.stacks.Alloc(stackSize)
	if err != nil {
		s.log.Debugf("cothread: no stack of %d bytes: %v", stackSize, err)
		return NoHandle, s.fail(ErrNoMemory)
	}
	r := s.newRecord(entry, arg, stack, flags)
	if r == nil {
		if err := s.stacks.Free(stack); err != nil {
			s.log.Errorf("cothread: giving back stack after failed create: %v", err)
		}
		return NoHandle, s.fail(ErrNoMemory)
	}
	r.ownedStack = stack
	s.log.Debugf("cothread: created %v (stack %d bytes, flags %#x)", r.handle, stackSize, flags)
	return r.handle, nil
}

// CreateManual is Create with a stack supplied by the caller.  The
// scheduler never frees it; it must stay valid until the task is gone.
// Both the start and the length of stack must be multiples of 4.
func (s *Scheduler) CreateManual(entry Entry, arg Word, stack []byte, flags Flags) (Handle, error) {
	if entry == nil || len(stack) == 0 || flags&^knownFlags != 0 {
		return NoHandle, s.fail(ErrInvalidArgument)
	}
	if uintptr(unsafe.Pointer(&stack[0]))%4 != 0 || len(stack)%4 != 0 {
		return NoHandle, s.fail(ErrInvalidArgument)
	}
	r := s.newRecord(entry, arg, stack, flags)
	if r == nil {
		return NoHandle, s.fail(ErrNoMemory)
	}
	s.log.Debugf("cothread: created %v (caller stack %d bytes, flags %#x)", r.handle, len(stack), flags)
	return r.handle, nil
}

func (s *Scheduler) newRecord(entry Entry, arg Word, stack []byte, flags Flags) *record {
	i, r := s.pool.Alloc()
	if r == nil {
		return nil
	}
	r.handle = makeHandle(i+1, s.pool.Generation(i))
	r.stack = stack
	r.flags = flags
	makeContext(r, entry, arg)
	s.reg.insert(r)
	return r
}

// lookup resolves a handle to a registered record or nil.
func (s *Scheduler) lookup(h Handle) *record {
	var r *record
	if h.slot() == entrySlot {
		if h.generation() == entryGeneration {
			r = &s.entry
		}
	} else {
		r = s.pool.Lookup(h.slot()-1, h.generation())
	}
	if r == nil || !s.reg.contains(r) {
		return nil
	}
	return r
}

// Detach marks a task to be reclaimed as soon as it finishes.  A task that
// has already finished is reclaimed now.  The entry task can not be
// detached.
func (s *Scheduler) Detach(h Handle) error {
	r := s.lookup(h)
	if r == nil {
		return s.fail(ErrInvalidArgument)
	}
	if r == &s.entry {
		return s.fail(ErrNotPermitted)
	}
	r.flags |= FlagDetached
	if r.joined {
		s.reap(r)
	}
	return nil
}

// HasJoined reports whether the task's entry procedure has returned.
// Detached tasks can not be asked.
func (s *Scheduler) HasJoined(h Handle) (bool, error) {
	r := s.lookup(h)
	if r == nil || r.detached() {
		return false, s.fail(ErrInvalidArgument)
	}
	return r.joined, nil
}

// ExitCode returns what the task's entry procedure returned.
func (s *Scheduler) ExitCode(h Handle) (Word, error) {
	r := s.lookup(h)
	if r == nil || r.detached() {
		return 0, s.fail(ErrInvalidArgument)
	}
	if !r.joined {
		return 0, s.fail(ErrStillRunning)
	}
	return r.slot, nil
}

// Delete removes a task now, finished or not.  A task can not delete
// itself, and nobody can delete the entry task.
func (s *Scheduler) Delete(h Handle) error {
	r := s.lookup(h)
	if r == nil {
		return s.fail(ErrInvalidArgument)
	}
	if r == s.current || r == &s.entry {
		return s.fail(ErrNotPermitted)
	}
	s.log.Debugf("cothread: deleting %v (joined=%v)", r.handle, r.joined)
	s.destroy(r)
	return nil
}

// Yield gives the other tasks one turn each.
func (s *Scheduler) Yield() {
	r := s.mustCurrent("Yield")
	yield(r, 0)
}

// YieldUntil is Yield for a task that is waiting for one of the interrupts
// in mask.  The caller checks its condition again when this returns; the
// scheduler uses the mask to halt when every task is waiting on
// interrupts.
func (s *Scheduler) YieldUntil(mask uint32) {
	r := s.mustCurrent("YieldUntil")
	r.waitMask = mask
	yield(r, Word(mask))
	r.waitMask = 0
}

// Current returns the running task, or NoHandle between turns.
func (s *Scheduler) Current() Handle {
	if s.current == nil {
		return NoHandle
	}
	return s.current.handle
}

// Stack returns the stack memory of a task.  The entry task runs on the
// primary stack and has none here.
func (s *Scheduler) Stack(h Handle) ([]byte, error) {
	r := s.lookup(h)
	if r == nil {
		return nil, s.fail(ErrInvalidArgument)
	}
	return r.stack, nil
}

// Tasks is the number of registered tasks, the entry task included.
func (s *Scheduler) Tasks() int {
	return s.reg.length()
}

func (s *Scheduler) mustCurrent(op string) *record {
	if s.current == nil {
		panic("cothread: " + op + " called outside of a task")
	}
	return s.current
}
