package cothread

import (
	"fmt"
)

// Word is the argument and result of a task: one machine word.
type Word = uintptr

// Entry is the procedure a task runs.  Its return value becomes the
// task's exit code.
type Entry func(arg Word) Word

// Flags are markers on a task given at creation time.
type Flags uint32

const (
	// FlagDetached tasks are reclaimed as soon as they finish and can not
	// be joined.
	FlagDetached Flags = 1 << 0

	knownFlags = FlagDetached
)

// Handle names one task.  The low 32 bits are the slot of the record in the
// scheduler's arena, the high 32 bits the generation of that slot, so a
// handle kept after its task was deleted no longer resolves even if the
// slot has been reused.
type Handle uint64

// NoHandle is never the handle of a task.
const NoHandle Handle = 0

// slot 0 is the entry task's record, which lives in the Scheduler itself.
const entrySlot = 0
const entryGeneration = 1

const maxGuesses = 3

func makeHandle(slot int, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(uint32(slot)))
}

func (h Handle) slot() int {
	return int(uint32(h))
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

func (h Handle) String() string {
	return fmt.Sprintf("task(%d/%d)", h.slot(), h.generation())
}

//
// record is where we store everything that is per task.
//
type record struct {
	ctx        context
	slot       Word   // argument before the task starts, exit code once joined
	joined     bool   // entry procedure has returned
	ownedStack []byte // allocated by us, freed with the record
	stack      []byte // the task's stack, owned or supplied by the caller
	flags      Flags
	link       *recordNodeSL
	waitMask   uint32 // interrupt classes of the last YieldUntil, 0 otherwise
	handle     Handle
}

func (r *record) detached() bool {
	return r.flags&FlagDetached != 0
}
