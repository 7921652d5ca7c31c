// Package cothread is a cooperative multitasking scheduler.  Tasks run one
// at a time; a task keeps the processor until it yields, waits for an
// interrupt or returns.  The program's own entry procedure is the first
// task and the scheduler ends when it returns.
package cothread

import (
	"fmt"

	"github.com/blocksds/libnds-sub001/src/lib/stackmem"
	"github.com/blocksds/libnds-sub001/src/lib/trust"
)

// DefaultStackSize is used when Create is asked for a stack of size 0.
const DefaultStackSize = 4 * 1024

// task ids carried in coded errors are 16 bits
const maxTaskSlots = 0xffff

// EventWaiter blocks until at least one interrupt bit of mask is pending.
// *upbeat.Events is one.
type EventWaiter interface {
	WaitAny(mask uint32)
}

// Config is everything that can be tuned about a Scheduler.
type Config struct {
	DefaultStackSize int // bytes, multiple of 4
	MaxTasks         uint32
	StackPageSize    int // granularity of stack allocations, multiple of 4
	StackPages       int // stack memory is StackPageSize*StackPages bytes
	Events           EventWaiter
	Log              trust.Logger
}

func DefaultConfig() Config {
	return Config{
		DefaultStackSize: DefaultStackSize,
		MaxTasks:         64,
		StackPageSize:    256,
		StackPages:       1024,
		Log:              trust.Default,
	}
}

func (c Config) validate() error {
	switch {
	case c.DefaultStackSize <= 0 || c.DefaultStackSize%4 != 0:
		return fmt.Errorf("default stack size %d is not a positive multiple of 4: %w",
			c.DefaultStackSize, ErrInvalidArgument)
	case c.MaxTasks == 0 || c.MaxTasks > maxTaskSlots:
		return fmt.Errorf("max tasks %d is not between 1 and %d: %w",
			c.MaxTasks, maxTaskSlots, ErrInvalidArgument)
	case c.StackPageSize <= 0 || c.StackPageSize%4 != 0:
		return fmt.Errorf("stack page size %d is not a positive multiple of 4: %w",
			c.StackPageSize, ErrInvalidArgument)
	case c.StackPages <= 0:
		return fmt.Errorf("no stack pages configured: %w", ErrInvalidArgument)
	}
	return nil
}

// Scheduler owns the registry, the record arena and the stack memory.
type Scheduler struct {
	cfg    Config
	log    trust.Logger
	entry  record // the program's entry task; never freed, never detached
	pool   recordManagedPool
	stacks *stackmem.Allocator
	reg    registry

	current *record
	started bool

	turns  uint64
	halts  uint64
	reaped uint64
}

// New returns a scheduler whose registry holds only the (not yet started)
// entry task.  Tasks may be created before Run; they get their first turn
// after the entry task's first turn.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Log == nil {
		cfg.Log = trust.Default
	}
	s := &Scheduler{
		cfg:    cfg,
		log:    cfg.Log,
		pool:   NewRecordManagedPool(cfg.MaxTasks),
		stacks: stackmem.New(cfg.StackPageSize, cfg.StackPages),
		reg:    registry{list: NewRecordSinglyLinkedList()},
	}
	s.entry.handle = makeHandle(entrySlot, entryGeneration)
	s.reg.insert(&s.entry)
	return s, nil
}

// Run makes entry(arg) the entry task and schedules until it returns.  The
// return value of entry is the return value of Run.  Run can only be
// called once per Scheduler.
func (s *Scheduler) Run(entry Entry, arg Word) Word {
	if entry == nil {
		panic("cothread: Run needs an entry procedure")
	}
	if s.started {
		panic("cothread: scheduler already started")
	}
	s.started = true
	makeContext(&s.entry, entry, arg)
	s.log.Debugf("cothread: starting scheduler with %d tasks registered", s.reg.length())
	defer func() {
		if p := recover(); p != nil {
			s.log.Errorf("cothread: %v panicked: %v", s.Current(), p)
			s.shutdown()
			panic(p)
		}
	}()
	result := s.loop()
	s.shutdown()
	return result
}

// Start is the program entry sequence: build a scheduler from cfg and run
// entry as its first task.
func Start(cfg Config, entry Entry, arg Word) (Word, error) {
	s, err := New(cfg)
	if err != nil {
		return 0, err
	}
	return s.Run(entry, arg), nil
}
