package cothread

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/blocksds/libnds-sub001/src/comutex"
	"github.com/blocksds/libnds-sub001/src/lib/upbeat"
)

func testScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("unable to make scheduler: %v", err)
	}
	return s
}

func checkErr(t *testing.T, op string, err error, expected error) {
	t.Helper()
	if !errors.Is(err, expected) {
		t.Errorf("%s: expected %v but got %v", op, expected, err)
	}
}

// waitJoined yields until h has finished.
func waitJoined(t *testing.T, s *Scheduler, h Handle) {
	t.Helper()
	for {
		joined, err := s.HasJoined(h)
		if err != nil {
			t.Errorf("HasJoined(%v): %v", h, err)
			return
		}
		if joined {
			return
		}
		s.Yield()
	}
}

func TestDoubleIt(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	result := s.Run(func(Word) Word {
		h, err := s.Create(func(x Word) Word { return x * 2 }, 21, 0, 0)
		if err != nil {
			t.Errorf("create failed: %v", err)
			return 1
		}
		joined, _ := s.HasJoined(h)
		if joined {
			t.Errorf("task joined before it had a turn")
		}
		waitJoined(t, s, h)
		for i := 0; i < 3; i++ {
			code, err := s.ExitCode(h)
			if err != nil || code != 42 {
				t.Errorf("query %d: expected exit code 42, got %d (%v)", i, code, err)
			}
		}
		return 0
	}, 0)
	if result != 0 {
		t.Errorf("entry task returned %d", result)
	}
}

func TestJoinedBecomesTrueOnlyAtReturn(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	s.Run(func(Word) Word {
		returned := false
		h, _ := s.Create(func(Word) Word {
			for i := 0; i < 3; i++ {
				s.Yield()
			}
			returned = true
			return 7
		}, 0, 0, 0)
		sawJoined := false
		for i := 0; i < 10; i++ {
			joined, err := s.HasJoined(h)
			if err != nil {
				t.Errorf("HasJoined: %v", err)
				break
			}
			if joined != returned {
				t.Errorf("turn %d: joined=%v but entry returned=%v", i, joined, returned)
			}
			if sawJoined && !joined {
				t.Errorf("joined went back to false")
			}
			if !joined {
				_, err := s.ExitCode(h)
				checkErr(t, "ExitCode before join", err, ErrStillRunning)
			} else if code, _ := s.ExitCode(h); code != 7 {
				t.Errorf("expected exit code 7, got %d", code)
			}
			sawJoined = sawJoined || joined
			s.Yield()
		}
		if !sawJoined {
			t.Errorf("task never joined")
		}
		return 0
	}, 0)
}

func TestDeleteSelfNotPermitted(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	s.Run(func(Word) Word {
		checkErr(t, "delete entry task as itself", s.Delete(s.Current()), ErrNotPermitted)
		h, _ := s.Create(func(Word) Word {
			checkErr(t, "delete self", s.Delete(s.Current()), ErrNotPermitted)
			s.Yield()
			return 5
		}, 0, 0, 0)
		waitJoined(t, s, h)
		if code, _ := s.ExitCode(h); code != 5 {
			t.Errorf("task should have kept running after failed self delete, code %d", code)
		}
		return 0
	}, 0)
}

func TestUnknownHandles(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	s.Run(func(Word) Word {
		for _, h := range []Handle{NoHandle, makeHandle(1, 1), makeHandle(entrySlot, 2), Handle(0xdeadbeef)} {
			checkErr(t, fmt.Sprintf("Delete(%v)", h), s.Delete(h), ErrInvalidArgument)
			checkErr(t, fmt.Sprintf("Detach(%v)", h), s.Detach(h), ErrInvalidArgument)
			_, err := s.HasJoined(h)
			checkErr(t, fmt.Sprintf("HasJoined(%v)", h), err, ErrInvalidArgument)
			_, err = s.ExitCode(h)
			checkErr(t, fmt.Sprintf("ExitCode(%v)", h), err, ErrInvalidArgument)
			_, err = s.Stack(h)
			checkErr(t, fmt.Sprintf("Stack(%v)", h), err, ErrInvalidArgument)
		}

		h, _ := s.Create(func(Word) Word { return 1 }, 0, 0, 0)
		if err := s.Delete(h); err != nil {
			t.Errorf("delete of a live task failed: %v", err)
		}
		checkErr(t, "delete stale handle", s.Delete(h), ErrInvalidArgument)
		_, err := s.HasJoined(h)
		checkErr(t, "query stale handle", err, ErrInvalidArgument)

		h2, _ := s.Create(func(Word) Word { return 2 }, 0, 0, 0)
		if h2.slot() == h.slot() && h2 == h {
			t.Errorf("reused slot handed out the same handle")
		}
		_, err = s.ExitCode(h)
		checkErr(t, "old handle after slot reuse", err, ErrInvalidArgument)
		return 0
	}, 0)
}

func TestSlotReuseKeepsOldHandleDead(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTasks = 1
	s := testScheduler(t, cfg)
	h1, err := s.Create(func(Word) Word { return 1 }, 0, 0, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s.Delete(h1)
	h2, err := s.Create(func(Word) Word { return 2 }, 0, 0, 0)
	if err != nil {
		t.Fatalf("create after delete: %v", err)
	}
	if h1.slot() != h2.slot() {
		t.Fatalf("only one slot, expected reuse")
	}
	if h1 == h2 {
		t.Errorf("generation did not move on")
	}
	if _, err := s.HasJoined(h1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("stale handle resolved after slot reuse: %v", err)
	}
	if _, err := s.HasJoined(h2); err != nil {
		t.Errorf("new handle should resolve: %v", err)
	}
}

func TestRoundRobinOrder(t *testing.T) {
	const n = 4
	const rounds = 5
	s := testScheduler(t, DefaultConfig())
	var log []int
	s.Run(func(Word) Word {
		handles := make([]Handle, 0, n)
		for i := 1; i <= n; i++ {
			h, err := s.Create(func(id Word) Word {
				for j := 0; j < rounds; j++ {
					log = append(log, int(id))
					s.Yield()
				}
				return id
			}, Word(i), 0, 0)
			if err != nil {
				t.Errorf("create %d: %v", i, err)
			}
			handles = append(handles, h)
		}
		for _, h := range handles {
			waitJoined(t, s, h)
		}
		return 0
	}, 0)
	if len(log) != n*rounds {
		t.Fatalf("expected %d turns but saw %d", n*rounds, len(log))
	}
	for i, id := range log {
		if id != i%n+1 {
			t.Fatalf("turn %d went to %d, expected %d (log %v)", i, id, i%n+1, log)
		}
	}
}

func TestNewTaskRunsAfterExistingOnes(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	var log []string
	s.Run(func(Word) Word {
		a, _ := s.Create(func(Word) Word {
			log = append(log, "A")
			s.Create(func(Word) Word {
				log = append(log, "C")
				return 0
			}, 0, 0, FlagDetached)
			s.Yield()
			return 0
		}, 0, 0, 0)
		s.Create(func(Word) Word {
			log = append(log, "B")
			return 0
		}, 0, 0, FlagDetached)
		waitJoined(t, s, a)
		return 0
	}, 0)
	if fmt.Sprint(log) != "[A B C]" {
		t.Errorf("expected A B C, got %v", log)
	}
}

func TestTasksCreatedBeforeRun(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	ran := false
	h, err := s.Create(func(Word) Word { ran = true; return 3 }, 0, 0, 0)
	if err != nil {
		t.Fatalf("create before run: %v", err)
	}
	s.Run(func(Word) Word {
		waitJoined(t, s, h)
		return 0
	}, 0)
	if !ran {
		t.Errorf("task created before Run never ran")
	}
	if code, err := s.ExitCode(h); err != nil || code != 3 {
		t.Errorf("exit code should survive the end of Run: %d %v", code, err)
	}
}

func TestDetachedIsReaped(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	freeBefore := s.stacks.FreePages()
	s.Run(func(Word) Word {
		h, err := s.Create(func(Word) Word { return 9 }, 0, 0, FlagDetached)
		if err != nil {
			t.Errorf("create detached: %v", err)
			return 1
		}
		if s.Tasks() != 2 {
			t.Errorf("expected 2 tasks registered, have %d", s.Tasks())
		}
		s.Yield()
		_, err = s.HasJoined(h)
		checkErr(t, "HasJoined on reaped task", err, ErrInvalidArgument)
		_, err = s.ExitCode(h)
		checkErr(t, "ExitCode on reaped task", err, ErrInvalidArgument)
		if s.Tasks() != 1 {
			t.Errorf("detached task should be gone, %d tasks registered", s.Tasks())
		}
		return 0
	}, 0)
	if s.stacks.FreePages() != freeBefore {
		t.Errorf("reaped task's stack not returned: %d free, expected %d", s.stacks.FreePages(), freeBefore)
	}
	if !s.pool.Full() {
		t.Errorf("reaped task's record not returned")
	}
}

func TestDetachedCanNotBeQueried(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	s.Run(func(Word) Word {
		h, _ := s.Create(func(Word) Word { s.Yield(); return 0 }, 0, 0, 0)
		if err := s.Detach(h); err != nil {
			t.Errorf("detach: %v", err)
		}
		_, err := s.HasJoined(h)
		checkErr(t, "HasJoined on live detached task", err, ErrInvalidArgument)
		checkErr(t, "detach entry task", s.Detach(s.Current()), ErrNotPermitted)
		return 0
	}, 0)
}

func TestDetachAfterFinishReaps(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	s.Run(func(Word) Word {
		h, _ := s.Create(func(Word) Word { return 0 }, 0, 0, 0)
		waitJoined(t, s, h)
		if err := s.Detach(h); err != nil {
			t.Errorf("detach finished task: %v", err)
		}
		if s.Tasks() != 1 {
			t.Errorf("finished task should be reaped on detach, %d registered", s.Tasks())
		}
		if st := s.Stats(); st.Reaped != 1 {
			t.Errorf("reaping on detach should be counted, reaped=%d", st.Reaped)
		}
		return 0
	}, 0)
}

func TestMisalignedStackSize(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	free := s.stacks.FreePages()
	_, err := s.Create(func(Word) Word { return 0 }, 0, 3, 0)
	checkErr(t, "create with stack size 3", err, ErrInvalidArgument)
	if s.stacks.FreePages() != free || !s.pool.Full() || s.Tasks() != 1 {
		t.Errorf("failed create must not allocate anything")
	}
	_, err = s.Create(nil, 0, 0, 0)
	checkErr(t, "create without entry", err, ErrInvalidArgument)
	_, err = s.Create(func(Word) Word { return 0 }, 0, -4, 0)
	checkErr(t, "create with negative stack", err, ErrInvalidArgument)
	_, err = s.Create(func(Word) Word { return 0 }, 0, 0, Flags(0x80))
	checkErr(t, "create with unknown flag", err, ErrInvalidArgument)
}

func TestOutOfMemoryUnwinds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTasks = 1
	cfg.StackPageSize = 64
	cfg.StackPages = 4
	cfg.DefaultStackSize = 128
	s := testScheduler(t, cfg)

	_, err := s.Create(func(Word) Word { return 0 }, 0, 512, 0)
	checkErr(t, "create with oversized stack", err, ErrNoMemory)
	if !s.pool.Full() {
		t.Errorf("record allocated although the stack could not be")
	}

	if _, err := s.Create(func(Word) Word { return 0 }, 0, 0, 0); err != nil {
		t.Fatalf("first create should fit: %v", err)
	}
	free := s.stacks.FreePages()
	_, err = s.Create(func(Word) Word { return 0 }, 0, 0, 0)
	checkErr(t, "create with no records left", err, ErrNoMemory)
	if s.stacks.FreePages() != free {
		t.Errorf("stack of failed create not given back: %d free, expected %d", s.stacks.FreePages(), free)
	}
	_, err = s.CreateManual(func(Word) Word { return 0 }, 0, make([]byte, 64), 0)
	checkErr(t, "manual create with no records left", err, ErrNoMemory)
}

func TestCreateManual(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	stack := make([]byte, 256)
	entry := func(Word) Word { return 0 }

	_, err := s.CreateManual(entry, 0, nil, 0)
	checkErr(t, "nil stack", err, ErrInvalidArgument)
	_, err = s.CreateManual(nil, 0, stack, 0)
	checkErr(t, "nil entry", err, ErrInvalidArgument)
	_, err = s.CreateManual(entry, 0, stack[:6], 0)
	checkErr(t, "unaligned size", err, ErrInvalidArgument)
	_, err = s.CreateManual(entry, 0, stack[1:9], 0)
	checkErr(t, "unaligned base", err, ErrInvalidArgument)

	free := s.stacks.FreePages()
	for i := range stack {
		stack[i] = 0xa5
	}
	s.Run(func(Word) Word {
		h, err := s.CreateManual(func(x Word) Word { return x + 1 }, 99, stack, 0)
		if err != nil {
			t.Errorf("manual create: %v", err)
			return 1
		}
		got, _ := s.Stack(h)
		if &got[0] != &stack[0] || len(got) != len(stack) {
			t.Errorf("Stack should return the caller's memory")
		}
		waitJoined(t, s, h)
		if code, _ := s.ExitCode(h); code != 100 {
			t.Errorf("expected 100, got %d", code)
		}
		if err := s.Delete(h); err != nil {
			t.Errorf("delete: %v", err)
		}
		return 0
	}, 0)
	if s.stacks.FreePages() != free {
		t.Errorf("manual task must not use stack pages")
	}
	for i, b := range stack {
		if b != 0xa5 {
			t.Fatalf("caller stack byte %d touched by the scheduler", i)
		}
	}
}

func TestDeleteSuspendedTask(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	free := s.stacks.FreePages()
	cleaned := false
	s.Run(func(Word) Word {
		h, _ := s.Create(func(Word) Word {
			defer func() { cleaned = true }()
			for {
				s.Yield()
			}
		}, 0, 0, 0)
		s.Yield()
		s.Yield()
		if err := s.Delete(h); err != nil {
			t.Errorf("delete running task: %v", err)
		}
		if !cleaned {
			t.Errorf("deleted task was not unwound")
		}
		if s.Tasks() != 1 {
			t.Errorf("deleted task still registered")
		}
		return 0
	}, 0)
	if s.stacks.FreePages() != free {
		t.Errorf("deleted task's stack not returned")
	}
}

func TestDeleteTaskWhoseCleanupYields(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	free := s.stacks.FreePages()
	var m comutex.Mutex
	var self, inCleanup Handle
	cleanupDone := false
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(func(Word) Word {
			m.Acquire(s)
			h, _ := s.Create(func(Word) Word {
				self = s.Current()
				defer func() {
					inCleanup = s.Current()
					m.Acquire(s) // held by the deleter, so this yields
					m.Release()
					cleanupDone = true
				}()
				for {
					s.Yield()
				}
			}, 0, 0, 0)
			s.Yield()
			if err := s.Delete(h); err != nil {
				t.Errorf("delete: %v", err)
			}
			if s.Current() != s.entry.handle {
				t.Errorf("deleter should be current again, have %v", s.Current())
			}
			m.Release()
			return 0
		}, 0)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Delete did not return for a task whose cleanup yields")
	}
	if inCleanup != self || self == NoHandle {
		t.Errorf("cleanup should run as the deleted task %v, ran as %v", self, inCleanup)
	}
	if cleanupDone {
		t.Errorf("cleanup that yields should be cut short")
	}
	if s.Tasks() != 1 || s.stacks.FreePages() != free {
		t.Errorf("deleted task not fully reclaimed: %d tasks, %d free pages", s.Tasks(), s.stacks.FreePages())
	}
}

func TestEntryTaskProtected(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	s.Run(func(Word) Word {
		main := s.Current()
		h, _ := s.Create(func(Word) Word {
			checkErr(t, "delete entry task", s.Delete(main), ErrNotPermitted)
			checkErr(t, "detach entry task", s.Detach(main), ErrNotPermitted)
			return 0
		}, 0, 0, 0)
		waitJoined(t, s, h)
		return 0
	}, 0)
}

func TestStartAndConfig(t *testing.T) {
	v, err := Start(DefaultConfig(), func(arg Word) Word { return arg + 1 }, 41)
	if err != nil || v != 42 {
		t.Errorf("Start should return the entry result: %d %v", v, err)
	}
	bad := DefaultConfig()
	bad.DefaultStackSize = 10
	if _, err := New(bad); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad config should be an invalid argument, got %v", err)
	}
	bad = DefaultConfig()
	bad.MaxTasks = 0
	if _, err := Start(bad, func(Word) Word { return 0 }, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero max tasks should be rejected, got %v", err)
	}
	bad = DefaultConfig()
	bad.MaxTasks = 1 << 16
	if _, err := New(bad); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("more tasks than an error can name should be rejected, got %v", err)
	}
}

func TestErrorNamesTask(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	s.Run(func(Word) Word {
		var caller Handle
		h, _ := s.Create(func(Word) Word {
			caller = s.Current()
			err := s.Delete(caller)
			var coded upbeat.Error
			if !errors.As(err, &coded) || int(coded.TaskID()) != caller.slot() {
				t.Errorf("error should carry the id of %v, got %v", caller, err)
			}
			return 0
		}, 0, 0, 0)
		waitJoined(t, s, h)
		return 0
	}, 0)
}

func TestCurrentOutsideRun(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	if s.Current() != NoHandle {
		t.Errorf("no task is running before Run")
	}
	defer func() {
		if recover() == nil {
			t.Errorf("Yield outside of a task should panic")
		}
	}()
	s.Yield()
}

func TestTaskPanicLeavesRun(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	entryUnwound, bystanderUnwound := false, false
	defer func() {
		if p := recover(); p != "task exploded" {
			t.Errorf("expected task panic out of Run, got %v", p)
		}
		if !entryUnwound || !bystanderUnwound {
			t.Errorf("suspended tasks should be stopped after a panic: entry %v, other %v",
				entryUnwound, bystanderUnwound)
		}
		if s.Current() != NoHandle {
			t.Errorf("no task is current after Run, have %v", s.Current())
		}
	}()
	s.Run(func(Word) Word {
		defer func() { entryUnwound = true }()
		s.Create(func(Word) Word {
			defer func() { bystanderUnwound = true }()
			for {
				s.Yield()
			}
		}, 0, 0, 0)
		s.Create(func(Word) Word { panic("task exploded") }, 0, 0, 0)
		for {
			s.Yield()
		}
	}, 0)
}

func TestMutexHandoff(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	var m comutex.Mutex
	var trace []string
	s.Run(func(Word) Word {
		a, _ := s.Create(func(Word) Word {
			m.Acquire(s)
			trace = append(trace, "A acquired")
			s.Yield()
			s.Yield()
			m.Release()
			trace = append(trace, "A released")
			return 0
		}, 0, 0, 0)
		b, _ := s.Create(func(Word) Word {
			if m.TryAcquire() {
				trace = append(trace, "B acquired early")
			} else {
				trace = append(trace, "B failed")
			}
			for !m.TryAcquire() {
				s.Yield()
			}
			trace = append(trace, "B acquired")
			m.Release()
			return 0
		}, 0, 0, 0)
		waitJoined(t, s, a)
		waitJoined(t, s, b)
		return 0
	}, 0)
	expected := "[A acquired B failed A released B acquired]"
	if fmt.Sprint(trace) != expected {
		t.Errorf("expected %s, got %v", expected, trace)
	}
}

func TestMutexRace(t *testing.T) {
	s := testScheduler(t, DefaultConfig())
	var m comutex.Mutex
	holders := 0
	maxHolders := 0
	var order []Word
	worker := func(id Word) Word {
		m.Acquire(s)
		holders++
		if holders > maxHolders {
			maxHolders = holders
		}
		order = append(order, id)
		for i := 0; i < 3; i++ {
			s.Yield()
		}
		holders--
		m.Release()
		return 0
	}
	s.Run(func(Word) Word {
		a, _ := s.Create(worker, 1, 0, 0)
		b, _ := s.Create(worker, 2, 0, 0)
		waitJoined(t, s, a)
		waitJoined(t, s, b)
		return 0
	}, 0)
	if maxHolders != 1 {
		t.Errorf("mutex held by %d tasks at once", maxHolders)
	}
	if fmt.Sprint(order) != "[1 2]" {
		t.Errorf("first task to try should win, order %v", order)
	}
}
