package cothread

// loop is the scheduler.  It walks the registry round robin, giving every
// unfinished task one turn, reaps detached tasks the moment they finish,
// and returns the entry task's exit code when the entry task finishes.
//
// A cycle in which every task that ran suspended in YieldUntil means
// nobody can make progress until an interrupt arrives, so the loop halts
// on the configured EventWaiter until one of the awaited bits is pending.
func (s *Scheduler) loop() Word {
	cursor := s.reg.head()
	idle := true
	var waitMask uint32
	for {
		r := cursor.Value()
		reclaim := false
		if !r.joined {
			s.current = r
			s.turns++
			resume(r)
			if r.waitMask == 0 {
				idle = false
			} else {
				waitMask |= r.waitMask
			}
			if r.joined {
				if r == &s.entry {
					s.current = nil
					return r.slot
				}
				if r.detached() {
					reclaim = true
				} else {
					s.log.Debugf("cothread: %v finished with exit code %d", r.handle, r.slot)
				}
			}
		}
		next := cursor.Next()
		if reclaim {
			s.reap(r)
		}
		if next == nil {
			if idle && waitMask != 0 && s.cfg.Events != nil {
				s.halt(waitMask)
			}
			idle = true
			waitMask = 0
			next = s.reg.head()
		}
		cursor = next
	}
}

func (s *Scheduler) halt(mask uint32) {
	s.halts++
	s.log.Statsf("cothread", "halting until interrupt %#x (halt %d, %d turns)", mask, s.halts, s.turns)
	s.cfg.Events.WaitAny(mask)
}

// destroy unlinks a task, stops its goroutine if it is suspended and gives
// back its record and any stack we allocated for it.
func (s *Scheduler) destroy(r *record) {
	s.reg.remove(r)
	s.unwind(r)
	if r.ownedStack != nil {
		if err := s.stacks.Free(r.ownedStack); err != nil {
			s.log.Errorf("cothread: freeing stack of %v: %v", r.handle, err)
		}
	}
	s.pool.Dealloc(r.handle.slot() - 1)
}

// reap reclaims a finished detached task.
func (s *Scheduler) reap(r *record) {
	s.log.Debugf("cothread: reaping detached %v", r.handle)
	s.destroy(r)
	s.reaped++
}

// unwind stops a suspended task.  While its deferred calls run it is the
// current task, so locks it holds are released as their owner.
func (s *Scheduler) unwind(r *record) {
	prev := s.current
	s.current = r
	kill(r)
	s.current = prev
}

// shutdown runs once the entry task has finished, or a task has panicked.
// Suspended tasks (the entry task too, after a panic) have their
// goroutines stopped; their records stay so their handles can still be
// queried.
func (s *Scheduler) shutdown() {
	s.reg.list.TraverseRecord(func(r *record) error {
		s.unwind(r)
		return nil
	})
	s.current = nil
	s.log.Statsf("cothread", "%d turns, %d halts, %d detached tasks reaped, %d records left",
		s.turns, s.halts, s.reaped, s.reg.length())
}

// Stats is a snapshot of the scheduler's counters.
type Stats struct {
	Turns          uint64 // resumes of any task
	Halts          uint64 // waits for an interrupt with every task idle
	Reaped         uint64 // detached tasks reclaimed on finishing
	Tasks          int    // registered tasks, entry task included
	FreeStackPages int
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Turns:          s.turns,
		Halts:          s.halts,
		Reaped:         s.reaped,
		Tasks:          s.reg.length(),
		FreeStackPages: s.stacks.FreePages(),
	}
}
