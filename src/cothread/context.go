package cothread

import (
	"runtime"
)

// context is the saved execution point of a task.  Every task runs on a
// goroutine of its own and exactly one of {the resumer, the task} is
// runnable at any time: control is handed back and forth over unbuffered
// channels, so a resume/yield pair behaves like the register save and
// restore of a real context switch.  Nothing outside this file looks
// inside a context.
type context struct {
	entry    Entry
	started  bool
	finished bool
	killed   bool

	resumeCh chan struct{}
	yieldCh  chan switchMsg
	killCh   chan struct{}
	exited   chan struct{}
}

type switchMsg struct {
	value Word
	done  bool
	fault interface{}
}

// makeContext lays out a suspended computation in r so that the first
// resume runs entry(arg).  When entry returns, r.joined is set and r.slot
// holds the result.
func makeContext(r *record, entry Entry, arg Word) {
	r.slot = arg
	r.joined = false
	r.ctx = context{
		entry:    entry,
		resumeCh: make(chan struct{}),
		yieldCh:  make(chan switchMsg),
		killCh:   make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// resume runs the task until it yields or finishes and returns the value
// it yielded (its result if it finished).  A panic in the task is raised
// again here.
func resume(r *record) Word {
	c := &r.ctx
	if c.finished || c.killed {
		panic("cothread: resume of a task that is no longer running")
	}
	if !c.started {
		c.started = true
		go trampoline(r)
	} else {
		c.resumeCh <- struct{}{}
	}
	msg := <-c.yieldCh
	if msg.fault != nil {
		c.finished = true
		panic(msg.fault)
	}
	if msg.done {
		c.finished = true
	}
	return msg.value
}

// yield is called on the task's own goroutine.  It hands v to the resumer
// and sleeps until the next resume.
func yield(r *record, v Word) {
	c := &r.ctx
	if c.killed {
		// a deferred call of a task being unwound; nobody will resume it
		runtime.Goexit()
	}
	c.yieldCh <- switchMsg{value: v}
	select {
	case <-c.resumeCh:
	case <-c.killCh:
		runtime.Goexit()
	}
}

// kill unwinds a task that is suspended in yield.  Deferred calls in the
// task run before kill returns; one that yields is cut short there.  Tasks
// that never started or that already finished have no goroutine to stop.
func kill(r *record) {
	c := &r.ctx
	if !c.started || c.finished || c.killed {
		return
	}
	c.killed = true
	close(c.killCh)
	<-c.exited
}

func trampoline(r *record) {
	c := &r.ctx
	returned := false
	defer func() {
		if returned {
			return
		}
		p := recover()
		if c.killed {
			close(c.exited)
			return
		}
		if p == nil {
			p = "cothread: task called runtime.Goexit"
		}
		c.yieldCh <- switchMsg{fault: p}
	}()
	v := c.entry(r.slot)
	r.slot = v
	r.joined = true
	returned = true
	c.yieldCh <- switchMsg{value: v, done: true}
}
