package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	tty "github.com/mattn/go-tty"

	"github.com/blocksds/libnds-sub001/src/comutex"
	"github.com/blocksds/libnds-sub001/src/cothread"
	"github.com/blocksds/libnds-sub001/src/lib/retarget"
	"github.com/blocksds/libnds-sub001/src/lib/trust"
	"github.com/blocksds/libnds-sub001/src/lib/upbeat"
)

var helpFlag = flag.Bool("h", false, "get usage info")
var ttyFlag = flag.String("p", "", "read keys from this tty device instead of the controlling terminal")
var verbose = flag.Int("v", 0, "verbosity level: 0 terse (default), 1 debug info, 2 show everything")
var workers = flag.Int("w", 3, "number of worker tasks sharing the counter")
var rounds = flag.Int("n", 200, "increments done by each worker")
var hz = flag.Int("hz", 60, "vblank interrupts per second")

const keyBufferSize = 16

// console is shared by every task; the lock keeps one task's line whole.
type console struct {
	out  io.Writer
	lock retarget.RecursiveLock
	s    *cothread.Scheduler
}

func (c *console) printf(format string, params ...interface{}) {
	c.lock.Acquire(c.s)
	defer c.lock.Release(c.s)
	fmt.Fprintf(c.out, format, params...)
	c.s.Yield() // give others a chance to try the lock mid line
	fmt.Fprint(c.out, "\r\n")
}

///////////////////////////////////////////////////////////////////////
// main
///////////////////////////////////////////////////////////////////////
func main() {
	flag.Parse()
	if *helpFlag || *workers < 0 || *rounds <= 0 || *hz <= 0 {
		usage()
	}
	trust.SetLevel(trust.LevelFromVerbosity(*verbose))

	var term *tty.TTY
	var err error
	if *ttyFlag != "" {
		term, err = tty.OpenDevice(*ttyFlag)
	} else {
		term, err = tty.Open()
	}
	if err != nil {
		trust.Fatalf(1, "cokeys: opening terminal: %v", err)
	}
	restore := term.MustRaw()

	events := upbeat.NewEvents()
	keys := make(chan rune, keyBufferSize)
	go keyboardInterrupt(term, keys, events)
	go vblankInterrupt(time.Second/time.Duration(*hz), events)

	cfg := cothread.DefaultConfig()
	cfg.Events = events
	s, err := cothread.New(cfg)
	if err != nil {
		trust.Fatalf(1, "cokeys: %v", err)
	}
	con := &console{out: term.Output(), s: s}
	d := &demo{s: s, con: con, events: events, keys: keys}

	code := s.Run(d.entry, 0)
	st := s.Stats()
	trust.Infof("cokeys: %d turns, %d halts, %d reaped", st.Turns, st.Halts, st.Reaped)
	restore()
	term.Close()
	os.Exit(int(code))
}

func usage() {
	fmt.Printf("usage: cokeys [-p tty] [-w workers] [-n rounds] [-hz rate] [-v level]\n")
	flag.PrintDefaults()
	os.Exit(1)
}

// keyboardInterrupt plays the part of the key interrupt handler: it queues
// each key and raises IRQKeys.  Keys arriving while the queue is full are
// dropped.
func keyboardInterrupt(term *tty.TTY, keys chan<- rune, events *upbeat.Events) {
	for {
		r, err := term.ReadRune()
		if err != nil {
			trust.Errorf("cokeys: reading keys: %v", err)
			close(keys)
			events.Raise(upbeat.IRQKeys)
			return
		}
		select {
		case keys <- r:
		default:
			trust.Warnf("cokeys: key buffer full, dropped %q", r)
		}
		events.Raise(upbeat.IRQKeys)
	}
}

func vblankInterrupt(period time.Duration, events *upbeat.Events) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for range ticker.C {
		events.Raise(upbeat.IRQVBlank)
	}
}

///////////////////////////////////////////////////////////////////////
// tasks
///////////////////////////////////////////////////////////////////////
type demo struct {
	s      *cothread.Scheduler
	con    *console
	events *upbeat.Events
	keys   <-chan rune

	counterLock comutex.Mutex
	counter     int
	frames      int
}

func (d *demo) entry(cothread.Word) cothread.Word {
	d.con.printf("cokeys: %d workers, press keys, q to quit", *workers)

	if _, err := d.s.Create(d.spinner, 0, 0, cothread.FlagDetached); err != nil {
		d.con.printf("cokeys: no spinner: %v", err)
	}
	handles := make([]cothread.Handle, 0, *workers)
	for i := 0; i < *workers; i++ {
		h, err := d.s.Create(d.worker, cothread.Word(*rounds), 0, 0)
		if err != nil {
			d.con.printf("cokeys: worker %d not created: %v", i, err)
			continue
		}
		handles = append(handles, h)
	}

	for d.echoKeys() {
		d.reapWorkers(&handles)
	}

	for _, h := range handles {
		if err := d.s.Delete(h); err != nil {
			d.con.printf("cokeys: delete %v: %v", h, err)
		}
	}
	d.con.printf("cokeys: counter %d after %d frames", d.counter, d.frames)
	return 0
}

// echoKeys waits for the key interrupt and echoes what was queued.  It
// reports false once q was pressed or the keyboard is gone.
func (d *demo) echoKeys() bool {
	for d.events.Take(upbeat.IRQKeys) == 0 {
		d.s.YieldUntil(upbeat.IRQKeys)
	}
	for {
		select {
		case r, ok := <-d.keys:
			if !ok || r == 'q' {
				return false
			}
			d.con.printf("key %q (frame %d)", r, d.frames)
		default:
			return true
		}
	}
}

func (d *demo) reapWorkers(handles *[]cothread.Handle) {
	live := (*handles)[:0]
	for _, h := range *handles {
		joined, err := d.s.HasJoined(h)
		if err != nil || !joined {
			live = append(live, h)
			continue
		}
		code, _ := d.s.ExitCode(h)
		d.con.printf("%v done after %d increments, counter %d", h, code, d.counter)
		if err := d.s.Delete(h); err != nil {
			d.con.printf("cokeys: delete %v: %v", h, err)
		}
	}
	*handles = live
}

// worker adds to the shared counter while holding the mutex across a
// yield, so other workers have to wait their turn.
func (d *demo) worker(n cothread.Word) cothread.Word {
	for i := cothread.Word(0); i < n; i++ {
		d.counterLock.Acquire(d.s)
		v := d.counter
		d.s.Yield()
		d.counter = v + 1
		d.counterLock.Release()
		d.s.Yield()
	}
	return n
}

// spinner wakes on every vblank and shows a status line once a second.
func (d *demo) spinner(cothread.Word) cothread.Word {
	const spin = `|/-\`
	for {
		for d.events.Take(upbeat.IRQVBlank) == 0 {
			d.s.YieldUntil(upbeat.IRQVBlank)
		}
		d.frames++
		if d.frames%*hz == 0 {
			d.con.printf("%c frame %d counter %d", spin[(d.frames / *hz)%len(spin)], d.frames, d.counter)
		}
	}
}
