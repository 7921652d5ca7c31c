package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/blocksds/libnds-sub001/src/cothread"
	"github.com/blocksds/libnds-sub001/src/lib/trust"
)

var helpFlag = flag.Bool("h", false, "get usage info")
var seedFlag = flag.Int64("seed", 2, "random seed")
var opsFlag = flag.Int("n", 1000, "number of random operations")
var tasksFlag = flag.Uint("tasks", 32, "task records available")
var pagesFlag = flag.Int("pages", 64, "stack pages of 256 bytes")
var verbose = flag.Int("v", 0, "verbosity level: 0 terse (default), 1 print every op, 2 adds scheduler debug")

func main() {
	flag.Parse()
	if *helpFlag || *opsFlag <= 0 {
		fmt.Printf("usage: endurance [-seed n] [-n ops] [-tasks n] [-pages n] [-v level]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	trust.SetLevel(trust.LevelFromVerbosity(*verbose))

	cfg := cothread.DefaultConfig()
	cfg.MaxTasks = uint32(*tasksFlag)
	cfg.StackPages = *pagesFlag

	var trace io.Writer = io.Discard
	if *verbose > 0 {
		trace = os.Stdout
	}
	r, err := endure(cfg, *seedFlag, *opsFlag, trace)
	fmt.Printf("%d ops: %d created, %d out of memory, %d deleted, %d detached, %d joined\n",
		r.ops, r.created, r.noMemory, r.deleted, r.detached, r.joined)
	if err != nil {
		fmt.Printf("FAIL: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK: all records and stack pages returned\n")
}

type report struct {
	ops, created, noMemory, deleted, detached, joined int
}

// endure runs numOps random task operations from inside an entry task and
// then checks that every record and every stack page came back.
func endure(cfg cothread.Config, seed int64, numOps int, trace io.Writer) (report, error) {
	var rep report
	s, err := cothread.New(cfg)
	if err != nil {
		return rep, err
	}
	initial := s.Stats()
	rng := rand.New(rand.NewSource(seed))

	// a task yields arg%7 times and returns its arg
	body := func(arg cothread.Word) cothread.Word {
		for i := cothread.Word(0); i < arg%7; i++ {
			s.Yield()
		}
		return arg
	}

	var failure error
	check := func(format string, params ...interface{}) {
		if failure == nil {
			failure = fmt.Errorf(format, params...)
		}
	}

	s.Run(func(cothread.Word) cothread.Word {
		var live []cothread.Handle
		args := map[cothread.Handle]cothread.Word{}
		forget := func(i int) cothread.Handle {
			h := live[i]
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
			delete(args, h)
			return h
		}

		for op := 0; op < numOps && failure == nil; op++ {
			rep.ops++
			arg := cothread.Word(op)
			switch n := rng.Intn(10); {
			case n < 3:
				size := 4 * rng.Intn(512)
				flags := cothread.Flags(0)
				if n == 0 {
					flags = cothread.FlagDetached
				}
				fmt.Fprintf(trace, "create size=%d flags=%#x @%d\n", size, flags, op)
				h, err := s.Create(body, arg, size, flags)
				if errors.Is(err, cothread.ErrNoMemory) {
					rep.noMemory++
					break
				}
				if err != nil {
					check("create @%d: %v", op, err)
					break
				}
				rep.created++
				if flags == 0 {
					live = append(live, h)
					args[h] = arg
				}
			case n < 4:
				fmt.Fprintf(trace, "create manual @%d\n", op)
				h, err := s.CreateManual(body, arg, make([]byte, 512), 0)
				if errors.Is(err, cothread.ErrNoMemory) {
					rep.noMemory++
					break
				}
				if err != nil {
					check("create manual @%d: %v", op, err)
					break
				}
				rep.created++
				live = append(live, h)
				args[h] = arg
			case n < 5:
				if len(live) == 0 {
					break
				}
				h := forget(rng.Intn(len(live)))
				fmt.Fprintf(trace, "delete %v @%d\n", h, op)
				if err := s.Delete(h); err != nil {
					check("delete %v @%d: %v", h, op, err)
				}
				if _, err := s.HasJoined(h); !errors.Is(err, cothread.ErrInvalidArgument) {
					check("deleted %v still answers: %v", h, err)
				}
				rep.deleted++
			case n < 6:
				if len(live) == 0 {
					break
				}
				h := forget(rng.Intn(len(live)))
				fmt.Fprintf(trace, "detach %v @%d\n", h, op)
				if err := s.Detach(h); err != nil {
					check("detach %v @%d: %v", h, op, err)
				}
				rep.detached++
			case n < 8:
				for i := 0; i < len(live); i++ {
					h := live[i]
					joined, err := s.HasJoined(h)
					if err != nil {
						check("has joined %v @%d: %v", h, op, err)
						continue
					}
					if !joined {
						continue
					}
					want := args[h]
					code, err := s.ExitCode(h)
					if err != nil || code != want {
						check("%v exit code %d (%v), want %d", h, code, err, want)
					}
					forget(i)
					i--
					if err := s.Delete(h); err != nil {
						check("delete joined %v: %v", h, err)
					}
					rep.joined++
				}
			default:
				fmt.Fprintf(trace, "yield @%d\n", op)
				s.Yield()
			}
		}

		for _, h := range live {
			if err := s.Delete(h); err != nil {
				check("final delete %v: %v", h, err)
			}
		}
		// detached tasks give themselves back once they finish
		for i := 0; s.Tasks() > 1 && i < 16; i++ {
			s.Yield()
		}
		return 0
	}, 0)

	if failure != nil {
		return rep, failure
	}
	final := s.Stats()
	if final.Tasks != 1 {
		return rep, fmt.Errorf("%d task records still registered", final.Tasks-1)
	}
	if final.FreeStackPages != initial.FreeStackPages {
		return rep, fmt.Errorf("%d stack pages not returned", initial.FreeStackPages-final.FreeStackPages)
	}
	return rep, nil
}
