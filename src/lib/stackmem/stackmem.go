// Package stackmem hands out task stacks as runs of contiguous pages carved
// from one fixed arena, the way the kernel carves process stacks out of RAM.
package stackmem

import (
	"unsafe"

	"github.com/blocksds/libnds-sub001/src/lib/upbeat"
)

// Memory Errors
const MemorySubsystem = 1
const MemoryPageNotAvailable = 2
const MemoryBadPageRequest = 3
const MemoryAlreadyFree = 4

var ErrMemoryPageNotAvailable = upbeat.RegisterError(upbeat.ErrorValue(MemorySubsystem, MemoryPageNotAvailable),
	"not enough contiguous free pages")
var ErrMemoryBadPageRequest = upbeat.RegisterError(upbeat.ErrorValue(MemorySubsystem, MemoryBadPageRequest),
	"bad page request")
var ErrMemoryAlreadyFree = upbeat.RegisterError(upbeat.ErrorValue(MemorySubsystem, MemoryAlreadyFree),
	"memory is already free")

// Allocator is not safe for concurrent use; callers serialize on the
// cooperative scheduler.
type Allocator struct {
	pageSize int
	numPages int
	arena    []byte
	inUse    *upbeat.BitSet
	runLen   []int // pages in the run starting at this page, 0 if not a run start
}

// New returns an allocator over numPages pages of pageSize bytes.  pageSize
// must be a positive multiple of 4 so every run starts word aligned.
func New(pageSize int, numPages int) *Allocator {
	if pageSize <= 0 || pageSize%4 != 0 || numPages <= 0 {
		panic("stackmem: page size must be a positive multiple of 4 and there must be pages")
	}
	return &Allocator{
		pageSize: pageSize,
		numPages: numPages,
		arena:    make([]byte, pageSize*numPages),
		inUse:    upbeat.NewBitSet(uint32(numPages)),
		runLen:   make([]int, numPages),
	}
}

func (a *Allocator) PageSize() int {
	return a.pageSize
}

// FreePages returns how many pages are not part of any run.
func (a *Allocator) FreePages() int {
	return a.numPages - a.inUse.Count()
}

// Alloc returns size bytes (rounded up to whole pages internally) of zeroed
// memory.  The slice's capacity is clipped to size.
func (a *Allocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, upbeat.MakeError(ErrMemoryBadPageRequest, 0)
	}
	n := (size + a.pageSize - 1) / a.pageSize
	first, err := a.GetContiguousPages(n)
	if err != nil {
		return nil, err
	}
	off := first * a.pageSize
	buf := a.arena[off : off+size : off+size]
	for i := range buf {
		buf[i] = 0
	}
	return buf, nil
}

// Free returns a run obtained from Alloc.
func (a *Allocator) Free(buf []byte) error {
	page, err := a.pageOf(buf)
	if err != nil {
		return err
	}
	return a.ReleasePages(page)
}

// GetContiguousPages finds n free pages in a row, first fit, marks them in
// use and returns the index of the first one.
func (a *Allocator) GetContiguousPages(n int) (int, error) {
	if n <= 0 || n > a.numPages {
		return 0, upbeat.MakeError(ErrMemoryBadPageRequest, 0)
	}
	for i := 0; i+n <= a.numPages; i++ {
		if !a.inUse.RunClear(upbeat.BitIndex(i), uint32(n)) {
			continue
		}
		for j := i; j < i+n; j++ {
			a.inUse.Set(upbeat.BitIndex(j))
		}
		a.runLen[i] = n
		return i, nil
	}
	return 0, upbeat.MakeError(ErrMemoryPageNotAvailable, 0)
}

// ReleasePages frees the run that starts at page first.
func (a *Allocator) ReleasePages(first int) error {
	if first < 0 || first >= a.numPages {
		return upbeat.MakeError(ErrMemoryBadPageRequest, 0)
	}
	n := a.runLen[first]
	if n == 0 {
		if a.inUse.On(upbeat.BitIndex(first)) {
			return upbeat.MakeError(ErrMemoryBadPageRequest, 0) //middle of a run
		}
		return upbeat.MakeError(ErrMemoryAlreadyFree, 0)
	}
	for j := first; j < first+n; j++ {
		a.inUse.Clear(upbeat.BitIndex(j))
	}
	a.runLen[first] = 0
	return nil
}

// Owns reports whether buf came out of this allocator's arena.
func (a *Allocator) Owns(buf []byte) bool {
	_, err := a.pageOf(buf)
	return err == nil
}

func (a *Allocator) pageOf(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, upbeat.MakeError(ErrMemoryBadPageRequest, 0)
	}
	base := uintptr(unsafe.Pointer(&a.arena[0]))
	p := uintptr(unsafe.Pointer(&buf[0]))
	if p < base || p >= base+uintptr(len(a.arena)) {
		return 0, upbeat.MakeError(ErrMemoryBadPageRequest, 0)
	}
	off := int(p - base)
	if off%a.pageSize != 0 {
		return 0, upbeat.MakeError(ErrMemoryBadPageRequest, 0)
	}
	return off / a.pageSize, nil
}
