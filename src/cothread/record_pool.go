// This file was automatically generated by genny.
// Any changes will be lost if this file is regenerated.
// see https://github.com/cheekybits/genny

package cothread

import (
	"math/rand"

	"github.com/blocksds/libnds-sub001/src/lib/upbeat"
)

// recordManagedPool is a fixed number of elements handed out by index.
// Each slot carries a generation that moves on every Dealloc, so an
// (index, generation) pair names one particular use of a slot and goes
// stale once that use is over.
type recordManagedPool struct {
	elements   []record
	generation []uint32
	bitset     *upbeat.BitSet
	num        int
}

// NewRecordManagedPool returns a pool of numElements elements, all free.
func NewRecordManagedPool(numElements uint32) recordManagedPool {
	if numElements == 0 {
		panic("requested size is not valid for a pool")
	}
	result := recordManagedPool{
		elements:   make([]record, numElements),
		generation: make([]uint32, numElements),
		bitset:     upbeat.NewBitSet(numElements),
		num:        int(numElements),
	}
	for i := range result.generation {
		result.generation[i] = 1
	}
	return result
}

// Alloc returns the index of a free element and a pointer to it.  It
// returns -1 and nil if the pool is exhausted.  Note that a pool may go
// from exhausted to working if Dealloc() is called.
func (g *recordManagedPool) Alloc() (int, *record) {
	tries := 0
	for tries < maxGuesses {
		guess := rand.Intn(g.num)
		if g.bitset.On(upbeat.BitIndex(guess)) {
			tries++
			continue
		}
		// use that one
		g.bitset.Set(upbeat.BitIndex(guess))
		return guess, &g.elements[guess]
	}
	// ugly search
	for i := 0; i < g.num; i++ {
		if g.bitset.On(upbeat.BitIndex(i)) {
			continue
		}
		g.bitset.Set(upbeat.BitIndex(i))
		return i, &g.elements[i]
	}
	return -1, nil
}

// Dealloc zeroes the element, frees the slot and moves its generation on.
func (g *recordManagedPool) Dealloc(index int) {
	if index < 0 || index >= g.num || !g.bitset.On(upbeat.BitIndex(index)) {
		panic("index passed to Dealloc() that is not allocated from pool")
	}
	var zero record
	g.elements[index] = zero
	g.bitset.Clear(upbeat.BitIndex(index))
	g.generation[index]++
	if g.generation[index] == 0 {
		g.generation[index] = 1
	}
}

// Generation of the slot's current (or next, if free) use.
func (g *recordManagedPool) Generation(index int) uint32 {
	return g.generation[index]
}

// Lookup returns the element at index if it is allocated and still in the
// given generation, nil otherwise.
func (g *recordManagedPool) Lookup(index int, generation uint32) *record {
	if index < 0 || index >= g.num {
		return nil
	}
	if !g.bitset.On(upbeat.BitIndex(index)) || g.generation[index] != generation {
		return nil
	}
	return &g.elements[index]
}

// InUse returns the number of allocated elements.
func (g *recordManagedPool) InUse() int {
	return g.bitset.Count()
}

// Full reports whether every element is free (the pool holds all of them).
func (g *recordManagedPool) Full() bool {
	return g.InUse() == 0
}

// Empty reports whether every element has been handed out.
func (g *recordManagedPool) Empty() bool {
	return g.InUse() == g.num
}
