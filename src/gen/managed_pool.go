package gen

import (
	"math/rand"

	"github.com/blocksds/libnds-sub001/src/lib/upbeat"
)

//go:generate genny -in=$GOFILE -out=stringish_managed_pool.go gen "Generic=Stringish"

// GenericManagedPool is a fixed number of elements handed out by index.
// Each slot carries a generation that moves on every Dealloc, so an
// (index, generation) pair names one particular use of a slot and goes
// stale once that use is over.
type GenericManagedPool struct {
	elements   []Generic
	generation []uint32
	bitset     *upbeat.BitSet
	num        int
}

// NewGenericManagedPool returns a pool of numElements elements, all free.
func NewGenericManagedPool(numElements uint32) GenericManagedPool {
	if numElements == 0 {
		panic("requested size is not valid for a pool")
	}
	result := GenericManagedPool{
		elements:   make([]Generic, numElements),
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
func (g *GenericManagedPool) Alloc() (int, *Generic) {
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
func (g *GenericManagedPool) Dealloc(index int) {
	if index < 0 || index >= g.num || !g.bitset.On(upbeat.BitIndex(index)) {
		panic("index passed to Dealloc() that is not allocated from pool")
	}
	var zero Generic
	g.elements[index] = zero
	g.bitset.Clear(upbeat.BitIndex(index))
	g.generation[index]++
	if g.generation[index] == 0 {
		g.generation[index] = 1
	}
}

// Generation of the slot's current (or next, if free) use.
func (g *GenericManagedPool) Generation(index int) uint32 {
	return g.generation[index]
}

// Lookup returns the element at index if it is allocated and still in the
// given generation, nil otherwise.
func (g *GenericManagedPool) Lookup(index int, generation uint32) *Generic {
	if index < 0 || index >= g.num {
		return nil
	}
	if !g.bitset.On(upbeat.BitIndex(index)) || g.generation[index] != generation {
		return nil
	}
	return &g.elements[index]
}

// InUse returns the number of allocated elements.
func (g *GenericManagedPool) InUse() int {
	return g.bitset.Count()
}

// Full reports whether every element is free (the pool holds all of them).
func (g *GenericManagedPool) Full() bool {
	return g.InUse() == 0
}

// Empty reports whether every element has been handed out.
func (g *GenericManagedPool) Empty() bool {
	return g.InUse() == g.num
}
