package upbeat

type BitSet struct {
	size uint32
	data []uint64
}

type BitIndex uint32

//NewBitSet returns a bitset with room for size bits, all clear.  Storage
//is rounded up to a whole number of uint64s.
func NewBitSet(size uint32) *BitSet {
	result := &BitSet{
		data: make([]uint64, (size+63)>>6),
		size: size,
	}
	return result
}

func (b *BitSet) Size() uint32 {
	return b.size
}

func (b *BitSet) On(bit BitIndex) bool {
	b.check(bit)
	mask := uint64(1) << (bit % 64) //which bit in the word
	return b.data[bit>>6]&mask != 0
}

func (b *BitSet) Set(bit BitIndex) {
	b.check(bit)
	mask := uint64(1) << (bit % 64)
	b.data[bit>>6] |= mask
}

func (b *BitSet) Clear(bit BitIndex) {
	b.check(bit)
	mask := ^(uint64(1) << (bit % 64))
	b.data[bit>>6] &= mask
}

func (b *BitSet) ClearAll() {
	for i := range b.data {
		b.data[i] = 0
	}
}

// Count returns the number of bits that are on.
func (b *BitSet) Count() int {
	n := 0
	for i := uint32(0); i < b.size; i++ {
		if b.On(BitIndex(i)) {
			n++
		}
	}
	return n
}

// RunClear reports whether the bits [first,first+n) are all clear.
func (b *BitSet) RunClear(first BitIndex, n uint32) bool {
	if uint32(first)+n > b.size {
		return false
	}
	for i := uint32(0); i < n; i++ {
		if b.On(first + BitIndex(i)) {
			return false
		}
	}
	return true
}

func (b *BitSet) check(bit BitIndex) {
	if uint32(bit) >= b.size {
		panic("bit index out of range for bitset")
	}
}
