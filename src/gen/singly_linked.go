package gen

import (
	"github.com/cheekybits/genny/generic"
)

//go:generate genny -in=$GOFILE -out=stringish_singly_linked.go gen "Generic=Stringish"

type Generic generic.Type

type GenericNodeSL struct {
	next  *GenericNodeSL
	value *Generic
}

// GenericSinglyLinkedList implements a singly linked list
// that is not concurrent safe.  Appends are O(1) because the
// last node is kept; removal is a walk from the front.
type GenericSinglyLinkedList struct {
	first *GenericNodeSL
	last  *GenericNodeSL
}

// Next returns the next element of the list, or nil for the last node.
func (g *GenericNodeSL) Next() *GenericNodeSL {
	return g.next
}

// Value returns the element's value.
func (g *GenericNodeSL) Value() *Generic {
	return g.value
}

// NewGenericSinglyLinkedList returns an empty singly linked list.
// Note: It returns a value, not a pointer but the methods have
// pointer receivers.
func NewGenericSinglyLinkedList() GenericSinglyLinkedList {
	return GenericSinglyLinkedList{first: nil, last: nil}
}

// Empty returns true if the list is empty.
func (g *GenericSinglyLinkedList) Empty() bool {
	if g.first == nil {
		if g.last != nil {
			panic("invariant violated checking for Empty")
		}
		return true
	}
	return false
}

// Length returns the number of elements in the list.  This
// requires walking the list.
func (g *GenericSinglyLinkedList) Length() int {
	l := 0
	for curr := g.first; curr != nil; curr = curr.next {
		l++
	}
	return l
}

// First returns the first node in the list or a nil if the list is empty.
func (g *GenericSinglyLinkedList) First() *GenericNodeSL {
	if g.first == nil && g.last != nil {
		panic("invariant violated getting First()")
	}
	return g.first
}

// Last returns the last node in the list or a nil if the list is empty.
func (g *GenericSinglyLinkedList) Last() *GenericNodeSL {
	if g.last == nil {
		if g.first != nil {
			panic("invariant violated getting Last()")
		}
		return nil
	}
	if g.last.next != nil {
		panic("invariant of last node violated (Last())")
	}
	return g.last
}

// Append creates a node holding v at the end of the list and returns it.
func (g *GenericSinglyLinkedList) Append(v *Generic) *GenericNodeSL {
	n := &GenericNodeSL{value: v}
	g.AppendNode(n)
	return n
}

// AppendNode inserts the given node at the end of the list.  It panics
// if the node still points at a successor, since that means it is
// likely a member of another list.
func (g *GenericSinglyLinkedList) AppendNode(n *GenericNodeSL) {
	if n.next != nil {
		panic("attempt to insert node that is likely a member of " +
			"another list (AppendNode)")
	}
	if g.last == nil {
		if g.first != nil {
			panic("invariant of empty list is broken (AppendNode)")
		}
		g.first = n
		g.last = n
		return
	}
	if g.last.next != nil {
		panic("invariant of last node of list is broken (AppendNode)")
	}
	g.last.next = n
	g.last = n
}

// Remove takes a node out of the list.  It returns false if the node
// was not found.
func (g *GenericSinglyLinkedList) Remove(n *GenericNodeSL) bool {
	var prev *GenericNodeSL
	for curr := g.first; curr != nil; curr = curr.next {
		if curr != n {
			prev = curr
			continue
		}
		if prev == nil {
			g.first = curr.next
		} else {
			prev.next = curr.next
		}
		if g.last == curr {
			g.last = prev
		}
		curr.next = nil
		return true
	}
	return false
}

// Contains walks the list looking for a node holding v.
func (g *GenericSinglyLinkedList) Contains(v *Generic) bool {
	return g.Find(v) != nil
}

// Find returns the node holding v or nil.
func (g *GenericSinglyLinkedList) Find(v *Generic) *GenericNodeSL {
	for curr := g.first; curr != nil; curr = curr.next {
		if curr.value == v {
			return curr
		}
	}
	return nil
}

// TraverseGeneric walks all the items in the list, in order, starting at the
// front.  If the iteration function returns an error, the traversal is halted
// and that error is returned.
func (g *GenericSinglyLinkedList) TraverseGeneric(fn func(v *Generic) error) error {
	curr := g.first
	for curr != nil {
		next := curr.next
		if err := fn(curr.value); err != nil {
			return err
		}
		curr = next
	}
	return nil
}
