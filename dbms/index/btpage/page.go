// Package btpage describes one record of the index file as a B-tree node.
//
// Record layout (one field = FieldSize bytes, native byte order):
//
//	[0]          tag   (TagLeaf / TagInternal / TagFree)
//	[1 + 2i]     key of slot i       (-1 = empty)
//	[2 + 2i]     address of slot i   (data address or child record)
//
// Occupied slots are packed from slot 0 and sorted ascending by key; the
// first empty key ends the occupied prefix. The package is pure: it never
// touches the file, the pager does.
package btpage

import (
	"fmt"
	"sort"
)

// Tag is the value stored in column 0 of a record.
type Tag int64

const (
	TagFree     Tag = -1
	TagLeaf     Tag = 0
	TagInternal Tag = 1
)

func (t Tag) String() string {
	switch t {
	case TagFree:
		return "FREE"
	case TagLeaf:
		return "LEAF"
	case TagInternal:
		return "INTERNAL"
	default:
		return fmt.Sprintf("Tag(%d)", int64(t))
	}
}

// Nil marks an empty key, an unused address and the end of the free list.
const Nil int64 = -1

// Slot is one (key, address) pair.
type Slot struct {
	Key  int64
	Addr int64
}

// Empty is the slot written into unused positions.
var Empty = Slot{Key: Nil, Addr: Nil}

func (s Slot) IsEmpty() bool { return s.Key == Nil }

// Node is the decoded form of a record. Slots holds only the occupied prefix.
type Node struct {
	Tag   Tag
	Slots []Slot
}

func NewLeaf(slots ...Slot) *Node     { return &Node{Tag: TagLeaf, Slots: slots} }
func NewInternal(slots ...Slot) *Node { return &Node{Tag: TagInternal, Slots: slots} }

func (n *Node) Len() int         { return len(n.Slots) }
func (n *Node) IsLeaf() bool     { return n.Tag == TagLeaf }
func (n *Node) IsInternal() bool { return n.Tag == TagInternal }

// Max returns the last occupied slot, which holds the largest key.
// An empty node yields the Empty slot.
func (n *Node) Max() Slot {
	if len(n.Slots) == 0 {
		return Empty
	}
	return n.Slots[len(n.Slots)-1]
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	c := &Node{Tag: n.Tag, Slots: make([]Slot, len(n.Slots))}
	copy(c.Slots, n.Slots)
	return c
}

// lowerBound returns the index of the first slot whose key >= key.
func (n *Node) lowerBound(key int64) int {
	return sort.Search(len(n.Slots), func(i int) bool { return n.Slots[i].Key >= key })
}

// Find returns the index of the slot holding exactly key.
func (n *Node) Find(key int64) (int, bool) {
	i := n.lowerBound(key)
	if i < len(n.Slots) && n.Slots[i].Key == key {
		return i, true
	}
	return i, false
}

// Route returns the index of the first slot whose key is not smaller than
// key, i.e. the child whose subtree maximum covers key. It returns -1 when
// key is larger than every routing key.
func (n *Node) Route(key int64) int {
	i := n.lowerBound(key)
	if i == len(n.Slots) {
		return -1
	}
	return i
}

// ChildIndex returns the position of the slot whose address is rec.
func (n *Node) ChildIndex(rec int64) int {
	for i, s := range n.Slots {
		if s.Addr == rec {
			return i
		}
	}
	return -1
}

// InsertAt shifts slots [i:] right by one and stores s at i.
func (n *Node) InsertAt(i int, s Slot) {
	n.Slots = append(n.Slots, Slot{})
	copy(n.Slots[i+1:], n.Slots[i:])
	n.Slots[i] = s
}

// InsertSorted places s at its ordered position and returns that position.
func (n *Node) InsertSorted(s Slot) int {
	i := n.lowerBound(s.Key)
	n.InsertAt(i, s)
	return i
}

// RemoveAt deletes slot i, shifting the rest left, and returns it.
func (n *Node) RemoveAt(i int) Slot {
	s := n.Slots[i]
	n.Slots = append(n.Slots[:i], n.Slots[i+1:]...)
	return s
}

// Sorted reports whether the occupied keys are strictly ascending.
func (n *Node) Sorted() bool {
	for i := 1; i < len(n.Slots); i++ {
		if n.Slots[i-1].Key >= n.Slots[i].Key {
			return false
		}
	}
	return true
}

// Split divides an overflowing slot sequence. The left half keeps the first
// ceil(len/2) slots, the right half the rest. Both halves are fresh slices.
func Split(slots []Slot) (left, right []Slot) {
	mid := (len(slots) + 1) / 2
	left = append([]Slot(nil), slots[:mid]...)
	right = append([]Slot(nil), slots[mid:]...)
	return left, right
}

func (n *Node) String() string {
	return fmt.Sprintf("%s%v", n.Tag, n.Slots)
}
