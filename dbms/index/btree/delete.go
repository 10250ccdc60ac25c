package btree

import (
	"github.com/btree-query-bench/slotindex/dbms/index/btpage"
)

// Delete removes key. A leaf left below the minimum occupancy borrows from a
// sibling or merges with one; merges can leave the parent short in turn, so
// the repair climbs the path until a node is full enough or the root is hit.
func (t *BTree) Delete(key int64) error {
	path, err := t.Locate(key)
	if err != nil {
		return err
	}
	leaf := path.Last()
	parents := path.Parents()

	n, err := t.readTreeNode(leaf.Record)
	if err != nil {
		return err
	}
	if leaf.Index >= n.Len() || n.Slots[leaf.Index].Key != key {
		return invariantf("record %d no longer holds key %d at slot %d", leaf.Record, key, leaf.Index)
	}
	wasMax := leaf.Index == n.Len()-1
	n.RemoveAt(leaf.Index)
	if err := t.pg.WriteNode(leaf.Record, n); err != nil {
		return err
	}

	if wasMax && n.Len() > 0 {
		if err := t.propagateMax(parents, key, n.Max().Key); err != nil {
			return err
		}
	}
	if leaf.Record == RootRecord || n.Len() >= t.min {
		return nil
	}
	return t.rebalance(parents, leaf.Record)
}

// propagateMax rewrites routing keys that still name oldMax, walking up from
// the deepest crumb and stopping at the first slot that does not match.
func (t *BTree) propagateMax(path Path, oldMax, newMax int64) error {
	for i := len(path) - 1; i >= 0; i-- {
		c := path[i]
		s, _, err := t.pg.ReadSlot(c.Record, c.Index)
		if err != nil {
			return err
		}
		if s.Key != oldMax {
			return nil
		}
		s.Key = newMax
		if err := t.pg.WriteSlot(c.Record, c.Index, s); err != nil {
			return err
		}
	}
	return nil
}

// rebalance repairs the underflowing node rec whose ancestors are path.
func (t *BTree) rebalance(path Path, rec int64) error {
	for path.Len() > 0 {
		c := path.pop()
		parent, err := t.readTreeNode(c.Record)
		if err != nil {
			return err
		}
		if c.Index >= parent.Len() || parent.Slots[c.Index].Addr != rec {
			return invariantf("record %d does not route to %d at slot %d", c.Record, rec, c.Index)
		}
		node, err := t.readTreeNode(rec)
		if err != nil {
			return err
		}
		oldMax := parent.Max().Key

		outcome, err := t.repair(c.Record, parent, c.Index, node)
		if err != nil {
			return err
		}

		if c.Record == RootRecord {
			return t.shrinkRoot(parent)
		}
		if parent.Len() > 0 && parent.Max().Key != oldMax {
			if err := t.propagateMax(path, oldMax, parent.Max().Key); err != nil {
				return err
			}
		}
		switch {
		case outcome == stranded:
			return nil
		case outcome == merged && parent.Len() == 1 && t.opts.Collapse == CollapseOneChild:
			// The record keeps its number, so the grandparent still routes to it.
			return t.collapse(c.Record, parent.Slots[0].Addr)
		case parent.Len() >= t.min:
			return nil
		}
		rec = c.Record
	}
	return nil
}

type repairOutcome int

const (
	borrowed repairOutcome = iota
	merged                 // parent lost a routing slot
	stranded               // no sibling of the same kind, node left short
)

// repair fixes node, the child at slot idx of parent, by borrowing from the
// right sibling, then the left one, and merging when neither can lend.
// parent is updated in memory and on disk.
func (t *BTree) repair(parentRec int64, parent *btpage.Node, idx int, node *btpage.Node) (repairOutcome, error) {
	rec := parent.Slots[idx].Addr

	var left, right *btpage.Node
	var leftRec int64
	if idx+1 < parent.Len() {
		n, ok, err := t.sibling(parent.Slots[idx+1].Addr, node)
		if err != nil {
			return 0, err
		}
		if ok {
			right = n
			if right.Len() > t.min {
				return borrowed, t.borrowRight(parentRec, parent, idx, node, right)
			}
		}
	}
	if idx > 0 {
		leftRec = parent.Slots[idx-1].Addr
		n, ok, err := t.sibling(leftRec, node)
		if err != nil {
			return 0, err
		}
		if ok {
			left = n
			if left.Len() > t.min {
				return borrowed, t.borrowLeft(parentRec, parent, idx, node, left)
			}
		}
	}

	switch {
	case left != nil:
		return merged, t.merge(parentRec, parent, idx-1, leftRec, left, node)
	case right != nil:
		return merged, t.merge(parentRec, parent, idx, rec, node, right)
	}

	// Nothing to borrow from or merge with. With a floor minimum of 1 the
	// parent may have this one child only; collapses can also leave a leaf
	// next to internal siblings.
	if node.Len() == 0 {
		if err := t.pg.Free(rec); err != nil {
			return 0, err
		}
		parent.RemoveAt(idx)
		return merged, t.pg.WriteNode(parentRec, parent)
	}
	if t.opts.Collapse == CollapseOneChild {
		return stranded, nil
	}
	return 0, invariantf("record %d underflows with %d slots and no sibling", rec, node.Len())
}

// sibling reads the neighbour rec of node. ok is false when the neighbour is
// a different kind of node, which only collapses can produce.
func (t *BTree) sibling(rec int64, node *btpage.Node) (n *btpage.Node, ok bool, err error) {
	n, err = t.readTreeNode(rec)
	if err != nil {
		return nil, false, err
	}
	if n.Tag != node.Tag {
		if t.opts.Collapse == CollapseOneChild {
			return nil, false, nil
		}
		return nil, false, invariantf("sibling record %d is %s, expected %s", rec, n.Tag, node.Tag)
	}
	return n, true, nil
}

// borrowRight moves the right sibling's smallest slot to the end of node.
func (t *BTree) borrowRight(parentRec int64, parent *btpage.Node, idx int, node, right *btpage.Node) error {
	rec, rightRec := parent.Slots[idx].Addr, parent.Slots[idx+1].Addr
	node.Slots = append(node.Slots, right.RemoveAt(0))
	if err := t.pg.WriteNode(rightRec, right); err != nil {
		return err
	}
	if err := t.pg.WriteNode(rec, node); err != nil {
		return err
	}
	parent.Slots[idx].Key = node.Max().Key
	return t.pg.WriteSlot(parentRec, idx, parent.Slots[idx])
}

// borrowLeft moves the left sibling's largest slot to the front of node.
func (t *BTree) borrowLeft(parentRec int64, parent *btpage.Node, idx int, node, left *btpage.Node) error {
	rec, leftRec := parent.Slots[idx].Addr, parent.Slots[idx-1].Addr
	node.InsertAt(0, left.RemoveAt(left.Len()-1))
	if err := t.pg.WriteNode(leftRec, left); err != nil {
		return err
	}
	if err := t.pg.WriteNode(rec, node); err != nil {
		return err
	}
	parent.Slots[idx-1].Key = left.Max().Key
	if err := t.pg.WriteSlot(parentRec, idx-1, parent.Slots[idx-1]); err != nil {
		return err
	}
	// An emptied node still carries the key it lost.
	if parent.Slots[idx].Key != node.Max().Key {
		parent.Slots[idx].Key = node.Max().Key
		return t.pg.WriteSlot(parentRec, idx, parent.Slots[idx])
	}
	return nil
}

// merge appends src, the child right after dst in parent, to dst and frees
// src's record. The two routing slots become one.
func (t *BTree) merge(parentRec int64, parent *btpage.Node, dstIdx int, dstRec int64, dst, src *btpage.Node) error {
	srcRec := parent.Slots[dstIdx+1].Addr
	slots := make([]btpage.Slot, 0, dst.Len()+src.Len())
	slots = append(slots, dst.Slots...)
	slots = append(slots, src.Slots...)
	if len(slots) == 0 || len(slots) > t.Order() {
		return invariantf("merging records %d and %d yields %d slots", dstRec, srcRec, len(slots))
	}
	merged := &btpage.Node{Tag: dst.Tag, Slots: slots}
	if err := t.pg.WriteNode(dstRec, merged); err != nil {
		return err
	}
	if err := t.pg.Free(srcRec); err != nil {
		return err
	}
	parent.Slots[dstIdx] = btpage.Slot{Key: merged.Max().Key, Addr: dstRec}
	parent.RemoveAt(dstIdx + 1)
	return t.pg.WriteNode(parentRec, parent)
}

// shrinkRoot lowers the tree by one level when the root is down to a single
// child. A root with no children at all becomes an empty leaf.
func (t *BTree) shrinkRoot(root *btpage.Node) error {
	switch root.Len() {
	case 0:
		return t.pg.WriteNode(RootRecord, btpage.NewLeaf())
	case 1:
		return t.collapse(RootRecord, root.Slots[0].Addr)
	}
	return nil
}

// collapse copies child's tag and slots into rec, its parent, and frees the
// child's record.
func (t *BTree) collapse(rec, child int64) error {
	n, err := t.readTreeNode(child)
	if err != nil {
		return err
	}
	if err := t.pg.WriteNode(rec, n); err != nil {
		return err
	}
	return t.pg.Free(child)
}
