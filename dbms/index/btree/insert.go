package btree

import (
	"github.com/btree-query-bench/slotindex/dbms/index/btpage"
	"github.com/cockroachdb/errors"
)

// Insert adds (key, addr). A full leaf is split and the split climbs the
// path as long as parents overflow, growing a new root at the top.
func (t *BTree) Insert(key, addr int64) error {
	if err := t.checkKey(key); err != nil {
		return err
	}
	if !t.pg.Layout().Fits(addr) {
		return errors.Wrapf(ErrInvalidAddress, "address %d", addr)
	}

	ok, err := t.hasRoot()
	if err != nil {
		return err
	}
	if !ok {
		return t.plantRoot(btpage.Slot{Key: key, Addr: addr})
	}

	path, leaf, n, raise, err := t.descend(key)
	if err != nil {
		return err
	}

	if i, found := n.Find(key); found {
		if t.opts.Duplicates != OverwriteDuplicates {
			return errors.Wrapf(ErrDuplicateKey, "key %d", key)
		}
		return t.pg.WriteSlot(leaf, i, btpage.Slot{Key: key, Addr: addr})
	}

	if n.Len() >= t.Order() {
		need, err := t.splitCost(path)
		if err != nil {
			return err
		}
		if err := t.pg.Reserve(need); err != nil {
			return errors.Wrapf(err, "insert key %d", key)
		}
	}

	// key is the new maximum of every subtree whose routing slot was too small.
	for _, d := range raise {
		c := &path[d]
		c.Slot.Key = key
		if err := t.pg.WriteSlot(c.Record, c.Index, c.Slot); err != nil {
			return err
		}
	}

	n.InsertSorted(btpage.Slot{Key: key, Addr: addr})
	if n.Len() <= t.Order() {
		return t.pg.WriteNode(leaf, n)
	}
	return t.split(path, leaf, n)
}

// plantRoot creates the first leaf. On a formatted file the free list starts
// at record 1, which is where the root must live.
func (t *BTree) plantRoot(s btpage.Slot) error {
	head, err := t.pg.FreeHead()
	if err != nil {
		return err
	}
	if head != RootRecord && head != btpage.Nil {
		return invariantf("empty tree but free list starts at record %d", head)
	}
	rec, err := t.pg.Allocate()
	if err != nil {
		return err
	}
	if err := t.pg.WriteNode(rec, btpage.NewLeaf(s)); err != nil {
		return err
	}
	t.rootKnown = true
	return nil
}

// descend finds the leaf that should receive key. At each internal node it
// takes the first slot whose key covers key, or the last slot if none does;
// the positions in path of those last slots are returned in raise so the
// caller can lift their routing keys once it knows the insert will proceed.
func (t *BTree) descend(key int64) (path Path, leaf int64, n *btpage.Node, raise []int, err error) {
	rec := int64(RootRecord)
	for depth := int64(0); ; depth++ {
		if depth >= t.pg.Records() {
			return nil, 0, nil, nil, invariantf("descent for key %d does not reach a leaf", key)
		}
		n, err = t.readTreeNode(rec)
		if err != nil {
			return nil, 0, nil, nil, err
		}
		if n.IsLeaf() {
			return path, rec, n, raise, nil
		}
		if n.Len() == 0 {
			return nil, 0, nil, nil, invariantf("internal record %d has no children", rec)
		}
		i := n.Route(key)
		if i < 0 {
			i = n.Len() - 1
			raise = append(raise, len(path))
		}
		path.push(Crumb{Record: rec, Index: i, Slot: n.Slots[i]})
		rec = n.Slots[i].Addr
	}
}

// splitCost counts the records a split of the leaf below path consumes: one
// per node that splits, plus one for a new root when the split reaches it.
func (t *BTree) splitCost(path Path) (int, error) {
	need := 1
	for i := len(path) - 1; i >= 0; i-- {
		c, err := t.pg.CountOccupied(path[i].Record)
		if err != nil {
			return 0, err
		}
		if c < t.Order() {
			return need, nil
		}
		need++
	}
	return need + 1, nil
}

// split handles a node holding m+1 slots in memory. The first ceil((m+1)/2)
// slots stay in rec, the rest move to a new record of the same tag, and the
// parent's slot for rec is replaced by one slot per half.
func (t *BTree) split(path Path, rec int64, n *btpage.Node) error {
	for {
		left, right := btpage.Split(n.Slots)
		sibling, err := t.pg.Allocate()
		if err != nil {
			return err
		}
		if err := t.pg.WriteNode(rec, &btpage.Node{Tag: n.Tag, Slots: left}); err != nil {
			return err
		}
		if err := t.pg.WriteNode(sibling, &btpage.Node{Tag: n.Tag, Slots: right}); err != nil {
			return err
		}
		promoted := left[len(left)-1].Key
		rightMax := right[len(right)-1].Key

		if path.Len() == 0 {
			return t.growRoot(rec, sibling, promoted, rightMax)
		}

		c := path.pop()
		parent, err := t.readTreeNode(c.Record)
		if err != nil {
			return err
		}
		if c.Index >= parent.Len() || parent.Slots[c.Index].Addr != rec {
			return invariantf("record %d does not route to %d at slot %d", c.Record, rec, c.Index)
		}
		parent.Slots[c.Index].Key = promoted
		parent.InsertAt(c.Index+1, btpage.Slot{Key: rightMax, Addr: sibling})
		if parent.Len() <= t.Order() {
			return t.pg.WriteNode(c.Record, parent)
		}
		rec, n = c.Record, parent
	}
}

// growRoot puts a new internal root above left and right. Internal nodes are
// kept below their children: the new record takes the old root's contents
// and the new root is written into the old root's record.
func (t *BTree) growRoot(left, right, leftMax, rightMax int64) error {
	if left != RootRecord {
		return invariantf("split reached the top at record %d, not the root", left)
	}
	rec, err := t.pg.Allocate()
	if err != nil {
		return err
	}
	root := btpage.NewInternal(
		btpage.Slot{Key: leftMax, Addr: left},
		btpage.Slot{Key: rightMax, Addr: right},
	)
	if rec < left {
		return invariantf("record %d allocated for the root lies below the old root", rec)
	}

	child, err := t.pg.ReadNode(left)
	if err != nil {
		return err
	}
	if err := t.pg.WriteNode(rec, child); err != nil {
		return err
	}
	root.Slots[0].Addr = rec
	return t.pg.WriteNode(left, root)
}
