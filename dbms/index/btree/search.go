package btree

import (
	"github.com/btree-query-bench/slotindex/dbms/index"
	"github.com/btree-query-bench/slotindex/dbms/index/btpage"
	"github.com/cockroachdb/errors"
)

// Search returns the address stored for key.
func (t *BTree) Search(key int64) (int64, error) {
	path, err := t.Locate(key)
	if err != nil {
		return 0, err
	}
	return path.Last().Slot.Addr, nil
}

// Locate walks from the root to the leaf holding key and returns every slot
// it went through. At an internal node it follows the first slot whose key
// is not smaller than key; when key is above every routing key it is above
// the tree maximum, and the search stops there.
func (t *BTree) Locate(key int64) (Path, error) {
	ok, err := t.hasRoot()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(index.ErrNotFound, "key %d (empty tree)", key)
	}

	var path Path
	rec := int64(RootRecord)
	for depth := int64(0); ; depth++ {
		if depth >= t.pg.Records() {
			return nil, invariantf("descent for key %d does not reach a leaf", key)
		}
		n, err := t.readTreeNode(rec)
		if err != nil {
			return nil, err
		}

		if n.Tag == btpage.TagLeaf {
			i, found := n.Find(key)
			if !found {
				return nil, errors.Wrapf(index.ErrNotFound, "key %d", key)
			}
			path.push(Crumb{Record: rec, Index: i, Slot: n.Slots[i]})
			return path, nil
		}

		i := n.Route(key)
		if i < 0 {
			return nil, errors.Wrapf(index.ErrNotFound, "key %d above tree maximum", key)
		}
		path.push(Crumb{Record: rec, Index: i, Slot: n.Slots[i]})
		rec = n.Slots[i].Addr
	}
}
