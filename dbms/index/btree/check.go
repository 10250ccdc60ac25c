package btree

import (
	"fmt"

	"github.com/btree-query-bench/slotindex/dbms/index/btpage"
	"github.com/btree-query-bench/slotindex/dbms/pager"
	"github.com/cockroachdb/errors"
)

// Stats summarizes the shape of the tree and the file around it.
type Stats struct {
	Depth    int // levels down to the deepest leaf, 0 for an empty tree
	Leaves   int
	Internal int
	Keys     int
	Free     int
	Records  int64
}

func (s Stats) String() string {
	return fmt.Sprintf("depth=%d leaves=%d internal=%d keys=%d free=%d records=%d",
		s.Depth, s.Leaves, s.Internal, s.Keys, s.Free, s.Records)
}

// Check scans the whole file and verifies the tree against its structural
// rules: sorted packed slots, occupancy bounds, routing keys equal to subtree
// maxima, and a free list that together with the tree accounts for every
// record exactly once. The first violation is returned as an ErrInvariant
// error.
//
// Under UniformDepth every leaf must sit at the same depth and every non-root
// node must hold MinKeys slots. Collapses move leaves up and can strand a
// short node between siblings of the other kind, so under CollapseOneChild
// non-root nodes only have to be non-empty.
func (t *BTree) Check() (Stats, error) {
	st := Stats{Records: t.pg.Records()}

	free, err := t.pg.FreeList()
	if err != nil {
		return st, errors.Mark(err, ErrInvariant)
	}
	st.Free = len(free)

	tag, err := t.pg.Tag(RootRecord)
	if err != nil {
		return st, err
	}
	if tag == btpage.TagFree {
		if int64(len(free)) != st.Records-1 {
			return st, invariantf("empty tree but only %d of %d records are free", len(free), st.Records-1)
		}
		return st, nil
	}

	c := &checker{
		t:         t,
		st:        &st,
		live:      make(map[int64]bool),
		free:      make(map[int64]bool, len(free)),
		min:       1,
		leafDepth: -1,
	}
	if t.opts.Collapse == UniformDepth {
		c.min = t.min
		c.uniform = true
	}
	for _, rec := range free {
		c.free[rec] = true
	}
	if _, err := c.walk(RootRecord, 0, btpage.Nil); err != nil {
		return st, err
	}
	st.Depth = c.maxDepth + 1
	if live := int64(len(c.live)); live+int64(len(free)) != st.Records-1 {
		return st, invariantf("%d live and %d free records, file has %d", live, len(free), st.Records-1)
	}
	return st, nil
}

type checker struct {
	t         *BTree
	st        *Stats
	live      map[int64]bool
	free      map[int64]bool
	min       int
	uniform   bool
	leafDepth int
	maxDepth  int
}

// walk verifies the subtree at rec, whose keys must all exceed lo, and
// returns its maximum key.
func (c *checker) walk(rec int64, depth int, lo int64) (int64, error) {
	if rec <= pager.SentinelRecord || rec >= c.t.pg.Records() {
		return 0, invariantf("child record %d outside the file", rec)
	}
	if c.live[rec] {
		return 0, invariantf("record %d is reachable twice", rec)
	}
	if c.free[rec] {
		return 0, invariantf("live record %d is on the free list", rec)
	}
	c.live[rec] = true

	n, err := c.t.readTreeNode(rec)
	if err != nil {
		return 0, err
	}
	row, err := c.t.pg.ReadRow(rec)
	if err != nil {
		return 0, err
	}
	for i := n.Len(); i < c.t.Order(); i++ {
		if row[1+2*i] != btpage.Nil {
			return 0, invariantf("record %d has slot %d occupied after an empty one", rec, i)
		}
	}
	if !n.Sorted() {
		return 0, invariantf("record %d is not sorted: %v", rec, n)
	}
	if rec != RootRecord && n.Len() < c.min {
		return 0, invariantf("record %d holds %d slots, minimum is %d", rec, n.Len(), c.min)
	}
	if n.Len() > 0 && lo != btpage.Nil && n.Slots[0].Key <= lo {
		return 0, invariantf("record %d starts at key %d, not above %d", rec, n.Slots[0].Key, lo)
	}

	if n.IsLeaf() {
		switch {
		case c.leafDepth < 0:
			c.leafDepth = depth
		case c.uniform && c.leafDepth != depth:
			return 0, invariantf("leaf %d at depth %d, other leaves at %d", rec, depth, c.leafDepth)
		}
		c.maxDepth = max(c.maxDepth, depth)
		c.st.Leaves++
		c.st.Keys += n.Len()
		return n.Max().Key, nil
	}

	if n.Len() == 0 {
		return 0, invariantf("internal record %d has no children", rec)
	}
	c.st.Internal++
	for _, s := range n.Slots {
		sub, err := c.walk(s.Addr, depth+1, lo)
		if err != nil {
			return 0, err
		}
		if sub != s.Key {
			return 0, invariantf("record %d routes to %d with key %d, subtree maximum is %d", rec, s.Addr, s.Key, sub)
		}
		lo = s.Key
	}
	return n.Max().Key, nil
}
