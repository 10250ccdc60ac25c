// Package btree implements a disk-resident B-tree secondary index on top of
// the record file managed by package pager.
//
// The tree maps integer keys to integer addresses. Internal nodes route by
// subtree maximum: every internal slot (k, child) carries the largest key
// stored under child. The root always lives at record 1; nothing about the
// tree is kept in memory between calls.
package btree

import (
	"github.com/btree-query-bench/slotindex/dbms/index"
	"github.com/btree-query-bench/slotindex/dbms/index/btpage"
	"github.com/btree-query-bench/slotindex/dbms/pager"
	"github.com/cockroachdb/errors"
)

// RootRecord is the record that holds the root once the tree exists.
const RootRecord = 1

var (
	ErrInvariant      = errors.New("btree: structural invariant violated")
	ErrDuplicateKey   = errors.New("btree: key already indexed")
	ErrInvalidKey     = errors.New("btree: key cannot be stored")
	ErrInvalidAddress = errors.New("btree: address cannot be stored")
)

// invariantf reports a structural bug. The error is an assertion failure
// that also matches ErrInvariant.
func invariantf(format string, args ...interface{}) error {
	return errors.Mark(errors.AssertionFailedf(format, args...), ErrInvariant)
}

// MinOccupancy selects the lower occupancy bound for non-root nodes.
type MinOccupancy int

const (
	FloorHalf MinOccupancy = iota // floor(m/2)
	CeilHalf                      // ceil(m/2)
)

func (mo MinOccupancy) bound(order int) int {
	if mo == CeilHalf {
		return (order + 1) / 2
	}
	return order / 2
}

// DuplicatePolicy decides what Insert does with a key that is already indexed.
type DuplicatePolicy int

const (
	RejectDuplicates    DuplicatePolicy = iota // fail with ErrDuplicateKey
	OverwriteDuplicates                        // replace the stored address
)

// CollapsePolicy decides what a merge does to a non-root parent that is left
// routing to a single child. A root in that state always collapses.
type CollapsePolicy int

const (
	// CollapseOneChild copies the child's tag and slots into the parent's
	// record and frees the child. Leaves under that parent move up a level,
	// so leaf depth may differ across the tree.
	CollapseOneChild CollapsePolicy = iota
	// UniformDepth keeps the one-child parent and repairs it like any other
	// underfull node. All leaves stay at the same depth.
	UniformDepth
)

type Options struct {
	MinOccupancy MinOccupancy
	Duplicates   DuplicatePolicy
	Collapse     CollapsePolicy
}

var _ index.Index = (*BTree)(nil)

// BTree is a B-tree stored in a pager's record file.
type BTree struct {
	pg   *pager.Pager
	opts Options
	min  int

	rootKnown bool
}

// New wraps an open pager. The tree takes ownership of pg; Close closes it.
func New(pg *pager.Pager, opts Options) *BTree {
	return &BTree{pg: pg, opts: opts, min: opts.MinOccupancy.bound(pg.Order())}
}

// Open opens an existing index file.
func Open(path string, l pager.Layout, opts Options, pagerOpts ...pager.Option) (*BTree, error) {
	pg, err := pager.Open(path, l, pagerOpts...)
	if err != nil {
		return nil, err
	}
	return New(pg, opts), nil
}

// Create formats path with the given capacity and opens an empty tree on it.
func Create(path string, records int64, l pager.Layout, opts Options, pagerOpts ...pager.Option) (*BTree, error) {
	if err := pager.Format(path, records, l); err != nil {
		return nil, err
	}
	return Open(path, l, opts, pagerOpts...)
}

func (t *BTree) Close() error { return t.pg.Close() }

// Pager exposes the underlying record file, for dumps and diagnostics.
func (t *BTree) Pager() *pager.Pager { return t.pg }

func (t *BTree) Order() int { return t.pg.Order() }

// MinKeys is the occupancy every non-root node keeps after a deletion.
func (t *BTree) MinKeys() int { return t.min }

// hasRoot reports whether record 1 holds a node. Once seen, the answer is
// remembered: the root is never freed, only emptied.
func (t *BTree) hasRoot() (bool, error) {
	if t.rootKnown {
		return true, nil
	}
	tag, err := t.pg.Tag(RootRecord)
	if err != nil {
		return false, err
	}
	t.rootKnown = tag != btpage.TagFree
	return t.rootKnown, nil
}

// readTreeNode reads rec and insists it is a tree node.
func (t *BTree) readTreeNode(rec int64) (*btpage.Node, error) {
	n, err := t.pg.ReadNode(rec)
	if err != nil {
		return nil, err
	}
	if n.Tag != btpage.TagLeaf && n.Tag != btpage.TagInternal {
		return nil, invariantf("record %d reached from the tree is tagged %s", rec, n.Tag)
	}
	return n, nil
}

func (t *BTree) checkKey(key int64) error {
	if key == btpage.Nil || !t.pg.Layout().Fits(key) {
		return errors.Wrapf(ErrInvalidKey, "key %d", key)
	}
	return nil
}
