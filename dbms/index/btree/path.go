package btree

import "github.com/btree-query-bench/slotindex/dbms/index/btpage"

// Crumb is one slot visited on the way from the root to a leaf: the record
// it lives in, its position, and its contents at the time of the visit.
type Crumb struct {
	Record int64
	Index  int
	Slot   btpage.Slot
}

// Path lists visited slots root first. A path returned by Locate ends with
// the matching leaf slot; the crumbs before it are the routing slots of the
// leaf's ancestors.
type Path []Crumb

func (p Path) Len() int { return len(p) }

// Last returns the deepest crumb.
func (p Path) Last() Crumb { return p[len(p)-1] }

// Parents drops the deepest crumb.
func (p Path) Parents() Path { return p[:len(p)-1] }

func (p *Path) push(c Crumb) { *p = append(*p, c) }

func (p *Path) pop() Crumb {
	c := (*p)[len(*p)-1]
	*p = (*p)[:len(*p)-1]
	return c
}
