package pager

import (
	"github.com/btree-query-bench/slotindex/dbms/index/btpage"
	"github.com/cockroachdb/errors"
)

// FreeHead returns the record number at the head of the free list, or -1.
func (p *Pager) FreeHead() (int64, error) {
	s, _, err := p.ReadSlot(SentinelRecord, 0)
	if err != nil {
		return 0, err
	}
	return s.Key, nil
}

func (p *Pager) setFreeHead(rec int64) error {
	return p.WriteSlot(SentinelRecord, 0, btpage.Slot{Key: rec, Addr: btpage.Nil})
}

// Allocate pops the head of the free list. The caller owns the returned
// record and must initialise it with WriteNode.
func (p *Pager) Allocate() (int64, error) {
	head, err := p.FreeHead()
	if err != nil {
		return 0, err
	}
	if head == btpage.Nil {
		return 0, errors.Wrapf(ErrOutOfSpace, "pager: all %d records in use", p.records-1)
	}
	if head <= SentinelRecord || head >= p.records {
		return 0, errors.Mark(errors.Newf("pager: free-list head %d outside file", head), ErrCorrupt)
	}
	n, err := p.ReadNode(head)
	if err != nil {
		return 0, err
	}
	if n.Tag != btpage.TagFree {
		return 0, errors.Mark(errors.Newf("pager: free-list head %d is tagged %s", head, n.Tag), ErrCorrupt)
	}
	next := btpage.Nil
	if n.Len() > 0 {
		next = n.Slots[0].Key
	}
	if err := p.setFreeHead(next); err != nil {
		return 0, err
	}
	p.metrics.alloc()
	return head, nil
}

// Free returns rec to the free list: the record is rewritten as FREE and
// linked in front of the current head.
func (p *Pager) Free(rec int64) error {
	if rec == SentinelRecord {
		return errors.Mark(errors.New("pager: cannot free the sentinel record"), ErrCorrupt)
	}
	if err := p.checkRecord(rec); err != nil {
		return err
	}
	head, err := p.FreeHead()
	if err != nil {
		return err
	}
	row := make([]byte, p.layout.RecordSize())
	encodeFree(p.layout, row, head)
	if err := p.writeAt(row, p.layout.RecordOffset(rec)); err != nil {
		return err
	}
	if err := p.setFreeHead(rec); err != nil {
		return err
	}
	p.metrics.free()
	return nil
}

// Reserve checks that at least n records can be allocated, without
// changing the file.
func (p *Pager) Reserve(n int) error {
	if n <= 0 {
		return nil
	}
	rec, err := p.FreeHead()
	if err != nil {
		return err
	}
	for have := 0; have < n; have++ {
		if rec == btpage.Nil {
			return errors.Wrapf(ErrOutOfSpace, "pager: need %d free records, have %d", n, have)
		}
		if err := p.checkRecord(rec); err != nil {
			return err
		}
		s, _, err := p.ReadSlot(rec, 0)
		if err != nil {
			return err
		}
		rec = s.Key
	}
	return nil
}

// FreeList walks the free list from the sentinel and returns its records in
// order. A cycle or a non-FREE member is reported as ErrCorrupt.
func (p *Pager) FreeList() ([]int64, error) {
	rec, err := p.FreeHead()
	if err != nil {
		return nil, err
	}
	var out []int64
	seen := make(map[int64]bool)
	for rec != btpage.Nil {
		if rec == SentinelRecord || seen[rec] {
			return out, errors.Mark(errors.Newf("pager: free list revisits record %d", rec), ErrCorrupt)
		}
		seen[rec] = true
		n, err := p.ReadNode(rec)
		if err != nil {
			return out, err
		}
		if n.Tag != btpage.TagFree {
			return out, errors.Mark(errors.Newf("pager: free-list member %d is tagged %s", rec, n.Tag), ErrCorrupt)
		}
		out = append(out, rec)
		rec = btpage.Nil
		if n.Len() > 0 {
			rec = n.Slots[0].Key
		}
	}
	return out, nil
}
