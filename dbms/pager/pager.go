// Package pager is the node store of the index: a flat file of fixed-size
// records addressed by record number.
//
// Record 0 is the free-list sentinel; its first key field holds the record
// number of the first free record (-1 when none is left). Free records are
// tagged FREE and chain to the next one through the same field. Everything
// else about the tree lives one level up, in package btree.
package pager

import (
	"bufio"
	"os"

	"github.com/btree-query-bench/slotindex/dbms/index/btpage"
	"github.com/cockroachdb/errors"
)

var (
	ErrIO         = errors.New("pager: i/o failure")
	ErrOutOfSpace = errors.New("pager: no free records left")
	ErrBadLayout  = errors.New("pager: file does not match layout")
	ErrCorrupt    = errors.New("pager: corrupt record file")
)

// SentinelRecord holds the free-list head.
const SentinelRecord = 0

// Pager reads and writes records of one index file. Every read is a single
// ReadAt and every write a single WriteAt; nothing is cached between calls.
type Pager struct {
	file    *os.File
	layout  Layout
	records int64
	sync    bool
	metrics *Metrics
}

type Option func(*Pager)

// WithSync makes every write durable before it returns.
func WithSync(on bool) Option {
	return func(p *Pager) { p.sync = on }
}

// WithMetrics counts record I/O into m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pager) { p.metrics = m }
}

// Format creates (or truncates) path with records FREE records chained
// 0 -> 1 -> ... -> records-1 -> -1. The sentinel therefore points at
// record 1 and no tree exists yet.
func Format(path string, records int64, l Layout) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if records < 2 {
		return errors.Mark(errors.Newf("pager: need at least 2 records, got %d", records), ErrBadLayout)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "pager: create %s", path), ErrIO)
	}
	w := bufio.NewWriter(f)
	row := make([]byte, l.RecordSize())
	for rec := int64(0); rec < records; rec++ {
		next := rec + 1
		if next == records {
			next = btpage.Nil
		}
		encodeFree(l, row, next)
		if _, err := w.Write(row); err != nil {
			f.Close()
			return errors.Mark(errors.Wrapf(err, "pager: format %s", path), ErrIO)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Mark(errors.Wrapf(err, "pager: format %s", path), ErrIO)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Mark(errors.Wrapf(err, "pager: sync %s", path), ErrIO)
	}
	if err := f.Close(); err != nil {
		return errors.Mark(errors.Wrapf(err, "pager: close %s", path), ErrIO)
	}
	return nil
}

// Open opens an existing index file. The layout is not stored in the file,
// so the caller must pass the one it was formatted with; a size that is not
// a whole number of records is rejected.
func Open(path string, l Layout, opts ...Option) (*Pager, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "pager: open %s", path), ErrIO)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Mark(errors.Wrapf(err, "pager: stat %s", path), ErrIO)
	}
	size := info.Size()
	if size%l.RecordSize() != 0 || size/l.RecordSize() < 2 {
		f.Close()
		return nil, errors.Mark(
			errors.Newf("pager: %s is %d bytes, not a whole number (>= 2) of %d-byte records", path, size, l.RecordSize()),
			ErrBadLayout)
	}
	p := &Pager{file: f, layout: l, records: size / l.RecordSize()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Pager) Close() error {
	if err := p.file.Close(); err != nil {
		return errors.Mark(errors.Wrap(err, "pager: close"), ErrIO)
	}
	return nil
}

func (p *Pager) Layout() Layout { return p.layout }

// Order is the maximum number of occupied slots per record.
func (p *Pager) Order() int { return p.layout.Order }

// Records is the fixed capacity of the file, sentinel included.
func (p *Pager) Records() int64 { return p.records }

func (p *Pager) RecordOffset(rec int64) int64 { return p.layout.RecordOffset(rec) }

// ReadSlot returns slot i of record rec and the byte offset it was read from.
func (p *Pager) ReadSlot(rec int64, i int) (btpage.Slot, int64, error) {
	if err := p.checkSlot(rec, i); err != nil {
		return btpage.Empty, 0, err
	}
	off := p.layout.SlotOffset(rec, i)
	buf := make([]byte, 2*p.layout.FieldSize)
	if err := p.readAt(buf, off); err != nil {
		return btpage.Empty, 0, err
	}
	return btpage.Slot{
		Key:  p.layout.field(buf),
		Addr: p.layout.field(buf[p.layout.FieldSize:]),
	}, off, nil
}

// WriteSlot overwrites slot i of record rec and nothing else.
func (p *Pager) WriteSlot(rec int64, i int, s btpage.Slot) error {
	if err := p.checkSlot(rec, i); err != nil {
		return err
	}
	buf := make([]byte, 2*p.layout.FieldSize)
	p.layout.putField(buf, s.Key)
	p.layout.putField(buf[p.layout.FieldSize:], s.Addr)
	return p.writeAt(buf, p.layout.SlotOffset(rec, i))
}

// Tag reads column 0 of record rec.
func (p *Pager) Tag(rec int64) (btpage.Tag, error) {
	if err := p.checkRecord(rec); err != nil {
		return btpage.TagFree, err
	}
	buf := make([]byte, p.layout.FieldSize)
	if err := p.readAt(buf, p.layout.RecordOffset(rec)); err != nil {
		return btpage.TagFree, err
	}
	return btpage.Tag(p.layout.field(buf)), nil
}

// SetTag overwrites column 0 of record rec.
func (p *Pager) SetTag(rec int64, tag btpage.Tag) error {
	if err := p.checkRecord(rec); err != nil {
		return err
	}
	buf := make([]byte, p.layout.FieldSize)
	p.layout.putField(buf, int64(tag))
	return p.writeAt(buf, p.layout.RecordOffset(rec))
}

// ReadRow returns the 2m+1 raw fields of record rec.
func (p *Pager) ReadRow(rec int64) ([]int64, error) {
	buf, err := p.readRecord(rec)
	if err != nil {
		return nil, err
	}
	row := make([]int64, p.layout.Columns())
	for c := range row {
		row[c] = p.layout.field(buf[c*p.layout.FieldSize:])
	}
	return row, nil
}

// ReadNode reads record rec in one I/O and decodes its tag and occupied
// slots. Decoding stops at the first empty key.
func (p *Pager) ReadNode(rec int64) (*btpage.Node, error) {
	buf, err := p.readRecord(rec)
	if err != nil {
		return nil, err
	}
	fs := p.layout.FieldSize
	n := &btpage.Node{Tag: btpage.Tag(p.layout.field(buf))}
	for i := 0; i < p.layout.Order; i++ {
		off := fs * (1 + 2*i)
		key := p.layout.field(buf[off:])
		if key == btpage.Nil {
			break
		}
		n.Slots = append(n.Slots, btpage.Slot{Key: key, Addr: p.layout.field(buf[off+fs:])})
	}
	return n, nil
}

// WriteNode replaces record rec with n: tag, occupied slots, then empty
// slots up to the order.
func (p *Pager) WriteNode(rec int64, n *btpage.Node) error {
	if err := p.checkRecord(rec); err != nil {
		return err
	}
	if n.Len() > p.layout.Order {
		return errors.Mark(
			errors.Newf("pager: node with %d slots does not fit order %d", n.Len(), p.layout.Order), ErrCorrupt)
	}
	buf := make([]byte, p.layout.RecordSize())
	fs := p.layout.FieldSize
	p.layout.putField(buf, int64(n.Tag))
	for i := 0; i < p.layout.Order; i++ {
		s := btpage.Empty
		if i < n.Len() {
			s = n.Slots[i]
		}
		off := fs * (1 + 2*i)
		p.layout.putField(buf[off:], s.Key)
		p.layout.putField(buf[off+fs:], s.Addr)
	}
	return p.writeAt(buf, p.layout.RecordOffset(rec))
}

// CountOccupied counts slots from 0 up to the first empty key.
func (p *Pager) CountOccupied(rec int64) (int, error) {
	n, err := p.ReadNode(rec)
	if err != nil {
		return 0, err
	}
	return n.Len(), nil
}

// MaxSlot returns the last occupied slot of rec, or the empty slot.
func (p *Pager) MaxSlot(rec int64) (btpage.Slot, error) {
	n, err := p.ReadNode(rec)
	if err != nil {
		return btpage.Empty, err
	}
	return n.Max(), nil
}

// Dump returns every record as a row of 2m+1 raw integers.
func (p *Pager) Dump() ([][]int64, error) {
	rows := make([][]int64, 0, p.records)
	for rec := int64(0); rec < p.records; rec++ {
		row, err := p.ReadRow(rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// --- internal helpers ---

func (p *Pager) checkRecord(rec int64) error {
	if rec < 0 || rec >= p.records {
		return errors.Mark(errors.Newf("pager: record %d outside file of %d records", rec, p.records), ErrCorrupt)
	}
	return nil
}

func (p *Pager) checkSlot(rec int64, i int) error {
	if err := p.checkRecord(rec); err != nil {
		return err
	}
	if i < 0 || i >= p.layout.Order {
		return errors.Mark(errors.Newf("pager: slot %d outside order %d", i, p.layout.Order), ErrCorrupt)
	}
	return nil
}

func (p *Pager) readRecord(rec int64) ([]byte, error) {
	if err := p.checkRecord(rec); err != nil {
		return nil, err
	}
	buf := make([]byte, p.layout.RecordSize())
	if err := p.readAt(buf, p.layout.RecordOffset(rec)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *Pager) readAt(buf []byte, off int64) error {
	p.metrics.read()
	if _, err := p.file.ReadAt(buf, off); err != nil {
		return errors.Mark(errors.Wrapf(err, "pager: read %d bytes at %d", len(buf), off), ErrIO)
	}
	return nil
}

func (p *Pager) writeAt(buf []byte, off int64) error {
	p.metrics.write()
	if _, err := p.file.WriteAt(buf, off); err != nil {
		return errors.Mark(errors.Wrapf(err, "pager: write %d bytes at %d", len(buf), off), ErrIO)
	}
	if p.sync {
		if err := p.file.Sync(); err != nil {
			return errors.Mark(errors.Wrap(err, "pager: sync"), ErrIO)
		}
	}
	return nil
}

// encodeFree fills row with a FREE record linking to next.
func encodeFree(l Layout, row []byte, next int64) {
	for c := 0; c < l.Columns(); c++ {
		l.putField(row[c*l.FieldSize:], btpage.Nil)
	}
	l.putField(row[l.FieldSize:], next)
}
