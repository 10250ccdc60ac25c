package pager

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// Layout fixes the geometry of an index file: the tree order m and the
// width of one integer field. A record is 2m+1 fields wide.
type Layout struct {
	Order     int
	FieldSize int
}

// DefaultLayout matches files written with 4-byte integers and order 5.
var DefaultLayout = Layout{Order: 5, FieldSize: 4}

func (l Layout) Validate() error {
	if l.Order < 3 {
		return errors.Mark(errors.Newf("pager: order %d is below 3", l.Order), ErrBadLayout)
	}
	if l.FieldSize != 4 && l.FieldSize != 8 {
		return errors.Mark(errors.Newf("pager: field size %d is not 4 or 8", l.FieldSize), ErrBadLayout)
	}
	return nil
}

// Columns is the number of fields in one record.
func (l Layout) Columns() int { return 2*l.Order + 1 }

// RecordSize is the width of one record in bytes.
func (l Layout) RecordSize() int64 { return int64(l.FieldSize * l.Columns()) }

// RecordOffset is the byte offset of record rec.
func (l Layout) RecordOffset(rec int64) int64 { return l.RecordSize() * rec }

// SlotOffset is the byte offset of the key field of slot i in record rec.
func (l Layout) SlotOffset(rec int64, i int) int64 {
	return l.RecordOffset(rec) + int64(l.FieldSize*(1+2*i))
}

// Fits reports whether v can be stored in one field.
func (l Layout) Fits(v int64) bool {
	if l.FieldSize == 8 {
		return true
	}
	return v >= math.MinInt32 && v <= math.MaxInt32
}

func (l Layout) putField(b []byte, v int64) {
	if l.FieldSize == 4 {
		binary.NativeEndian.PutUint32(b, uint32(int32(v)))
		return
	}
	binary.NativeEndian.PutUint64(b, uint64(v))
}

func (l Layout) field(b []byte) int64 {
	if l.FieldSize == 4 {
		return int64(int32(binary.NativeEndian.Uint32(b)))
	}
	return int64(binary.NativeEndian.Uint64(b))
}
