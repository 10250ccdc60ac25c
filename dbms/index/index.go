package index

import "github.com/cockroachdb/errors"

// ErrNotFound is returned by Search and Delete when the key is absent.
var ErrNotFound = errors.New("index: key not found")

// Index maps integer keys to integer addresses of an external data store.
// It is the common interface of the disk B-tree and the baselines it is
// measured against.
type Index interface {
	Insert(key, addr int64) error
	Search(key int64) (int64, error)
	Delete(key int64) error
	Close() error
}
