package persist

import (
	"io"

	"github.com/cockroachdb/pebble"
)

// DB is the subset of *pebble.DB used by Pebble, so tests can inject
// failures.
type DB interface {
	// Get returns pebble.ErrNotFound for a missing key. The caller must close
	// the returned Closer once done with value.
	Get(key []byte) (value []byte, closer io.Closer, err error)
	NewIter(o *pebble.IterOptions) (Iterator, error)
	NewBatch() Batch
	Close() error
}

type Iterator interface {
	First() bool
	Valid() bool
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

type Batch interface {
	Set(key, value []byte, opt *pebble.WriteOptions) error
	Delete(key []byte, opt *pebble.WriteOptions) error
	Commit(o *pebble.WriteOptions) error
	Close() error
}

// pebbleDB adapts *pebble.DB to DB.
type pebbleDB struct {
	db *pebble.DB
}

func (p *pebbleDB) Get(key []byte) ([]byte, io.Closer, error) {
	return p.db.Get(key)
}

func (p *pebbleDB) NewIter(o *pebble.IterOptions) (Iterator, error) {
	return p.db.NewIter(o)
}

func (p *pebbleDB) NewBatch() Batch {
	return p.db.NewBatch()
}

func (p *pebbleDB) Close() error {
	return p.db.Close()
}
