package storage

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

// PebbleDB is a PebbleDB backend.
// It implements the [DB] interface.
type PebbleDB struct {
	db      *pebble.DB
	compare func(a, b []byte) int
}

var _ DB = (*PebbleDB)(nil)

// NewPebbleDB opens (creating if missing) a PebbleDB database named name
// under dir, ordered by the comparer in opts.
func NewPebbleDB(name, dir string, opts Options) (*PebbleDB, error) {
	pebbleOpts := &pebble.Options{}
	compare := bytes.Compare
	if opts.Comparer != nil {
		pebbleOpts.Comparer = pebbleComparer(opts.Comparer)
		compare = opts.Comparer.Compare
	}
	pebbleOpts.EnsureDefaults()

	dbPath := filepath.Join(dir, name+".db")
	db, err := pebble.Open(dbPath, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("opening pebble instance %q: %w", name, err)
	}

	return &PebbleDB{db: db, compare: compare}, nil
}

// pebbleComparer translates a [Comparer] into a pebble.Comparer. All other
// callbacks derive from Compare: key shortening (Separator, Successor) and
// the byte-prefix fast path (AbbreviatedKey) assume the default byte-wise
// order, so they are disabled for a custom one.
func pebbleComparer(c *Comparer) *pebble.Comparer {
	pc := *pebble.DefaultComparer
	pc.Name = c.Name
	pc.Compare = c.Compare
	pc.Equal = func(a, b []byte) bool { return c.Compare(a, b) == 0 }
	pc.AbbreviatedKey = func([]byte) uint64 { return 0 }
	pc.Separator = func(dst, a, _ []byte) []byte { return append(dst, a...) }
	pc.Successor = func(dst, a []byte) []byte { return append(dst, a...) }
	return &pc
}

// DB returns the underlying PebbleDB instance.
func (pDB *PebbleDB) DB() *pebble.DB {
	return pDB.db
}

// Get fetches the value of the given key, or nil if it does not exist.
// It is safe to modify the contents of key and of the returned slice after Get
// returns.
// It implements the [DB] interface for type PebbleDB.
func (pDB *PebbleDB) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errKeyEmpty
	}

	value, closer, err := pDB.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching value for key %s: %w", key, err)
	}
	defer closer.Close()

	valueCp := make([]byte, len(value))
	copy(valueCp, value)

	return valueCp, nil
}

// Has returns true if the key exists in the database.
// It is safe to modify the contents of key after Has returns.
// It implements the [DB] interface for type PebbleDB.
func (pDB *PebbleDB) Has(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, errKeyEmpty
	}

	value, err := pDB.Get(key)
	if err != nil {
		return false, fmt.Errorf("checking if key %s exists: %w", key, err)
	}

	return value != nil, nil
}

// Set sets the value for the given key, overwriting it if it already exists.
// The write is unsynced; use [SetSync] when the write must survive a crash.
// It implements the [DB] interface for type PebbleDB.
func (pDB *PebbleDB) Set(key, value []byte) error {
	if err := pDB.setWithOpts(key, value, pebble.NoSync); err != nil {
		return fmt.Errorf("unsynced write: %w", err)
	}

	return nil
}

// SetSync sets the value for the given key, overwriting it if it already
// exists, and returns only after the write has been flushed to persistent
// storage.
// It implements the [DB] interface for type PebbleDB.
func (pDB *PebbleDB) SetSync(key, value []byte) error {
	if err := pDB.setWithOpts(key, value, pebble.Sync); err != nil {
		return fmt.Errorf("synced write: %w", err)
	}

	return nil
}

func (pDB *PebbleDB) setWithOpts(key, value []byte, writeOpts *pebble.WriteOptions) error {
	if len(key) == 0 {
		return errKeyEmpty
	}
	if value == nil {
		return errValueNil
	}

	if err := pDB.db.Set(key, value, writeOpts); err != nil {
		return fmt.Errorf("setting value for key %s: %w", key, err)
	}

	return nil
}

// Delete deletes the value for the given key. Deletes succeed even if the key
// does not exist in the database. The delete is unsynced; use [DeleteSync]
// when it must survive a crash.
// It implements the [DB] interface for type PebbleDB.
func (pDB *PebbleDB) Delete(key []byte) error {
	if err := pDB.deleteWithOpts(key, pebble.NoSync); err != nil {
		return fmt.Errorf("unsynced delete: %w", err)
	}

	return nil
}

// DeleteSync deletes the value for the given key and returns only after the
// delete has been flushed to persistent storage.
// It implements the [DB] interface for type PebbleDB.
func (pDB *PebbleDB) DeleteSync(key []byte) error {
	if err := pDB.deleteWithOpts(key, pebble.Sync); err != nil {
		return fmt.Errorf("synced delete: %w", err)
	}

	return nil
}

func (pDB *PebbleDB) deleteWithOpts(key []byte, writeOpts *pebble.WriteOptions) error {
	if len(key) == 0 {
		return errKeyEmpty
	}

	if err := pDB.db.Delete(key, writeOpts); err != nil {
		return fmt.Errorf("deleting key %s: %w", key, err)
	}

	return nil
}

// Flush blocks until all pending writes are persisted to stable storage.
//
// It implements the [DB] interface for type PebbleDB.
func (pDB *PebbleDB) Flush() error {
	if err := pDB.db.Flush(); err != nil {
		return fmt.Errorf("flushing database: %w", err)
	}

	return nil
}

// Compact compacts the specified range of keys in the database.
//
// It implements the [DB] interface for type PebbleDB.
func (pDB *PebbleDB) Compact(start, end []byte) error {
	// Currently nil,nil is an invalid range in Pebble.
	// This was taken from https://github.com/cockroachdb/pebble/issues/1474
	if start != nil && end != nil {
		if err := pDB.db.Compact(start, end, true /* parallelize */); err != nil {
			return fmt.Errorf("compacting range [%s, %s]: %w", start, end, err)
		}
		return nil
	}

	iter, err := pDB.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("creating compaction iterator: %w", err)
	}
	defer iter.Close()

	if start == nil && iter.First() {
		start = append(start, iter.Key()...)
	}
	if end == nil && iter.Last() {
		end = append(end, iter.Key()...)
	}

	if err := pDB.db.Compact(start, end, true /* parallelize */); err != nil {
		return fmt.Errorf("compacting range [%s, %s]: %w", start, end, err)
	}

	return nil
}

// Close closes the database connection.
// It is not safe to close a DB until all outstanding iterators are closed
// or to call Close concurrently with any other DB method.
//
// It implements the [DB] interface for type PebbleDB.
func (pDB *PebbleDB) Close() error {
	if err := pDB.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}

	return nil
}

// Print prints all the key/value pairs in the database for debugging purposes.
//
// It implements the [DB] interface for type PebbleDB.
func (pDB *PebbleDB) Print() error {
	itr, err := pDB.Iterator(nil, nil)
	if err != nil {
		return fmt.Errorf("creating iterator for debug printing: %w", err)
	}
	defer itr.Close()

	for ; itr.Valid(); itr.Next() {
		fmt.Printf("[%X]:\t[%X]\n", itr.Key(), itr.Value())
	}

	return nil
}

// Stats implements the [DB] interface.
func (pDB *PebbleDB) Stats() map[string]string {
	return map[string]string{"pebble.metrics": pDB.db.Metrics().String()}
}

// NewBatch creates a batch for atomic database updates.
// The caller is responsible for calling Batch.Close() once done.
//
// It implements the [DB] interface for type PebbleDB.
func (pDB *PebbleDB) NewBatch() Batch {
	return newPebbleDBBatch(pDB)
}

// Iterator returns an iterator over a domain of keys, in the ascending order
// defined by the database's comparer. End is exclusive; a nil start iterates
// from the first key and a nil end to the last key (inclusive).
//
// It implements the [DB] interface for type PebbleDB.
func (pDB *PebbleDB) Iterator(start, end []byte) (Iterator, error) {
	it, err := newPebbleDBIterator(pDB, start, end, false /* reverse */)
	if err != nil {
		return nil, fmt.Errorf("creating new forward iterator: %w", err)
	}

	return it, nil
}

// ReverseIterator returns an iterator over a domain of keys, in descending
// order.
//
// It implements the [DB] interface for type PebbleDB.
func (pDB *PebbleDB) ReverseIterator(start, end []byte) (Iterator, error) {
	it, err := newPebbleDBIterator(pDB, start, end, true /* reverse */)
	if err != nil {
		return nil, fmt.Errorf("creating new reverse iterator: %w", err)
	}

	return it, nil
}

var _ Batch = (*pebbleDBBatch)(nil)

// pebbleDBBatch is a sequence of database operations that are applied
// atomically. A batch is not safe for concurrent use.
//
// It implements the [Batch] interface.
type pebbleDBBatch struct {
	db    *PebbleDB
	batch *pebble.Batch
}

func newPebbleDBBatch(pDB *PebbleDB) *pebbleDBBatch {
	return &pebbleDBBatch{
		db:    pDB,
		batch: pDB.db.NewBatch(),
	}
}

// Set adds a set update to the batch that sets the key to map to the value.
// It implements the [Batch] interface for type pebbleDBBatch.
func (b *pebbleDBBatch) Set(key, value []byte) error {
	if len(key) == 0 {
		return errKeyEmpty
	}
	if value == nil {
		return errValueNil
	}
	if b.batch == nil {
		return errBatchClosed
	}

	// the nil parameter is for the write options, which pebble ignores for
	// batched updates.
	if err := b.batch.Set(key, value, nil); err != nil {
		return fmt.Errorf("adding set update (k,v)=(%s,%s) to batch: %w", key, value, err)
	}

	return nil
}

// Delete adds a delete update to the batch that deletes the database entry
// for key.
// It implements the [Batch] interface for type pebbleDBBatch.
func (b *pebbleDBBatch) Delete(key []byte) error {
	if len(key) == 0 {
		return errKeyEmpty
	}
	if b.batch == nil {
		return errBatchClosed
	}

	if err := b.batch.Delete(key, nil); err != nil {
		return fmt.Errorf("adding delete update (k)=(%s) to batch: %w", key, err)
	}

	return nil
}

// Write applies the batch to the database. Write does not guarantee that the
// batch is persisted to disk before returning.
//
// It implements the [Batch] interface for type pebbleDBBatch.
func (b *pebbleDBBatch) Write() error {
	if err := b.commitWithOpts(pebble.NoSync); err != nil {
		return fmt.Errorf("unsynced batch write: %w", err)
	}

	return nil
}

// WriteSync applies the batch to the database and guarantees it is persisted
// to disk before returning.
//
// It implements the [Batch] interface for type pebbleDBBatch.
func (b *pebbleDBBatch) WriteSync() error {
	if err := b.commitWithOpts(pebble.Sync); err != nil {
		return fmt.Errorf("synced batch write: %w", err)
	}

	return nil
}

func (b *pebbleDBBatch) commitWithOpts(writeOpts *pebble.WriteOptions) error {
	if b.batch == nil {
		return errBatchClosed
	}

	if err := b.batch.Commit(writeOpts); err != nil {
		return fmt.Errorf("writing batch to database: %w", err)
	}

	// Make sure batch cannot be used afterwards.
	// Callers should still call Close() on it.
	if err := b.Close(); err != nil {
		return fmt.Errorf("batch post-write routine: %w", err)
	}

	return nil
}

// Close closes the batch without committing it. Close is idempotent.
//
// It implements the [Batch] interface for type pebbleDBBatch.
func (b *pebbleDBBatch) Close() error {
	if b.batch == nil {
		return nil
	}

	if err := b.batch.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	b.batch = nil

	return nil
}

// pebbleDBIterator is an Iterator iterating over a database's key/value pairs
// in key order. It is not safe for concurrent use, but it is safe to use
// multiple iterators concurrently.
//
// It implements the [Iterator] interface.
type pebbleDBIterator struct {
	source     *pebble.Iterator
	start, end []byte // end is exclusive.
	isReverse  bool
	isInvalid  bool
	compare    func(a, b []byte) int
}

var _ Iterator = (*pebbleDBIterator)(nil)

func newPebbleDBIterator(pDB *PebbleDB, start, end []byte, isReverse bool) (*pebbleDBIterator, error) {
	if start != nil && len(start) == 0 {
		return nil, fmt.Errorf("iterator's lower bound: %w", errKeyEmpty)
	}
	if end != nil && len(end) == 0 {
		return nil, fmt.Errorf("iterator's upper bound: %w", errKeyEmpty)
	}

	o := pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	}
	it, err := pDB.db.NewIter(&o)
	if err != nil {
		return nil, fmt.Errorf("iterator with bounds [%X, %X]: %w", start, end, err)
	}

	if isReverse {
		it.Last()
	} else {
		it.First()
	}

	return &pebbleDBIterator{
		source:    it,
		start:     start,
		end:       end,
		isReverse: isReverse,
		compare:   pDB.compare,
	}, nil
}

// Domain returns the start (inclusive) and end (exclusive) limits of the
// iterator.
// It implements the [Iterator] interface for type pebbleDBIterator.
func (itr *pebbleDBIterator) Domain() ([]byte, []byte) {
	return itr.start, itr.end
}

// Valid returns whether the current iterator is valid. Once invalid, the
// Iterator remains invalid forever.
// It implements the [Iterator] interface for type pebbleDBIterator.
func (itr *pebbleDBIterator) Valid() bool {
	if itr.isInvalid {
		return false
	}

	if err := itr.source.Error(); err != nil {
		itr.isInvalid = true
		return false
	}

	if !itr.source.Valid() {
		itr.isInvalid = true
		return false
	}

	// If the current key is before the start or at/after the end bound the
	// iterator is done. Bounds are compared under the database's comparer,
	// not byte-wise.
	key := itr.source.Key()
	if itr.isReverse && itr.start != nil && itr.compare(key, itr.start) < 0 {
		itr.isInvalid = true
		return false
	}
	if !itr.isReverse && itr.end != nil && itr.compare(key, itr.end) >= 0 {
		itr.isInvalid = true
		return false
	}

	return true
}

// Key returns the key at the current position. Panics if the iterator is
// invalid.
// It implements the [Iterator] interface for type pebbleDBIterator.
func (itr *pebbleDBIterator) Key() []byte {
	itr.assertIsValid()
	return itr.source.Key()
}

// Value returns the value of the current key/value pair. Panics if the
// iterator is invalid.
// It implements the [Iterator] interface for type pebbleDBIterator.
func (itr *pebbleDBIterator) Value() []byte {
	itr.assertIsValid()
	return itr.source.Value()
}

// Next moves the iterator to the next key in the database, as defined by
// order of iteration. It panics if the iterator is invalid.
// It implements the [Iterator] interface for type pebbleDBIterator.
func (itr *pebbleDBIterator) Next() {
	itr.assertIsValid()

	if itr.isReverse {
		itr.source.Prev()
	} else {
		itr.source.Next()
	}
}

// Error returns the last error encountered by the iterator, if any.
// It implements the [Iterator] interface for type pebbleDBIterator.
func (itr *pebbleDBIterator) Error() error {
	return itr.source.Error()
}

// Close closes the iterator, releasing any allocated resources.
// It implements the [Iterator] interface for type pebbleDBIterator.
func (itr *pebbleDBIterator) Close() error {
	if err := itr.source.Close(); err != nil {
		return fmt.Errorf("closing iterator: %w", err)
	}

	return nil
}

func (itr *pebbleDBIterator) assertIsValid() {
	if !itr.Valid() {
		panic("iterator is invalid")
	}
}
