package storage

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	ldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// GoLevelDB is a LevelDB backend. It implements the [DB] interface.
type GoLevelDB struct {
	db      *leveldb.DB
	compare func(a, b []byte) int
}

var _ DB = (*GoLevelDB)(nil)

// NewGoLevelDB opens (creating if missing) a LevelDB database named name
// under dir, ordered by the comparer in opts. LevelDB records the comparer
// name in its manifest; reopening an existing database with a differently
// named comparer fails instead of miscomparing.
func NewGoLevelDB(name, dir string, opts Options) (*GoLevelDB, error) {
	dbPath := filepath.Join(dir, name+".db")

	db, err := leveldb.OpenFile(dbPath, levelDBOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("opening leveldb instance %q: %w", name, err)
	}

	return &GoLevelDB{db: db, compare: compareOf(opts)}, nil
}

// NewMemDB returns a LevelDB instance kept entirely in memory, ordered by
// the comparer in opts. It is meant for tests.
func NewMemDB(opts Options) (*GoLevelDB, error) {
	db, err := leveldb.Open(ldbstorage.NewMemStorage(), levelDBOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("opening in-memory leveldb instance: %w", err)
	}

	return &GoLevelDB{db: db, compare: compareOf(opts)}, nil
}

func levelDBOptions(opts Options) *opt.Options {
	o := &opt.Options{}
	if opts.Comparer != nil {
		o.Comparer = goLevelDBComparer{c: opts.Comparer}
	}
	return o
}

func compareOf(opts Options) func(a, b []byte) int {
	if opts.Comparer != nil {
		return opts.Comparer.Compare
	}
	return bytes.Compare
}

// goLevelDBComparer adapts a [Comparer] to goleveldb's comparer interface.
// Separator and Successor return nil, which tells the engine to keep the
// original keys: shortened index keys computed for the default byte-wise
// order are not valid under a custom one.
type goLevelDBComparer struct {
	c *Comparer
}

func (g goLevelDBComparer) Compare(a, b []byte) int { return g.c.Compare(a, b) }

func (g goLevelDBComparer) Name() string { return g.c.Name }

func (goLevelDBComparer) Separator(_, _, _ []byte) []byte { return nil }

func (goLevelDBComparer) Successor(_, _ []byte) []byte { return nil }

// DB returns the underlying LevelDB instance.
func (db *GoLevelDB) DB() *leveldb.DB {
	return db.db
}

// Get fetches the value of the given key, or nil if it does not exist.
// It implements the [DB] interface for type GoLevelDB.
func (db *GoLevelDB) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errKeyEmpty
	}

	value, err := db.db.Get(key, nil)
	if err != nil {
		if err == ldberrors.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching value for key %s: %w", key, err)
	}

	return value, nil
}

// Has returns true if the key exists in the database.
// It implements the [DB] interface for type GoLevelDB.
func (db *GoLevelDB) Has(key []byte) (bool, error) {
	value, err := db.Get(key)
	if err != nil {
		return false, err
	}

	return value != nil, nil
}

// Set sets the value for the given key, overwriting it if it already exists.
// The write is unsynced; use [SetSync] when the write must survive a crash.
// It implements the [DB] interface for type GoLevelDB.
func (db *GoLevelDB) Set(key, value []byte) error {
	return db.setWithOpts(key, value, &opt.WriteOptions{Sync: false})
}

// SetSync sets the value for the given key, overwriting it if it already
// exists, and returns only after the write has been flushed to persistent
// storage.
// It implements the [DB] interface for type GoLevelDB.
func (db *GoLevelDB) SetSync(key, value []byte) error {
	return db.setWithOpts(key, value, &opt.WriteOptions{Sync: true})
}

func (db *GoLevelDB) setWithOpts(key, value []byte, writeOpts *opt.WriteOptions) error {
	if len(key) == 0 {
		return errKeyEmpty
	}
	if value == nil {
		return errValueNil
	}

	if err := db.db.Put(key, value, writeOpts); err != nil {
		return fmt.Errorf("setting value for key %s: %w", key, err)
	}

	return nil
}

// Delete deletes the value for the given key. Deletes succeed even if the
// key does not exist.
// It implements the [DB] interface for type GoLevelDB.
func (db *GoLevelDB) Delete(key []byte) error {
	return db.deleteWithOpts(key, &opt.WriteOptions{Sync: false})
}

// DeleteSync deletes the value for the given key and returns only after the
// delete has been flushed to persistent storage.
// It implements the [DB] interface for type GoLevelDB.
func (db *GoLevelDB) DeleteSync(key []byte) error {
	return db.deleteWithOpts(key, &opt.WriteOptions{Sync: true})
}

func (db *GoLevelDB) deleteWithOpts(key []byte, writeOpts *opt.WriteOptions) error {
	if len(key) == 0 {
		return errKeyEmpty
	}

	if err := db.db.Delete(key, writeOpts); err != nil {
		return fmt.Errorf("deleting key %s: %w", key, err)
	}

	return nil
}

// Flush blocks until all pending writes are persisted to stable storage.
// LevelDB has no dedicated flush call; compacting the whole key range forces
// the memtable to disk first, which gives the same guarantee.
//
// It implements the [DB] interface for type GoLevelDB.
func (db *GoLevelDB) Flush() error {
	if err := db.db.CompactRange(util.Range{}); err != nil {
		return fmt.Errorf("flushing database: %w", err)
	}

	return nil
}

// Compact compacts the specified range of keys in the database.
// It implements the [DB] interface for type GoLevelDB.
func (db *GoLevelDB) Compact(start, end []byte) error {
	if err := db.db.CompactRange(util.Range{Start: start, Limit: end}); err != nil {
		return fmt.Errorf("compacting range [%s, %s]: %w", start, end, err)
	}

	return nil
}

// Close closes the database connection.
// It implements the [DB] interface for type GoLevelDB.
func (db *GoLevelDB) Close() error {
	if err := db.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}

	return nil
}

// Print prints all the key/value pairs in the database for debugging purposes.
// It implements the [DB] interface for type GoLevelDB.
func (db *GoLevelDB) Print() error {
	itr, err := db.Iterator(nil, nil)
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
func (db *GoLevelDB) Stats() map[string]string {
	keys := []string{
		"leveldb.aliveiters",
		"leveldb.alivesnaps",
		"leveldb.blockpool",
		"leveldb.cachedblock",
		"leveldb.num-files-at-level{n}",
		"leveldb.openedtables",
		"leveldb.sstables",
		"leveldb.stats",
	}

	stats := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, err := db.db.GetProperty(key); err == nil {
			stats[key] = value
		}
	}
	return stats
}

// NewBatch creates a batch for atomic database updates.
// The caller is responsible for calling Batch.Close() once done.
// It implements the [DB] interface for type GoLevelDB.
func (db *GoLevelDB) NewBatch() Batch {
	return newGoLevelDBBatch(db)
}

// Iterator returns an iterator over a domain of keys, in the ascending order
// defined by the database's comparer. End is exclusive; a nil start iterates
// from the first key and a nil end to the last key (inclusive).
// It implements the [DB] interface for type GoLevelDB.
func (db *GoLevelDB) Iterator(start, end []byte) (Iterator, error) {
	if (start != nil && len(start) == 0) || (end != nil && len(end) == 0) {
		return nil, errKeyEmpty
	}

	itr := db.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	return newGoLevelDBIterator(itr, start, end, false /* reverse */), nil
}

// ReverseIterator returns an iterator over a domain of keys, in descending
// order.
// It implements the [DB] interface for type GoLevelDB.
func (db *GoLevelDB) ReverseIterator(start, end []byte) (Iterator, error) {
	if (start != nil && len(start) == 0) || (end != nil && len(end) == 0) {
		return nil, errKeyEmpty
	}

	itr := db.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	return newGoLevelDBIterator(itr, start, end, true /* reverse */), nil
}

var _ Batch = (*goLevelDBBatch)(nil)

// goLevelDBBatch is a sequence of database operations that are applied
// atomically. A batch is not safe for concurrent use.
//
// It implements the [Batch] interface.
type goLevelDBBatch struct {
	db    *GoLevelDB
	batch *leveldb.Batch
}

func newGoLevelDBBatch(db *GoLevelDB) *goLevelDBBatch {
	return &goLevelDBBatch{
		db:    db,
		batch: new(leveldb.Batch),
	}
}

// Set adds a set update to the batch that sets the key to map to the value.
// It implements the [Batch] interface for type goLevelDBBatch.
func (b *goLevelDBBatch) Set(key, value []byte) error {
	if len(key) == 0 {
		return errKeyEmpty
	}
	if value == nil {
		return errValueNil
	}
	if b.batch == nil {
		return errBatchClosed
	}

	b.batch.Put(key, value)

	return nil
}

// Delete adds a delete update to the batch that deletes the database entry
// for key.
// It implements the [Batch] interface for type goLevelDBBatch.
func (b *goLevelDBBatch) Delete(key []byte) error {
	if len(key) == 0 {
		return errKeyEmpty
	}
	if b.batch == nil {
		return errBatchClosed
	}

	b.batch.Delete(key)

	return nil
}

// Write applies the batch to the database. Write does not guarantee that the
// batch is persisted to disk before returning.
// It implements the [Batch] interface for type goLevelDBBatch.
func (b *goLevelDBBatch) Write() error {
	return b.commitWithOpts(&opt.WriteOptions{Sync: false})
}

// WriteSync applies the batch to the database and guarantees it is persisted
// to disk before returning.
// It implements the [Batch] interface for type goLevelDBBatch.
func (b *goLevelDBBatch) WriteSync() error {
	return b.commitWithOpts(&opt.WriteOptions{Sync: true})
}

func (b *goLevelDBBatch) commitWithOpts(writeOpts *opt.WriteOptions) error {
	if b.batch == nil {
		return errBatchClosed
	}

	if err := b.db.db.Write(b.batch, writeOpts); err != nil {
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
// It implements the [Batch] interface for type goLevelDBBatch.
func (b *goLevelDBBatch) Close() error {
	if b.batch != nil {
		b.batch.Reset()
		b.batch = nil
	}

	return nil
}

// goLevelDBIterator is an Iterator iterating over a database's key/value
// pairs in key order. It is not safe for concurrent use.
//
// It implements the [Iterator] interface.
type goLevelDBIterator struct {
	source     iterator.Iterator
	start, end []byte // end is exclusive.
	isReverse  bool
	isInvalid  bool
}

var _ Iterator = (*goLevelDBIterator)(nil)

func newGoLevelDBIterator(source iterator.Iterator, start, end []byte, isReverse bool) *goLevelDBIterator {
	if isReverse {
		source.Last()
	} else {
		source.First()
	}

	return &goLevelDBIterator{
		source:    source,
		start:     start,
		end:       end,
		isReverse: isReverse,
	}
}

// Domain returns the start (inclusive) and end (exclusive) limits of the
// iterator.
// It implements the [Iterator] interface for type goLevelDBIterator.
func (itr *goLevelDBIterator) Domain() ([]byte, []byte) {
	return itr.start, itr.end
}

// Valid returns whether the current iterator is valid. Once invalid, the
// Iterator remains invalid forever.
// It implements the [Iterator] interface for type goLevelDBIterator.
func (itr *goLevelDBIterator) Valid() bool {
	if itr.isInvalid {
		return false
	}

	if err := itr.source.Error(); err != nil {
		itr.isInvalid = true
		return false
	}

	// The underlying range iterator already enforces the bounds under the
	// database's comparer, so exhaustion is the only invalidity source.
	if !itr.source.Valid() {
		itr.isInvalid = true
		return false
	}

	return true
}

// Key returns the key at the current position. Panics if the iterator is
// invalid.
// It implements the [Iterator] interface for type goLevelDBIterator.
func (itr *goLevelDBIterator) Key() []byte {
	itr.assertIsValid()
	return cp(itr.source.Key())
}

// Value returns the value of the current key/value pair. Panics if the
// iterator is invalid.
// It implements the [Iterator] interface for type goLevelDBIterator.
func (itr *goLevelDBIterator) Value() []byte {
	itr.assertIsValid()
	return cp(itr.source.Value())
}

// Next moves the iterator to the next key in the database, as defined by
// order of iteration. It panics if the iterator is invalid.
// It implements the [Iterator] interface for type goLevelDBIterator.
func (itr *goLevelDBIterator) Next() {
	itr.assertIsValid()

	if itr.isReverse {
		itr.source.Prev()
	} else {
		itr.source.Next()
	}
}

// Error returns the last error encountered by the iterator, if any.
// It implements the [Iterator] interface for type goLevelDBIterator.
func (itr *goLevelDBIterator) Error() error {
	return itr.source.Error()
}

// Close closes the iterator, releasing any allocated resources.
// It implements the [Iterator] interface for type goLevelDBIterator.
func (itr *goLevelDBIterator) Close() error {
	itr.source.Release()
	return nil
}

func (itr *goLevelDBIterator) assertIsValid() {
	if !itr.Valid() {
		panic("iterator is invalid")
	}
}

// cp copies an iterator-owned slice, whose backing array may be reused by
// the next call to Next.
func cp(bz []byte) []byte {
	if bz == nil {
		return nil
	}
	ret := make([]byte, len(bz))
	copy(ret, bz)
	return ret
}
