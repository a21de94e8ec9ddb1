package storage

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testComparer orders purely numeric keys by value instead of byte-wise. The
// keys used with it in tests are all numeric so the order stays total.
var testComparer = &Comparer{
	Name: "test.NumericComparer",
	Compare: func(a, b []byte) int {
		ai, aErr := strconv.ParseUint(string(a), 10, 64)
		bi, bErr := strconv.ParseUint(string(b), 10, 64)
		if aErr != nil || bErr != nil {
			return bytes.Compare(a, b)
		}
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	},
}

func TestGoLevelDBBasics(t *testing.T) {
	db, err := NewGoLevelDB("test", t.TempDir(), Options{})
	require.NoError(t, err)
	defer db.Close()

	key := []byte("key")
	value := []byte("value")

	got, err := db.Get(key)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, db.SetSync(key, value))

	has, err := db.Has(key)
	require.NoError(t, err)
	assert.True(t, has)

	got, err = db.Get(key)
	require.NoError(t, err)
	assert.Equal(t, value, got)

	require.NoError(t, db.DeleteSync(key))

	has, err = db.Has(key)
	require.NoError(t, err)
	assert.False(t, has)

	// Empty keys and nil values are rejected.
	require.Error(t, db.Set(nil, value))
	require.Error(t, db.Set([]byte{}, value))
	require.Error(t, db.Set(key, nil))
	_, err = db.Get(nil)
	require.Error(t, err)
}

func TestGoLevelDBBatch(t *testing.T) {
	db, err := NewMemDB(Options{})
	require.NoError(t, err)
	defer db.Close()

	batch := db.NewBatch()
	require.NoError(t, batch.Set([]byte("a"), []byte("1")))
	require.NoError(t, batch.Set([]byte("b"), []byte("2")))
	require.NoError(t, batch.Delete([]byte("a")))
	require.NoError(t, batch.WriteSync())

	// A written batch only accepts Close.
	require.ErrorIs(t, batch.Set([]byte("c"), []byte("3")), errBatchClosed)
	require.NoError(t, batch.Close())

	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = db.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)
}

func TestGoLevelDBCustomComparerOrder(t *testing.T) {
	db, err := NewMemDB(Options{Comparer: testComparer})
	require.NoError(t, err)
	defer db.Close()

	for _, key := range []string{"10", "2", "9", "11"} {
		require.NoError(t, db.Set([]byte(key), []byte("v"+key)))
	}

	itr, err := db.Iterator(nil, nil)
	require.NoError(t, err)
	defer itr.Close()

	var keys []string
	for ; itr.Valid(); itr.Next() {
		keys = append(keys, string(itr.Key()))
	}
	require.NoError(t, itr.Error())

	// Byte-wise order would be 10, 11, 2, 9.
	assert.Equal(t, []string{"2", "9", "10", "11"}, keys)
}

func TestGoLevelDBReverseIterator(t *testing.T) {
	db, err := NewMemDB(Options{Comparer: testComparer})
	require.NoError(t, err)
	defer db.Close()

	for _, key := range []string{"2", "9", "10"} {
		require.NoError(t, db.Set([]byte(key), []byte("v"+key)))
	}

	itr, err := db.ReverseIterator(nil, nil)
	require.NoError(t, err)
	defer itr.Close()

	var keys []string
	for ; itr.Valid(); itr.Next() {
		keys = append(keys, string(itr.Key()))
	}
	require.NoError(t, itr.Error())

	assert.Equal(t, []string{"10", "9", "2"}, keys)
}

func TestGoLevelDBIteratorBounds(t *testing.T) {
	db, err := NewMemDB(Options{Comparer: testComparer})
	require.NoError(t, err)
	defer db.Close()

	for _, key := range []string{"2", "9", "10", "11"} {
		require.NoError(t, db.Set([]byte(key), []byte("v"+key)))
	}

	// End is exclusive.
	itr, err := db.Iterator([]byte("9"), []byte("11"))
	require.NoError(t, err)
	defer itr.Close()

	var keys []string
	for ; itr.Valid(); itr.Next() {
		keys = append(keys, string(itr.Key()))
	}
	require.NoError(t, itr.Error())

	assert.Equal(t, []string{"9", "10"}, keys)
}

func TestGoLevelDBComparerNamePersisted(t *testing.T) {
	dir := t.TempDir()

	db, err := NewGoLevelDB("test", dir, Options{Comparer: testComparer})
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("7"), []byte("v")))
	require.NoError(t, db.Close())

	// Reopening with the default byte-wise comparer must fail: the manifest
	// records the comparer name the database was created with.
	_, err = NewGoLevelDB("test", dir, Options{})
	require.Error(t, err)

	db, err = NewGoLevelDB("test", dir, Options{Comparer: testComparer})
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Get([]byte("7"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}
