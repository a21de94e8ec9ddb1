package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgernet/ledgerdb/merkle"
	"github.com/ledgernet/ledgerdb/storage"
	"github.com/ledgernet/ledgerdb/types"
)

func newTestDB(t *testing.T) storage.DB {
	t.Helper()

	db, err := storage.NewMemDB(storage.Options{Comparer: Comparer()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func newTestStore(t *testing.T, db storage.DB) *Store {
	t.Helper()

	store, err := NewStore(db, StoreOptions{ReadCacheSize: 16})
	require.NoError(t, err)

	return store
}

func testTree(t *testing.T, kvs map[string]string) *merkle.Tree {
	t.Helper()

	tree := merkle.NewTree()
	for k, v := range kvs {
		require.NoError(t, tree.Update([]byte(k), []byte(v)))
	}
	return tree
}

func testHash(fill byte) types.BlockHash {
	var hash types.BlockHash
	for i := range hash {
		hash[i] = fill
	}
	return hash
}

func writeTestBlock(t *testing.T, store *Store, height types.BlockHeight, subspaces map[types.Address]types.Subspace) *merkle.Tree {
	t.Helper()

	tree := testTree(t, map[string]string{"state": height.KeySeg()})
	require.NoError(t, store.WriteBlock(tree, testHash(byte(height)), height, subspaces))
	return tree
}

func TestWriteBlockReadBack(t *testing.T) {
	db := newTestDB(t)
	store := newTestStore(t, db)

	require.NoError(t, store.WriteChainID("test-chain"))
	assert.Equal(t, "test-chain", store.ChainID())

	tree := writeTestBlock(t, store, 1, map[types.Address]types.Subspace{
		"alice": {"balance": []byte("100")},
		"bob":   {"balance": []byte("7"), "nonce": []byte("1")},
	})
	assert.Equal(t, types.BlockHeight(1), store.Height())

	value, err := store.Read(1, "alice", "balance")
	require.NoError(t, err)
	assert.Equal(t, []byte("100"), value)

	value, err = store.ReadCurrent("bob", "nonce")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), value)

	block, err := store.ReadLastBlock()
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, "test-chain", block.ChainID)
	assert.Equal(t, types.BlockHeight(1), block.Height)
	assert.Equal(t, testHash(1), block.Hash)
	assert.Equal(t, tree.Root(), block.Tree.Root())
	assert.Equal(t, map[types.Address]types.Subspace{
		"alice": {"balance": []byte("100")},
		"bob":   {"balance": []byte("7"), "nonce": []byte("1")},
	}, block.Subspaces)
}

func TestReadFallsBackToEarlierHeight(t *testing.T) {
	db := newTestDB(t)
	store := newTestStore(t, db)

	require.NoError(t, store.WriteChainID("test-chain"))
	writeTestBlock(t, store, 1, map[types.Address]types.Subspace{
		"alice": {"balance": []byte("v1")},
	})
	writeTestBlock(t, store, 5, map[types.Address]types.Subspace{
		"alice": {"balance": []byte("v5")},
	})

	testCases := []struct {
		name   string
		height types.BlockHeight
		want   []byte
	}{
		{"before first write", 0, nil},
		{"exact first write", 1, []byte("v1")},
		{"between writes", 3, []byte("v1")},
		{"exact second write", 5, []byte("v5")},
		{"after last write", 7, []byte("v5")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			value, err := store.Read(tc.height, "alice", "balance")
			require.NoError(t, err)
			assert.Equal(t, tc.want, value)
		})
	}

	// A column no height ever wrote is absent, not an error.
	value, err := store.Read(5, "alice", "nonce")
	require.NoError(t, err)
	assert.Nil(t, value)

	// Repeat a resolved read; the answer must be stable through the cache.
	value, err = store.Read(3, "alice", "balance")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)
}

func TestReadWithoutCache(t *testing.T) {
	db := newTestDB(t)
	store, err := NewStore(db, StoreOptions{})
	require.NoError(t, err)

	require.NoError(t, store.WriteChainID("test-chain"))
	writeTestBlock(t, store, 2, map[types.Address]types.Subspace{
		"alice": {"balance": []byte("v2")},
	})

	for i := 0; i < 2; i++ {
		value, err := store.Read(4, "alice", "balance")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), value)
	}
}

func TestReadLastBlockEmptyStore(t *testing.T) {
	db := newTestDB(t)
	store := newTestStore(t, db)

	block, err := store.ReadLastBlock()
	require.NoError(t, err)
	assert.Nil(t, block)

	// A chain id alone does not imply a committed block.
	require.NoError(t, store.WriteChainID("test-chain"))
	block, err = store.ReadLastBlock()
	require.NoError(t, err)
	assert.Nil(t, block)
}

func TestReadLastBlockUnknownKey(t *testing.T) {
	db := newTestDB(t)
	store := newTestStore(t, db)

	require.NoError(t, store.WriteChainID("test-chain"))
	writeTestBlock(t, store, 1, nil)

	require.NoError(t, db.SetSync([]byte("1/bogus"), []byte("x")))

	_, err := store.ReadLastBlock()
	require.Error(t, err)

	var unknownErr ErrUnknownKey
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "1/bogus", unknownErr.Key)
}

func TestReadLastBlockEssentialDataMissing(t *testing.T) {
	db := newTestDB(t)
	store := newTestStore(t, db)

	require.NoError(t, store.WriteChainID("test-chain"))
	writeTestBlock(t, store, 1, nil)

	require.NoError(t, db.DeleteSync(calcBlockHashKey(1)))

	_, err := store.ReadLastBlock()
	require.Error(t, err)

	var missingErr ErrEssentialDataMissing
	require.ErrorAs(t, err, &missingErr)
	assert.Equal(t, types.BlockHeight(1), missingErr.Height)
}

func TestReadLastBlockIgnoresHalfCommittedBlock(t *testing.T) {
	db := newTestDB(t)
	store := newTestStore(t, db)

	require.NoError(t, store.WriteChainID("test-chain"))
	tree := writeTestBlock(t, store, 1, map[types.Address]types.Subspace{
		"alice": {"balance": []byte("v1")},
	})

	// Simulate a crash after the block batch but before the height pointer
	// advance: height 2's keys are on disk, the pointer still reads 1.
	batch := db.NewBatch()
	tree2 := testTree(t, map[string]string{"state": "2"})
	root2 := tree2.Root()
	require.NoError(t, batch.Set(calcTreeRootKey(2), root2.Bytes()))
	require.NoError(t, batch.Set(calcTreeStoreKey(2), tree2.Store().Encode()))
	require.NoError(t, batch.Set(calcBlockHashKey(2), testHash(2).Bytes()))
	require.NoError(t, batch.WriteSync())
	require.NoError(t, batch.Close())

	reopened := newTestStore(t, db)
	assert.Equal(t, types.BlockHeight(1), reopened.Height())

	block, err := reopened.ReadLastBlock()
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, types.BlockHeight(1), block.Height)
	assert.Equal(t, tree.Root(), block.Tree.Root())
}

func TestNewStoreRecoversPointers(t *testing.T) {
	db := newTestDB(t)
	store := newTestStore(t, db)

	require.NoError(t, store.WriteChainID("test-chain"))
	writeTestBlock(t, store, 1, nil)
	writeTestBlock(t, store, 2, nil)

	reopened := newTestStore(t, db)
	assert.Equal(t, types.BlockHeight(2), reopened.Height())
	assert.Equal(t, "test-chain", reopened.ChainID())
}

func TestNewStoreCorruptHeightPointer(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.SetSync(heightKey, []byte("not-a-height")))

	_, err := NewStore(db, StoreOptions{})
	require.Error(t, err)

	var decodeErr ErrDecode
	require.ErrorAs(t, err, &decodeErr)
}

func TestWriteBlockSubspaceColumnWithSlashes(t *testing.T) {
	db := newTestDB(t)
	store := newTestStore(t, db)

	require.NoError(t, store.WriteChainID("test-chain"))
	writeTestBlock(t, store, 1, map[types.Address]types.Subspace{
		"pos": {"epoch/7/validator-set": []byte("vs")},
	})

	value, err := store.Read(1, "pos", "epoch/7/validator-set")
	require.NoError(t, err)
	assert.Equal(t, []byte("vs"), value)

	block, err := store.ReadLastBlock()
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, []byte("vs"), block.Subspaces["pos"]["epoch/7/validator-set"])
}
