package merkle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgernet/ledgerdb/merkle"
)

func TestTreeUpdateChangesRoot(t *testing.T) {
	tree := merkle.NewTree()
	empty := tree.Root()

	require.NoError(t, tree.Update([]byte("alpha"), []byte("one")))
	afterFirst := tree.Root()
	assert.NotEqual(t, empty, afterFirst)

	require.NoError(t, tree.Update([]byte("beta"), []byte("two")))
	assert.NotEqual(t, afterFirst, tree.Root())

	value, err := tree.Get([]byte("alpha"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), value)
}

func TestTreeDeterministicRoot(t *testing.T) {
	build := func(keys ...string) merkle.Root {
		tree := merkle.NewTree()
		for _, k := range keys {
			require.NoError(t, tree.Update([]byte(k), []byte("v-"+k)))
		}
		return tree.Root()
	}

	// Insertion order must not affect the commitment.
	assert.Equal(t, build("a", "b", "c"), build("c", "a", "b"))
}

func TestStoreEncodeDecode(t *testing.T) {
	tree := merkle.NewTree()
	require.NoError(t, tree.Update([]byte("alpha"), []byte("one")))
	require.NoError(t, tree.Update([]byte("beta"), []byte("two")))
	require.NoError(t, tree.Update([]byte("gamma"), []byte("three")))

	bz := tree.Store().Encode()

	store, err := merkle.DecodeStore(bz)
	require.NoError(t, err)

	restored := merkle.TreeFromParts(tree.Root(), store)
	assert.Equal(t, tree.Root(), restored.Root())

	value, err := restored.Get([]byte("beta"))
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), value)
}

func TestStoreEncodeDeterministic(t *testing.T) {
	tree := merkle.NewTree()
	require.NoError(t, tree.Update([]byte("alpha"), []byte("one")))
	require.NoError(t, tree.Update([]byte("beta"), []byte("two")))

	assert.Equal(t, tree.Store().Encode(), tree.Store().Encode())
}

func TestDecodeStoreRejectsCorruptInput(t *testing.T) {
	tree := merkle.NewTree()
	require.NoError(t, tree.Update([]byte("alpha"), []byte("one")))
	bz := tree.Store().Encode()

	_, err := merkle.DecodeStore(bz[:len(bz)/2])
	require.Error(t, err)

	_, err = merkle.DecodeStore(append(append([]byte(nil), bz...), 0x01))
	require.Error(t, err)

	// The empty store encodes to two zero counts; fully empty input is
	// truncated, not empty.
	_, err = merkle.DecodeStore(nil)
	require.Error(t, err)

	empty, err := merkle.DecodeStore(merkle.NewTree().Store().Encode())
	require.NoError(t, err)
	require.NotNil(t, empty)
}

func TestRootFromBytes(t *testing.T) {
	tree := merkle.NewTree()
	require.NoError(t, tree.Update([]byte("alpha"), []byte("one")))

	root, err := merkle.RootFromBytes(tree.Root().Bytes())
	require.NoError(t, err)
	assert.Equal(t, tree.Root(), root)

	_, err = merkle.RootFromBytes([]byte("short"))
	require.Error(t, err)
}
