package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgernet/ledgerdb/types"
)

func TestBlockHeightKeySeg(t *testing.T) {
	assert.Equal(t, "0", types.BlockHeight(0).KeySeg())
	assert.Equal(t, "42", types.BlockHeight(42).KeySeg())
	assert.Equal(t, "18446744073709551615", types.BlockHeight(1<<64-1).KeySeg())

	h, err := types.BlockHeightFromKeySeg("42")
	require.NoError(t, err)
	assert.Equal(t, types.BlockHeight(42), h)

	_, err = types.BlockHeightFromKeySeg("nope")
	require.Error(t, err)
	_, err = types.BlockHeightFromKeySeg("-1")
	require.Error(t, err)
}

func TestBlockHeightEncode(t *testing.T) {
	h, err := types.DecodeBlockHeight(types.BlockHeight(100).Encode())
	require.NoError(t, err)
	assert.Equal(t, types.BlockHeight(100), h)

	_, err = types.DecodeBlockHeight([]byte{0xff, 0xfe})
	require.Error(t, err)
}

func TestBlockHeightPrevNext(t *testing.T) {
	prev, ok := types.BlockHeight(5).Prev()
	require.True(t, ok)
	assert.Equal(t, types.BlockHeight(4), prev)

	_, ok = types.BlockHeight(0).Prev()
	assert.False(t, ok)

	assert.Equal(t, types.BlockHeight(6), types.BlockHeight(5).Next())
}

func TestAddressFromKeySeg(t *testing.T) {
	addr, err := types.AddressFromKeySeg("validator-1")
	require.NoError(t, err)
	assert.Equal(t, types.Address("validator-1"), addr)
	assert.Equal(t, "validator-1", addr.KeySeg())

	_, err = types.AddressFromKeySeg("")
	require.Error(t, err)

	_, err = types.AddressFromKeySeg("a/b")
	require.Error(t, err)

	_, err = types.AddressFromKeySeg(string([]byte{0xff, 0xfe}))
	require.Error(t, err)
}

func TestBlockHashFromBytes(t *testing.T) {
	bz := make([]byte, types.BlockHashSize)
	for i := range bz {
		bz[i] = byte(i)
	}

	hash, err := types.BlockHashFromBytes(bz)
	require.NoError(t, err)
	assert.Equal(t, bz, hash.Bytes())

	_, err = types.BlockHashFromBytes(bz[:16])
	require.Error(t, err)
	_, err = types.BlockHashFromBytes(append(bz, 0))
	require.Error(t, err)
}
