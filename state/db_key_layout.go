package state

import (
	"strings"

	"github.com/ledgernet/ledgerdb/types"
)

// The persisted key schema ('/'-delimited):
//
//	chain_id                     -> chain identifier
//	height                       -> latest committed block height
//	<h>/tree/root                -> Merkle root hash at height h
//	<h>/tree/store               -> Merkle tree store at height h
//	<h>/hash                     -> block hash at height h
//	<h>/subspace/<addr>/<column> -> raw value bytes
//
// The two unprefixed keys never start with a digit, so they never collide
// with a height prefix under CompareKeys.
var (
	chainIDKey = []byte("chain_id")
	heightKey  = []byte("height")
)

const (
	segTree     = "tree"
	segRoot     = "root"
	segStore    = "store"
	segHash     = "hash"
	segSubspace = "subspace"
)

// In the following calc functions we preallocate the key's slice to speed up
// append operations and avoid extra allocations. The longest uint64 has 20
// digits, hence the 20-byte budget for the height segment.

// calcTreeRootKey returns the database key "<h>/tree/root" holding the
// Merkle root for the given height.
func calcTreeRootKey(height types.BlockHeight) []byte {
	key := make([]byte, 0, 20+len("/tree/root"))

	key = append(key, height.KeySeg()...)
	key = append(key, "/tree/root"...)

	return key
}

// calcTreeStoreKey returns the database key "<h>/tree/store" holding the
// Merkle tree store for the given height.
func calcTreeStoreKey(height types.BlockHeight) []byte {
	key := make([]byte, 0, 20+len("/tree/store"))

	key = append(key, height.KeySeg()...)
	key = append(key, "/tree/store"...)

	return key
}

// calcBlockHashKey returns the database key "<h>/hash" holding the block
// hash for the given height.
func calcBlockHashKey(height types.BlockHeight) []byte {
	key := make([]byte, 0, 20+len("/hash"))

	key = append(key, height.KeySeg()...)
	key = append(key, "/hash"...)

	return key
}

// calcSubspaceKey returns the database key "<h>/subspace/<addr>/<column>"
// holding one column of an address's subspace at the given height.
func calcSubspaceKey(height types.BlockHeight, addr types.Address, column string) []byte {
	addrSeg := addr.KeySeg()
	key := make([]byte, 0, 20+len("/subspace/")+len(addrSeg)+1+len(column))

	key = append(key, height.KeySeg()...)
	key = append(key, "/subspace/"...)
	key = append(key, addrSeg...)
	key = append(key, '/')
	key = append(key, column...)

	return key
}

// calcHeightPrefix returns the iteration prefix "<h>/" covering every key of
// the given height.
func calcHeightPrefix(height types.BlockHeight) []byte {
	key := make([]byte, 0, 21)

	key = append(key, height.KeySeg()...)
	key = append(key, '/')

	return key
}

// blockKeyKind discriminates the known per-height key shapes.
type blockKeyKind int

const (
	blockKeyRoot blockKeyKind = iota
	blockKeyStore
	blockKeyHash
	blockKeySubspace
)

// blockKey is a parsed per-height key. addr and column are set only for
// blockKeySubspace.
type blockKey struct {
	kind   blockKeyKind
	addr   types.Address
	column string
}

// parseBlockKey classifies a key scanned from a height's range by the
// segments after the height prefix. Any shape the schema does not list is an
// ErrUnknownKey: recovery must never silently drop state it cannot name.
func parseBlockKey(path string) (blockKey, error) {
	segs := strings.Split(path, "/")
	if len(segs) < 2 {
		return blockKey{}, ErrUnknownKey{Key: path}
	}

	switch segs[1] {
	case segTree:
		if len(segs) == 3 {
			switch segs[2] {
			case segRoot:
				return blockKey{kind: blockKeyRoot}, nil
			case segStore:
				return blockKey{kind: blockKeyStore}, nil
			}
		}

	case segHash:
		if len(segs) == 2 {
			return blockKey{kind: blockKeyHash}, nil
		}

	case segSubspace:
		if len(segs) >= 3 {
			addr, err := types.AddressFromKeySeg(segs[2])
			if err != nil {
				return blockKey{}, ErrDecode{What: "address key segment", Err: err}
			}
			// Column names may themselves contain '/'; rejoin whatever is
			// left of the path.
			return blockKey{
				kind:   blockKeySubspace,
				addr:   addr,
				column: strings.Join(segs[3:], "/"),
			}, nil
		}
	}

	return blockKey{}, ErrUnknownKey{Key: path}
}
