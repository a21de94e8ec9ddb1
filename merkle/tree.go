// Package merkle authenticates the ledger state with a sparse Merkle tree.
//
// The storage layer treats the tree as a root hash plus an encodable store;
// the hashing and proof algorithms are the library's concern.
package merkle

import (
	"crypto/sha256"
	"fmt"

	"github.com/celestiaorg/smt"
)

// RootSize is the length in bytes of a tree root hash.
const RootSize = sha256.Size

// Root is the root hash of a sparse Merkle tree.
type Root [RootSize]byte

// Bytes returns the root as a byte slice.
func (r Root) Bytes() []byte {
	return r[:]
}

// RootFromBytes converts a raw byte slice into a Root, validating its
// length.
func RootFromBytes(bz []byte) (Root, error) {
	var r Root
	if len(bz) != RootSize {
		return r, fmt.Errorf("invalid merkle root length: expected %d, got %d", RootSize, len(bz))
	}
	copy(r[:], bz)
	return r, nil
}

// Tree is a sparse Merkle tree over the ledger state.
type Tree struct {
	smt   *smt.SparseMerkleTree
	store *Store
}

// NewTree returns an empty tree backed by a fresh in-memory store.
func NewTree() *Tree {
	store := NewStore()
	return &Tree{
		smt:   smt.NewSparseMerkleTree(store.nodes, store.values, sha256.New()),
		store: store,
	}
}

// TreeFromParts reconstructs a tree from a previously persisted root and
// store. The root is trusted as-is; it is not re-derived from the store.
func TreeFromParts(root Root, store *Store) *Tree {
	return &Tree{
		smt:   smt.ImportSparseMerkleTree(store.nodes, store.values, sha256.New(), root.Bytes()),
		store: store,
	}
}

// Update sets the value for the given key and reworks the path of hashes
// above it.
func (t *Tree) Update(key, value []byte) error {
	if _, err := t.smt.Update(key, value); err != nil {
		return fmt.Errorf("updating merkle tree: %w", err)
	}
	return nil
}

// Get returns the value for the given key, or nil if the key was never set.
func (t *Tree) Get(key []byte) ([]byte, error) {
	value, err := t.smt.Get(key)
	if err != nil {
		return nil, fmt.Errorf("reading merkle tree: %w", err)
	}
	return value, nil
}

// Root returns the current root hash.
func (t *Tree) Root() Root {
	var r Root
	copy(r[:], t.smt.Root())
	return r
}

// Store returns the store backing the tree.
func (t *Tree) Store() *Store {
	return t.store
}
