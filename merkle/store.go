package merkle

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/celestiaorg/smt"
)

// Store holds the node and value maps backing a sparse Merkle tree. It is
// the persisted counterpart of the tree: together with the root hash it is
// everything needed to reconstruct the tree at a later time.
type Store struct {
	nodes  *kvMap
	values *kvMap
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		nodes:  newKVMap(),
		values: newKVMap(),
	}
}

// Encode serializes the store into a deterministic binary form: two
// sections (nodes, then values), each a uvarint entry count followed by
// length-prefixed key/value pairs in ascending key order.
func (s *Store) Encode() []byte {
	bz := appendSection(nil, s.nodes.m)
	return appendSection(bz, s.values.m)
}

// DecodeStore is the inverse of Encode. Truncated input or trailing bytes
// are decoding errors.
func DecodeStore(bz []byte) (*Store, error) {
	store := NewStore()

	rest, err := readSection(bz, store.nodes.m)
	if err != nil {
		return nil, fmt.Errorf("decoding node section: %w", err)
	}
	rest, err = readSection(rest, store.values.m)
	if err != nil {
		return nil, fmt.Errorf("decoding value section: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("decoding store: %d trailing bytes", len(rest))
	}

	return store, nil
}

func appendSection(bz []byte, m map[string][]byte) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bz = binary.AppendUvarint(bz, uint64(len(keys)))
	for _, k := range keys {
		bz = binary.AppendUvarint(bz, uint64(len(k)))
		bz = append(bz, k...)
		v := m[k]
		bz = binary.AppendUvarint(bz, uint64(len(v)))
		bz = append(bz, v...)
	}
	return bz
}

func readSection(bz []byte, m map[string][]byte) ([]byte, error) {
	count, n := binary.Uvarint(bz)
	if n <= 0 {
		return nil, fmt.Errorf("reading entry count")
	}
	bz = bz[n:]

	for i := uint64(0); i < count; i++ {
		key, rest, err := readChunk(bz)
		if err != nil {
			return nil, fmt.Errorf("reading key %d: %w", i, err)
		}
		value, rest, err := readChunk(rest)
		if err != nil {
			return nil, fmt.Errorf("reading value %d: %w", i, err)
		}
		m[string(key)] = value
		bz = rest
	}
	return bz, nil
}

func readChunk(bz []byte) ([]byte, []byte, error) {
	size, n := binary.Uvarint(bz)
	if n <= 0 {
		return nil, nil, fmt.Errorf("reading length prefix")
	}
	bz = bz[n:]
	if uint64(len(bz)) < size {
		return nil, nil, fmt.Errorf("truncated chunk: want %d bytes, have %d", size, len(bz))
	}
	chunk := make([]byte, size)
	copy(chunk, bz[:size])
	return chunk, bz[size:], nil
}

// kvMap is an in-memory smt.MapStore.
type kvMap struct {
	m map[string][]byte
}

var _ smt.MapStore = (*kvMap)(nil)

func newKVMap() *kvMap {
	return &kvMap{m: make(map[string][]byte)}
}

func (k *kvMap) Get(key []byte) ([]byte, error) {
	value, ok := k.m[string(key)]
	if !ok {
		return nil, &smt.InvalidKeyError{Key: key}
	}
	return value, nil
}

func (k *kvMap) Set(key, value []byte) error {
	k.m[string(key)] = value
	return nil
}

func (k *kvMap) Delete(key []byte) error {
	if _, ok := k.m[string(key)]; !ok {
		return &smt.InvalidKeyError{Key: key}
	}
	delete(k.m, string(key))
	return nil
}
