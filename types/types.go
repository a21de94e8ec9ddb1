package types

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// BlockHeight is the ordinal index of a committed block. Storage keys are
// partitioned by height using the canonical decimal encoding returned by
// KeySeg.
type BlockHeight uint64

// KeySeg returns the canonical key-segment encoding of the height.
func (h BlockHeight) KeySeg() string {
	return strconv.FormatUint(uint64(h), 10)
}

// Encode returns the stored byte encoding of the height. It matches the
// key-segment encoding so the height pointer stays readable in raw dumps.
func (h BlockHeight) Encode() []byte {
	return []byte(h.KeySeg())
}

// Prev returns the predecessor height. The second return value is false at
// height 0, which has no predecessor.
func (h BlockHeight) Prev() (BlockHeight, bool) {
	if h == 0 {
		return 0, false
	}
	return h - 1, true
}

// Next returns the successor height.
func (h BlockHeight) Next() BlockHeight {
	return h + 1
}

func (h BlockHeight) String() string {
	return h.KeySeg()
}

// BlockHeightFromKeySeg parses a height from its key-segment encoding. It is
// the left inverse of KeySeg.
func BlockHeightFromKeySeg(seg string) (BlockHeight, error) {
	n, err := strconv.ParseUint(seg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing block height from %q: %w", seg, err)
	}
	return BlockHeight(n), nil
}

// DecodeBlockHeight parses a height from its stored byte encoding.
func DecodeBlockHeight(bz []byte) (BlockHeight, error) {
	return BlockHeightFromKeySeg(string(bz))
}

// Address identifies the account or module that owns a subspace. It is
// opaque to the storage layer; only its key-segment encoding is interpreted.
type Address string

// KeySeg returns the canonical key-segment encoding of the address.
func (a Address) KeySeg() string {
	return string(a)
}

func (a Address) String() string {
	return string(a)
}

// AddressFromKeySeg parses an address back from a key segment. It is the
// left inverse of KeySeg. The segment must be non-empty, valid UTF-8 and
// free of the '/' path delimiter.
func AddressFromKeySeg(seg string) (Address, error) {
	switch {
	case seg == "":
		return "", fmt.Errorf("address key segment is empty")
	case !utf8.ValidString(seg):
		return "", fmt.Errorf("address key segment is not valid UTF-8: %q", seg)
	case strings.Contains(seg, "/"):
		return "", fmt.Errorf("address key segment contains '/': %q", seg)
	}
	return Address(seg), nil
}

// BlockHashSize is the length in bytes of a block hash.
const BlockHashSize = 32

// BlockHash is the content hash of a block.
type BlockHash [BlockHashSize]byte

// Bytes returns the hash as a byte slice.
func (bh BlockHash) Bytes() []byte {
	return bh[:]
}

func (bh BlockHash) String() string {
	return strings.ToUpper(hex.EncodeToString(bh[:]))
}

// BlockHashFromBytes converts a raw byte slice into a BlockHash, validating
// its length.
func BlockHashFromBytes(bz []byte) (BlockHash, error) {
	var bh BlockHash
	if len(bz) != BlockHashSize {
		return bh, fmt.Errorf("invalid block hash length: expected %d, got %d", BlockHashSize, len(bz))
	}
	copy(bh[:], bz)
	return bh, nil
}

// Subspace is the flat column name to raw value mapping an address owns at
// one height. Only the columns changed in a block are persisted for it;
// untouched columns stay visible through the historical read fallback.
type Subspace map[string][]byte
