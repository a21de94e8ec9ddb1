package state

import (
	"fmt"

	"github.com/ledgernet/ledgerdb/types"
)

// ErrUnknownKey reports a scanned key that matches none of the known schema
// shapes. It signals either disk corruption or a forward-incompatible schema
// version, so recovery aborts instead of skipping the key.
type ErrUnknownKey struct {
	Key string
}

func (e ErrUnknownKey) Error() string {
	return fmt.Sprintf("found an unknown key: %s", e.Key)
}

// ErrDecode reports a recoverable decoding failure together with its cause.
// The store does not retry; the caller decides.
type ErrDecode struct {
	What string
	Err  error
}

func (e ErrDecode) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.What, e.Err)
}

func (e ErrDecode) Unwrap() error {
	return e.Err
}

// ErrEssentialDataMissing reports a height whose scan completed without the
// Merkle root, the Merkle store, or the block hash. A block with a partial
// commitment is not a recoverable state.
type ErrEssentialDataMissing struct {
	Height types.BlockHeight
}

func (e ErrEssentialDataMissing) Error() string {
	return fmt.Sprintf("essential data for height %d missing from the database", e.Height)
}
