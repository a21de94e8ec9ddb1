package state

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledgernet/ledgerdb/storage"
)

// comparerName identifies the key ordering below. The engines record it in
// the store's manifest and refuse to open a store created under a different
// name, so changing the ordering requires a new name and a data migration.
const comparerName = "ledgerdb.HeightKeyComparer"

// Comparer returns the key ordering every ledger database must be opened
// with. It is fixed for the life of an on-disk store.
func Comparer() *storage.Comparer {
	return &storage.Comparer{
		Name:    comparerName,
		Compare: CompareKeys,
	}
}

// CompareKeys orders storage keys by numeric block height first, then by the
// remaining '/'-separated segments, so that "9/hash" sorts before "10/hash"
// where plain byte comparison would not. Keys whose first segment is not a
// decimal number (chain_id, height) compare byte-wise; they never start with
// a digit, which keeps the two regimes segregated.
//
// CompareKeys panics on input that is not valid UTF-8: a miscomparing
// comparator corrupts the engine's sort invariant irrecoverably, so there is
// no way to report this softly.
func CompareKeys(a, b []byte) int {
	if !utf8.Valid(a) || !utf8.Valid(b) {
		panic(fmt.Sprintf("key comparer: key is not valid UTF-8: %q vs %q", a, b))
	}

	aSegs := strings.Split(string(a), "/")
	bSegs := strings.Split(string(b), "/")

	aHeight, aErr := strconv.ParseUint(aSegs[0], 10, 64)
	bHeight, bErr := strconv.ParseUint(bSegs[0], 10, 64)
	if aErr != nil || bErr != nil {
		// At least one key has no height prefix.
		return bytes.Compare(a, b)
	}

	switch {
	case aHeight < bHeight:
		return -1
	case aHeight > bHeight:
		return 1
	}
	return compareSegments(aSegs[1:], bSegs[1:])
}

// compareSegments orders two segment sequences element-wise, a missing
// segment sorting before any present one.
func compareSegments(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
