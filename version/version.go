package version

const (
	// SemVer is used as the fallback version of the ledger store when not
	// using git describe. It uses semantic versioning format.
	SemVer = "0.1.0-dev"

	// StorageProtocol versions the on-disk key schema and value encodings.
	// It must be bumped whenever either changes incompatibly.
	StorageProtocol uint64 = 1
)

// GitCommitHash uses git rev-parse HEAD to find the commit hash, which is
// helpful when working with a built binary. See Makefile.
var GitCommitHash = ""
