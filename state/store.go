// Package state persists the chain state: for every committed block height,
// its Merkle commitment (root hash and backing store), its block hash, and
// the per-address subspace writes made in that block. Any past height's
// value can be read back on demand; the latest committed block can be fully
// reconstructed from a raw key scan on startup.
package state

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ledgernet/ledgerdb/config"
	"github.com/ledgernet/ledgerdb/libs/log"
	"github.com/ledgernet/ledgerdb/merkle"
	"github.com/ledgernet/ledgerdb/storage"
	"github.com/ledgernet/ledgerdb/types"
	"github.com/ledgernet/ledgerdb/version"
)

// dbName is the engine instance name under the configured database
// directory.
const dbName = "ledger"

// Block is the fully reconstructed state of the latest committed height, as
// returned by ReadLastBlock.
type Block struct {
	ChainID   string
	Tree      *merkle.Tree
	Hash      types.BlockHash
	Height    types.BlockHeight
	Subspaces map[types.Address]types.Subspace
}

// readCacheKey identifies one historical lookup. Committed history is
// immutable, so a resolved lookup never needs invalidation: a later block
// can only change the answer for query heights that did not exist when the
// entry was cached.
type readCacheKey struct {
	addr   types.Address
	column string
	height types.BlockHeight
}

// StoreOptions configures a Store independently of the underlying engine.
type StoreOptions struct {
	Logger  log.Logger
	Metrics *Metrics

	// ReadCacheSize bounds the resolved historical-read cache. Zero
	// disables the cache.
	ReadCacheSize int
}

// Store is a ledger state store on top of an embedded key-value engine.
//
// The latest committed height is tracked by a single `height` pointer key
// which is updated only after a block's batch has been durably written.
// A crash between the two writes leaves the pointer at the previous height,
// so the half-committed block is ignored on restart instead of being exposed
// as latest.
//
// The design is single-writer, multiple-reader: WriteBlock and WriteChainID
// are expected to be called from one logical writer context, matching the
// exclusivity of the embedded engine.
type Store struct {
	db      storage.DB
	logger  log.Logger
	metrics *Metrics

	// mtx guards height and chainID so accessors do not race the writers.
	// The on-disk keys remain the source of truth; these are loaded copies.
	mtx     sync.RWMutex
	height  types.BlockHeight
	chainID string

	// readCache maps a historical lookup to the height whose write resolved
	// it, skipping the predecessor walk on repeat queries. Nil when
	// disabled.
	readCache *lru.Cache[readCacheKey, types.BlockHeight]
}

// Open builds the engine described by cfg, with the ledger key ordering, and
// returns a Store on top of it.
func Open(cfg *config.Config, logger log.Logger) (*Store, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	db, err := storage.New(
		storage.BackendType(cfg.DBBackend),
		dbName,
		cfg.DBDir(),
		storage.Options{Comparer: Comparer()},
	)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.DBBackend, err)
	}

	store, err := NewStore(db, StoreOptions{
		Logger:        logger,
		ReadCacheSize: cfg.ReadCacheSize,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("opened state store",
		"backend", cfg.DBBackend,
		"height", store.Height(),
		"version", version.SemVer,
	)
	return store, nil
}

// NewStore returns a Store using the given engine, initialized to the last
// committed height and chain id found in it. The engine must have been
// opened with the ordering returned by Comparer.
func NewStore(db storage.DB, opts StoreOptions) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}

	s := &Store{
		db:      db,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}

	if opts.ReadCacheSize > 0 {
		cache, err := lru.New[readCacheKey, types.BlockHeight](opts.ReadCacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating read cache: %w", err)
		}
		s.readCache = cache
	}

	if err := s.loadPointers(); err != nil {
		return nil, err
	}
	return s, nil
}

// loadPointers reads the height pointer and chain id into the in-memory
// copies. Absence of either is not an error; it means no block or no chain
// id has been committed yet.
func (s *Store) loadPointers() error {
	heightBytes, err := s.db.Get(heightKey)
	if err != nil {
		return fmt.Errorf("reading height pointer: %w", err)
	}
	if heightBytes != nil {
		height, err := types.DecodeBlockHeight(heightBytes)
		if err != nil {
			return ErrDecode{What: "block height pointer", Err: err}
		}
		s.height = height
	}

	chainIDBytes, err := s.db.Get(chainIDKey)
	if err != nil {
		return fmt.Errorf("reading chain id: %w", err)
	}
	s.chainID = string(chainIDBytes)

	return nil
}

// Height returns the latest committed block height, or 0 when no block has
// been committed.
func (s *Store) Height() types.BlockHeight {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.height
}

// ChainID returns the chain id the store belongs to, or "" before
// WriteChainID.
func (s *Store) ChainID() string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.chainID
}

// WriteBlock commits one block: the Merkle root and store of its tree, its
// block hash, and every changed subspace column, all in a single atomic,
// durable batch. Only after the batch is persisted is the global height
// pointer advanced, with a second durable write.
//
// If the pointer write fails the store keeps pointing at the previous
// height; the next successful WriteBlock heals it. The failure is still
// returned to the caller.
func (s *Store) WriteBlock(
	tree *merkle.Tree,
	hash types.BlockHash,
	height types.BlockHeight,
	subspaces map[types.Address]types.Subspace,
) error {
	defer s.metrics.observe("write_block", time.Now())

	batch := s.db.NewBatch()
	defer batch.Close()

	root := tree.Root()
	if err := batch.Set(calcTreeRootKey(height), root.Bytes()); err != nil {
		return fmt.Errorf("queueing merkle root: %w", err)
	}
	if err := batch.Set(calcTreeStoreKey(height), tree.Store().Encode()); err != nil {
		return fmt.Errorf("queueing merkle store: %w", err)
	}
	if err := batch.Set(calcBlockHashKey(height), hash.Bytes()); err != nil {
		return fmt.Errorf("queueing block hash: %w", err)
	}
	for addr, subspace := range subspaces {
		for column, value := range subspace {
			if err := batch.Set(calcSubspaceKey(height, addr, column), value); err != nil {
				return fmt.Errorf("queueing subspace %s/%s: %w", addr, column, err)
			}
		}
	}

	// The batch must be durable before the height pointer moves: a crash in
	// between leaves the pointer at the previous height and the new block's
	// keys are simply ignored on restart.
	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("writing block %v: %w", height, err)
	}
	if err := s.db.SetSync(heightKey, height.Encode()); err != nil {
		return fmt.Errorf("advancing height pointer to %v: %w", height, err)
	}

	s.mtx.Lock()
	s.height = height
	s.mtx.Unlock()

	s.logger.Debug("wrote block", "height", height, "subspaces", len(subspaces))
	return nil
}

// WriteChainID durably records the chain id. It is a single-key write,
// always safe to retry.
func (s *Store) WriteChainID(chainID string) error {
	defer s.metrics.observe("write_chain_id", time.Now())

	if err := s.db.SetSync(chainIDKey, []byte(chainID)); err != nil {
		return fmt.Errorf("writing chain id: %w", err)
	}

	s.mtx.Lock()
	s.chainID = chainID
	s.mtx.Unlock()

	return nil
}

// Read returns the value of the given subspace column as of the given
// height: the exact height's write if present, otherwise the nearest
// earlier height's. It returns (nil, nil) when no height at or below the
// queried one ever wrote the column; absence is an expected outcome of the
// fallback chain, not an error.
func (s *Store) Read(height types.BlockHeight, addr types.Address, column string) ([]byte, error) {
	defer s.metrics.observe("read", time.Now())

	if s.readCache != nil {
		if at, ok := s.readCache.Get(readCacheKey{addr, column, height}); ok {
			return s.db.Get(calcSubspaceKey(at, addr, column))
		}
	}

	for h, ok := height, true; ok; h, ok = h.Prev() {
		value, err := s.db.Get(calcSubspaceKey(h, addr, column))
		if err != nil {
			return nil, fmt.Errorf("reading %s/%s at height %v: %w", addr, column, h, err)
		}
		if value != nil {
			if s.readCache != nil {
				s.readCache.Add(readCacheKey{addr, column, height}, h)
			}
			return value, nil
		}
	}
	return nil, nil
}

// ReadCurrent reads the column at the latest committed height. Together
// with Read at an older height it is the pre/post-state pair handed to
// validity predicates; neither ever mutates storage.
func (s *Store) ReadCurrent(addr types.Address, column string) ([]byte, error) {
	return s.Read(s.Height(), addr, column)
}

// ReadLastBlock reconstructs the full state of the latest committed height
// from a bounded scan of its key range. It returns (nil, nil) when the
// store holds no committed state yet (no chain id, or no height pointer).
//
// Every scanned key must classify into a known schema shape; an unknown key
// aborts the scan with ErrUnknownKey. A completed scan that did not observe
// the Merkle root, the Merkle store and the block hash fails with
// ErrEssentialDataMissing.
func (s *Store) ReadLastBlock() (*Block, error) {
	defer s.metrics.observe("read_last_block", time.Now())

	chainIDBytes, err := s.db.Get(chainIDKey)
	if err != nil {
		return nil, fmt.Errorf("reading chain id: %w", err)
	}
	if chainIDBytes == nil {
		// No chain id means no committed state yet.
		return nil, nil
	}

	heightBytes, err := s.db.Get(heightKey)
	if err != nil {
		return nil, fmt.Errorf("reading height pointer: %w", err)
	}
	if heightBytes == nil {
		// A chain id alone does not imply a committed block.
		return nil, nil
	}
	height, err := types.DecodeBlockHeight(heightBytes)
	if err != nil {
		return nil, ErrDecode{What: "block height pointer", Err: err}
	}

	var (
		root      *merkle.Root
		store     *merkle.Store
		hash      *types.BlockHash
		subspaces = make(map[types.Address]types.Subspace)
	)

	itr, err := s.db.Iterator(calcHeightPrefix(height), calcHeightPrefix(height.Next()))
	if err != nil {
		return nil, fmt.Errorf("scanning height %v: %w", height, err)
	}
	defer itr.Close()

	for ; itr.Valid(); itr.Next() {
		if !utf8.Valid(itr.Key()) {
			return nil, ErrDecode{
				What: "key path",
				Err:  fmt.Errorf("cannot convert %q from bytes to string", itr.Key()),
			}
		}
		path := string(itr.Key())

		key, err := parseBlockKey(path)
		if err != nil {
			return nil, err
		}

		switch key.kind {
		case blockKeyRoot:
			r, err := merkle.RootFromBytes(itr.Value())
			if err != nil {
				return nil, ErrDecode{What: "merkle root", Err: err}
			}
			root = &r

		case blockKeyStore:
			st, err := merkle.DecodeStore(itr.Value())
			if err != nil {
				return nil, ErrDecode{What: "merkle store", Err: err}
			}
			store = st

		case blockKeyHash:
			h, err := types.BlockHashFromBytes(itr.Value())
			if err != nil {
				return nil, ErrDecode{What: "block hash", Err: err}
			}
			hash = &h

		case blockKeySubspace:
			subspace, ok := subspaces[key.addr]
			if !ok {
				subspace = types.Subspace{}
				subspaces[key.addr] = subspace
			}
			subspace[key.column] = append([]byte(nil), itr.Value()...)
		}
	}
	if err := itr.Error(); err != nil {
		return nil, fmt.Errorf("scanning height %v: %w", height, err)
	}

	if root == nil || store == nil || hash == nil {
		return nil, ErrEssentialDataMissing{Height: height}
	}

	block := &Block{
		ChainID:   string(chainIDBytes),
		Tree:      merkle.TreeFromParts(*root, store),
		Hash:      *hash,
		Height:    height,
		Subspaces: subspaces,
	}

	s.mtx.Lock()
	s.height = height
	s.chainID = block.ChainID
	s.mtx.Unlock()

	s.logger.Info("recovered last committed block", "height", height, "chain_id", block.ChainID)
	return block, nil
}

// Flush blocks until the engine has persisted all pending writes. Exposed
// for controlled shutdown.
func (s *Store) Flush() error {
	defer s.metrics.observe("flush", time.Now())
	return s.db.Flush()
}

// Close closes the underlying engine. The store must not be used afterwards.
func (s *Store) Close() error {
	return s.db.Close()
}
