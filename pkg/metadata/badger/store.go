package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/stashd/stashd/pkg/metadata"
)

// schemaVersion is written to the database on first open. A future release
// that changes the key layout bumps this and migrates on startup.
const schemaVersion = "1"

// upsertRetries bounds the automatic retry of convergent upserts that lose a
// BadgerDB optimistic-concurrency race.
const upsertRetries = 3

// Store implements metadata.Store using BadgerDB for persistence.
//
// This implementation provides a persistent metadata repository backed by
// BadgerDB, a fast embedded key-value store. It is suitable for:
//   - Production environments requiring persistence across restarts
//   - Systems where directory trees and file records must survive crashes
//   - Multi-GB metadata storage requirements
//
// Key Features:
//   - Persistent storage with crash recovery (WAL-based)
//   - ACID transactions for the rename cascade and directory removal
//   - Efficient range scans over the sorted-by-path directory index
//
// Thread Safety:
// BadgerDB transactions use MVCC with optimistic concurrency control, so the
// store needs no locking of its own. Conflicting writers fail at commit with
// badger.ErrConflict; upserts retry internally, everything else surfaces a
// retryable ErrTransient to the caller.
//
// Storage Model:
// The store uses namespaced key prefixes to organize owners, directories,
// files, and their indexes (see keys.go for the schema documentation). The
// path-keyed directory namespace doubles as the sorted index that makes
// subtree scans a single range iteration.
type Store struct {
	// db is the BadgerDB database handle (thread-safe, uses internal MVCC)
	db *badger.DB
}

// Config contains configuration for creating a BadgerDB metadata store.
type Config struct {
	// DBPath is the directory where BadgerDB will store its files.
	// BadgerDB creates multiple files in this directory (value log, LSM tree, etc.)
	DBPath string `mapstructure:"db_path"`

	// InMemory runs BadgerDB without any on-disk state. Useful for tests that
	// want the real transaction semantics without a temp directory.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// NewStore opens (or creates) a BadgerDB-backed metadata store.
//
// The database directory is created if it does not exist. The returned store
// is immediately ready for use and safe for concurrent access from multiple
// goroutines.
//
// Parameters:
//   - ctx: Context for cancellation during initialization
//   - config: Configuration including the DB path and cache sizes
//
// Returns:
//   - *Store: A new store instance ready for use
//   - error: Error if database initialization fails or context is cancelled
func NewStore(ctx context.Context, config Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(config.DBPath)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	// Metadata rows are tiny and read-dominated: skip compression, keep the
	// caches modest.
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initializeSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// initializeSchema writes the schema version singleton on first open.
func (s *Store) initializeSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(keySchemaVersion())
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		return txn.Set(keySchemaVersion(), []byte(schemaVersion))
	})
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close metadata database: %w", err)
	}
	return nil
}

// Healthcheck verifies the database can serve a read.
func (s *Store) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(keySchemaVersion())
		return err
	})
	if err != nil {
		return &metadata.StoreError{
			Code:    metadata.ErrTransient,
			Message: fmt.Sprintf("metadata database unavailable: %v", err),
		}
	}
	return nil
}

// ============================================================================
// Owners
// ============================================================================

// EnsureOwner registers an owner id if it is not yet known and returns the
// record. Idempotent.
func (s *Store) EnsureOwner(ctx context.Context, ownerID string) (*metadata.Owner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := metadata.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	var owner *metadata.Owner
	err := s.update(func(txn *badger.Txn) error {
		data, err := getValue(txn, keyOwner(ownerID))
		if err == nil {
			owner, err = decodeOwner(data)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		owner = &metadata.Owner{ID: ownerID, CreatedAt: time.Now().UTC()}
		encoded, err := encodeJSON(owner)
		if err != nil {
			return err
		}
		return txn.Set(keyOwner(ownerID), encoded)
	})
	if err != nil {
		return nil, err
	}
	return owner, nil
}

// GetOwner returns the owner record, or ErrNotFound for unknown ids.
func (s *Store) GetOwner(ctx context.Context, ownerID string) (*metadata.Owner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := metadata.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	var owner *metadata.Owner
	err := s.view(func(txn *badger.Txn) error {
		data, err := getValue(txn, keyOwner(ownerID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errOwnerNotFound(ownerID)
		}
		if err != nil {
			return err
		}
		owner, err = decodeOwner(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return owner, nil
}

// ============================================================================
// Transaction plumbing
// ============================================================================

// update runs fn in a read-write transaction and maps backend failures to the
// domain error taxonomy.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	return mapBackendError(s.db.Update(fn))
}

// view runs fn in a read-only transaction.
func (s *Store) view(fn func(txn *badger.Txn) error) error {
	return mapBackendError(s.db.View(fn))
}

// updateWithRetry reruns fn when the commit loses an optimistic-concurrency
// race. Only convergent operations (upserts) use this; everything else
// surfaces the conflict as a retryable error and lets the caller decide.
func (s *Store) updateWithRetry(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < upsertRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return mapBackendError(err)
		}
	}
	return mapBackendError(err)
}

// mapBackendError normalizes transaction errors.
//
// Domain errors pass through untouched. Commit conflicts and any other
// BadgerDB failure become ErrTransient: no state changed and the caller may
// retry safely.
func mapBackendError(err error) error {
	if err == nil {
		return nil
	}
	var se *metadata.StoreError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, badger.ErrConflict) {
		return &metadata.StoreError{
			Code:    metadata.ErrTransient,
			Message: "metadata transaction conflict",
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &metadata.StoreError{
		Code:    metadata.ErrTransient,
		Message: fmt.Sprintf("metadata backend failure: %v", err),
	}
}

// ============================================================================
// Shared error constructors
// ============================================================================

func errOwnerNotFound(ownerID string) error {
	return &metadata.StoreError{
		Code:    metadata.ErrNotFound,
		Message: fmt.Sprintf("owner %q not found", ownerID),
	}
}

func errDirectoryNotFound(path string) error {
	return &metadata.StoreError{
		Code:    metadata.ErrNotFound,
		Message: "directory not found",
		Path:    path,
	}
}

func errFileNotFound(path string) error {
	return &metadata.StoreError{
		Code:    metadata.ErrNotFound,
		Message: "file not found",
		Path:    path,
	}
}
