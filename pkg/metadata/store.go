package metadata

import (
	"context"

	"github.com/google/uuid"
)

// Store provides owner-scoped metadata persistence for the directory tree
// and file records.
//
// Separation of Concerns:
//
// The store manages structure and metadata (paths, parent links, file rows,
// lifecycle state) but never file content. Content lives in an external
// object store addressed by each file's ObjectKey; the lifecycle layer
// coordinates the two.
//
// Every operation is scoped to one owner. Cross-owner access is structurally
// impossible: an id belonging to another owner behaves exactly like a missing
// id (ErrNotFound), so probing cannot leak existence.
//
// Atomicity:
//
// Implementations MUST execute RenameDirectory (the self-update plus both
// bulk prefix rewrites) and RemoveDirectory (file bulk delete plus directory
// delete) as single transactional units. A crash mid-sequence must never
// leave files referencing a vanished directory or carrying a stale path
// prefix. UpsertDirectory must be a convergent upsert: two concurrent calls
// for the same path both succeed and observe the same directory id.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// ========================================================================
	// Owners
	// ========================================================================

	// EnsureOwner registers an owner id if it is not yet known and returns
	// the record. Idempotent.
	//
	// Returns ErrValidation when the id is empty or contains characters that
	// cannot be embedded in object keys.
	EnsureOwner(ctx context.Context, ownerID string) (*Owner, error)

	// GetOwner returns the owner record, or ErrNotFound for unknown ids.
	GetOwner(ctx context.Context, ownerID string) (*Owner, error)

	// ========================================================================
	// Directories
	// ========================================================================

	// UpsertDirectory creates a directory at fullPath for the owner, or
	// returns the existing one untouched.
	//
	// The caller supplies the already-materialized parent's id (nil only for
	// the root path "/"). When the directory already exists and defaults is
	// non-nil, the defaults are applied to the existing row; otherwise an
	// existing row is left untouched. This makes repeated path creation
	// idempotent and convergent under concurrency.
	//
	// Returns:
	//   - *Directory: The created or existing directory
	//   - error: ErrValidation for malformed paths, ErrNotFound when parentID
	//     does not resolve for this owner, or ErrTransient for backend failures
	UpsertDirectory(ctx context.Context, ownerID, fullPath string, parentID *uuid.UUID, defaults *DirectoryDefaults) (*Directory, error)

	// GetDirectory returns the directory by id, owner-scoped.
	GetDirectory(ctx context.Context, ownerID string, id uuid.UUID) (*Directory, error)

	// GetDirectoryByPath returns the directory at the normalized fullPath.
	GetDirectoryByPath(ctx context.Context, ownerID, fullPath string) (*Directory, error)

	// ListDirectories returns directories matching the filter, ordered by
	// FullPath.
	ListDirectories(ctx context.Context, ownerID string, filter DirectoryFilter) ([]*Directory, error)

	// RenameDirectory moves the directory to newFullPath and rewrites the
	// path prefix of every descendant directory and file in the same
	// transaction.
	//
	// The caller must have materialized the new parent path first. The
	// target-collision check (ErrConflict when a different directory already
	// occupies newFullPath) and the cycle check (ErrInvalidOperation when
	// newFullPath lies inside the moved subtree) are re-validated inside the
	// transaction, so concurrent renames lose cleanly instead of corrupting
	// paths.
	//
	// Renaming to the directory's current path is a no-op. The root cannot
	// be renamed (ErrInvalidOperation).
	RenameDirectory(ctx context.Context, ownerID string, id uuid.UUID, newFullPath string) (*Directory, error)

	// RemoveDirectory deletes the directory and, in the same transaction,
	// every file directly inside it.
	//
	// Returns the removed file rows so the caller can run best-effort object
	// cleanup after the transaction commits.
	//
	// Returns:
	//   - []*File: Files deleted together with the directory
	//   - error: ErrNotEmpty when child directories exist, ErrInvalidOperation
	//     for the root, ErrNotFound when the id does not resolve for this owner
	RemoveDirectory(ctx context.Context, ownerID string, id uuid.UUID) ([]*File, error)

	// ========================================================================
	// Files
	// ========================================================================

	// PutFile inserts a new file row.
	//
	// Returns ErrConflict when a file already occupies file.FullPath for this
	// owner, and ErrNotFound when file.DirectoryID does not resolve.
	PutFile(ctx context.Context, file *File) error

	// GetFile returns the file by id, owner-scoped.
	GetFile(ctx context.Context, ownerID string, id uuid.UUID) (*File, error)

	// GetFileByPath returns the file at the normalized fullPath.
	GetFileByPath(ctx context.Context, ownerID, fullPath string) (*File, error)

	// ListFilesByDirectory returns the files directly inside the directory,
	// ordered by filename.
	ListFilesByDirectory(ctx context.Context, ownerID string, directoryID uuid.UUID) ([]*File, error)

	// UpdateFile applies mutate to the current row inside a transaction and
	// persists the result.
	//
	// When mutate changes FullPath/DirectoryID/Filename the path and
	// directory indexes move with it; a collision at the new path is
	// ErrConflict. Errors returned by mutate abort the update unchanged.
	UpdateFile(ctx context.Context, ownerID string, id uuid.UUID, mutate func(*File) error) (*File, error)

	// DeleteFile removes the file row and returns it, so the caller can run
	// best-effort object cleanup afterwards.
	DeleteFile(ctx context.Context, ownerID string, id uuid.UUID) (*File, error)

	// ========================================================================
	// Health & lifecycle
	// ========================================================================

	// Healthcheck verifies the store can serve requests. Fast, read-only.
	Healthcheck(ctx context.Context) error

	// Close releases underlying resources. The store must not be used after
	// Close returns.
	Close() error
}
