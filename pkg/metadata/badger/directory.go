package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/stashd/stashd/pkg/metadata"
)

// ============================================================================
// Directory operations
// ============================================================================

// UpsertDirectory creates a directory at fullPath for the owner, or returns
// the existing one.
//
// The operation is convergent: concurrent calls for the same path race on the
// BadgerDB commit, the loser retries and observes the winner's row, and both
// callers end up with the same directory id. When the directory already
// exists and defaults is non-nil the defaults are applied to the existing
// row; otherwise an existing row is left untouched.
//
// Parameters:
//   - ctx: Context for cancellation
//   - ownerID: The owning principal
//   - fullPath: Normalized absolute path ("/" creates the root)
//   - parentID: Id of the already-materialized parent (nil only for the root)
//   - defaults: Optional permission/retention defaults for the directory
//
// Returns:
//   - *metadata.Directory: The created or existing directory
//   - error: ErrNotFound when the owner or parent does not resolve,
//     ErrConflict when a file occupies fullPath, ErrValidation for malformed
//     input
func (s *Store) UpsertDirectory(ctx context.Context, ownerID, fullPath string, parentID *uuid.UUID, defaults *metadata.DirectoryDefaults) (*metadata.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := metadata.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}
	path, err := metadata.NormalizePath(fullPath)
	if err != nil {
		return nil, err
	}

	var dir *metadata.Directory
	err = s.updateWithRetry(func(txn *badger.Txn) error {
		if _, err := getValue(txn, keyOwner(ownerID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return errOwnerNotFound(ownerID)
			}
			return err
		}

		// Existing row wins; only explicit defaults touch it.
		data, err := getValue(txn, keyDirPath(ownerID, path))
		if err == nil {
			existing, err := decodeDirectory(data)
			if err != nil {
				return err
			}
			if defaults != nil {
				applyDefaults(existing, defaults)
				existing.UpdatedAt = time.Now().UTC()
				if err := putDirectory(txn, existing); err != nil {
					return err
				}
			}
			dir = existing
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		// A file at the same path blocks directory creation.
		if _, err := txn.Get(keyFilePath(ownerID, path)); err == nil {
			return &metadata.StoreError{
				Code:    metadata.ErrConflict,
				Message: "a file already occupies this path",
				Path:    path,
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		var resolvedParent *uuid.UUID
		if path != metadata.RootPath {
			if parentID == nil {
				return &metadata.StoreError{
					Code:    metadata.ErrValidation,
					Message: "parent id required for non-root directories",
					Path:    path,
				}
			}
			parent, err := getDirectoryByID(txn, ownerID, *parentID)
			if err != nil {
				return err
			}
			parentPath, _ := metadata.SplitPath(path)
			if parent.FullPath != parentPath {
				return &metadata.StoreError{
					Code:    metadata.ErrInvalidOperation,
					Message: fmt.Sprintf("parent directory is %q, expected %q", parent.FullPath, parentPath),
					Path:    path,
				}
			}
			id := parent.ID
			resolvedParent = &id
		}

		now := time.Now().UTC()
		created := &metadata.Directory{
			ID:                 uuid.New(),
			OwnerID:            ownerID,
			FullPath:           path,
			ParentID:           resolvedParent,
			DefaultPermissions: metadata.PermissionPrivate,
			DefaultRetention:   metadata.RetentionInfinite,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if defaults != nil {
			applyDefaults(created, defaults)
		}
		if err := putDirectory(txn, created); err != nil {
			return err
		}
		dir = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

// GetDirectory returns the directory by id, owner-scoped.
func (s *Store) GetDirectory(ctx context.Context, ownerID string, id uuid.UUID) (*metadata.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var dir *metadata.Directory
	err := s.view(func(txn *badger.Txn) error {
		var err error
		dir, err = getDirectoryByID(txn, ownerID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

// GetDirectoryByPath returns the directory at the normalized fullPath.
func (s *Store) GetDirectoryByPath(ctx context.Context, ownerID, fullPath string) (*metadata.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := metadata.NormalizePath(fullPath)
	if err != nil {
		return nil, err
	}

	var dir *metadata.Directory
	err = s.view(func(txn *badger.Txn) error {
		data, err := getValue(txn, keyDirPath(ownerID, path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errDirectoryNotFound(path)
		}
		if err != nil {
			return err
		}
		dir, err = decodeDirectory(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

// ListDirectories returns directories matching the filter, ordered by
// FullPath.
//
// BadgerDB iterates keys in lexicographic order and the directory namespace
// is keyed by path, so results come back sorted without an extra pass.
func (s *Store) ListDirectories(ctx context.Context, ownerID string, filter metadata.DirectoryFilter) ([]*metadata.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := metadata.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	var dirs []*metadata.Directory
	err := s.view(func(txn *badger.Txn) error {
		switch {
		case filter.ParentID != nil:
			parent, err := getDirectoryByID(txn, ownerID, *filter.ParentID)
			if err != nil {
				return err
			}
			return scanDirectories(txn, keyDirSubtreePrefix(ownerID, parent.FullPath), func(d *metadata.Directory) {
				if d.ParentID != nil && *d.ParentID == parent.ID {
					dirs = append(dirs, d)
				}
			})

		case filter.Path != "":
			path, err := metadata.NormalizePath(filter.Path)
			if err != nil {
				return err
			}
			if data, err := getValue(txn, keyDirPath(ownerID, path)); err == nil {
				d, err := decodeDirectory(data)
				if err != nil {
					return err
				}
				dirs = append(dirs, d)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if !filter.Recursive {
				return nil
			}
			// The root's own key equals its subtree prefix, so the scan would
			// hand back the directory the exact lookup already added.
			return scanDirectories(txn, keyDirSubtreePrefix(ownerID, path), func(d *metadata.Directory) {
				if d.FullPath == path {
					return
				}
				dirs = append(dirs, d)
			})

		default:
			return scanDirectories(txn, []byte(prefixDirPath+ownerID+":"), func(d *metadata.Directory) {
				dirs = append(dirs, d)
			})
		}
	})
	if err != nil {
		return nil, err
	}
	return dirs, nil
}

// RenameDirectory moves the directory to newFullPath and rewrites the path
// prefix of every descendant directory and file in the same transaction.
//
// Sequence inside the transaction:
//  1. Resolve the directory and re-validate: root is unrenamable, the target
//     must not lie inside the moved subtree, and nothing else may occupy the
//     target path.
//  2. Resolve the new parent row (the caller materializes it beforehand).
//  3. Rewrite every descendant directory key, its id mapping, and every
//     descendant file's record and path index entry.
//  4. Rewrite the moved directory itself.
//
// Because all of it commits atomically, a concurrent rename of an ancestor
// either sees the whole move or none of it. Renaming to the current path is
// a no-op.
//
// Returns:
//   - *metadata.Directory: The directory with its new path and parent
//   - error: ErrInvalidOperation for the root or a cycle, ErrConflict when
//     the target path is taken, ErrNotFound when the id or the new parent
//     does not resolve
func (s *Store) RenameDirectory(ctx context.Context, ownerID string, id uuid.UUID, newFullPath string) (*metadata.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	newPath, err := metadata.NormalizePath(newFullPath)
	if err != nil {
		return nil, err
	}
	if newPath == metadata.RootPath {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidOperation,
			Message: "cannot rename a directory to the root path",
		}
	}

	var renamed *metadata.Directory
	err = s.update(func(txn *badger.Txn) error {
		dir, err := getDirectoryByID(txn, ownerID, id)
		if err != nil {
			return err
		}
		if dir.IsRoot() {
			return &metadata.StoreError{
				Code:    metadata.ErrInvalidOperation,
				Message: "the root directory cannot be renamed",
			}
		}

		oldPath := dir.FullPath
		if newPath == oldPath {
			renamed = dir
			return nil
		}
		if metadata.IsPathDescendant(oldPath, newPath) {
			return &metadata.StoreError{
				Code:    metadata.ErrInvalidOperation,
				Message: "cannot move a directory into its own subtree",
				Path:    newPath,
			}
		}
		if err := ensurePathFree(txn, ownerID, newPath); err != nil {
			return err
		}

		newParentPath, _ := metadata.SplitPath(newPath)
		newParentData, err := getValue(txn, keyDirPath(ownerID, newParentPath))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errDirectoryNotFound(newParentPath)
		}
		if err != nil {
			return err
		}
		newParent, err := decodeDirectory(newParentData)
		if err != nil {
			return err
		}

		// Collect the subtree before mutating: BadgerDB iterators must not
		// observe the writes of their own transaction mid-scan.
		var descendants []*metadata.Directory
		if err := scanDirectories(txn, keyDirSubtreePrefix(ownerID, oldPath), func(d *metadata.Directory) {
			descendants = append(descendants, d)
		}); err != nil {
			return err
		}
		var files []*metadata.File
		if err := scanFilesByPath(txn, keyFileSubtreePrefix(ownerID, oldPath), func(f *metadata.File) {
			files = append(files, f)
		}); err != nil {
			return err
		}

		for _, d := range descendants {
			if err := txn.Delete(keyDirPath(ownerID, d.FullPath)); err != nil {
				return err
			}
			d.FullPath = metadata.ReplacePathPrefix(d.FullPath, oldPath, newPath)
			if err := putDirectory(txn, d); err != nil {
				return err
			}
		}
		for _, f := range files {
			if err := txn.Delete(keyFilePath(ownerID, f.FullPath)); err != nil {
				return err
			}
			f.FullPath = metadata.ReplacePathPrefix(f.FullPath, oldPath, newPath)
			encoded, err := encodeJSON(f)
			if err != nil {
				return err
			}
			if err := txn.Set(keyFile(f.ID), encoded); err != nil {
				return err
			}
			if err := txn.Set(keyFilePath(ownerID, f.FullPath), encodeFileID(f.ID)); err != nil {
				return err
			}
		}

		if err := txn.Delete(keyDirPath(ownerID, oldPath)); err != nil {
			return err
		}
		parentID := newParent.ID
		dir.FullPath = newPath
		dir.ParentID = &parentID
		dir.UpdatedAt = time.Now().UTC()
		if err := putDirectory(txn, dir); err != nil {
			return err
		}

		renamed = dir
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

// RemoveDirectory deletes the directory and, in the same transaction, every
// file directly inside it.
//
// Child directories block the removal (ErrNotEmpty); the root cannot be
// removed. The deleted file rows are returned so the caller can run
// best-effort object cleanup after the commit.
func (s *Store) RemoveDirectory(ctx context.Context, ownerID string, id uuid.UUID) ([]*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var removed []*metadata.File
	err := s.update(func(txn *badger.Txn) error {
		dir, err := getDirectoryByID(txn, ownerID, id)
		if err != nil {
			return err
		}
		if dir.IsRoot() {
			return &metadata.StoreError{
				Code:    metadata.ErrInvalidOperation,
				Message: "the root directory cannot be removed",
			}
		}

		hasChildren, err := hasAnyKey(txn, keyDirSubtreePrefix(ownerID, dir.FullPath))
		if err != nil {
			return err
		}
		if hasChildren {
			return &metadata.StoreError{
				Code:    metadata.ErrNotEmpty,
				Message: "directory has child directories",
				Path:    dir.FullPath,
			}
		}

		var fileIDs []uuid.UUID
		if err := scanFileIDs(txn, keyDirFilesPrefix(dir.ID), func(fid uuid.UUID) {
			fileIDs = append(fileIDs, fid)
		}); err != nil {
			return err
		}
		for _, fid := range fileIDs {
			data, err := getValue(txn, keyFile(fid))
			if err != nil {
				return err
			}
			f, err := decodeFile(data)
			if err != nil {
				return err
			}
			if err := txn.Delete(keyFile(f.ID)); err != nil {
				return err
			}
			if err := txn.Delete(keyFilePath(ownerID, f.FullPath)); err != nil {
				return err
			}
			if err := txn.Delete(keyDirFile(dir.ID, f.Filename)); err != nil {
				return err
			}
			removed = append(removed, f)
		}

		if err := txn.Delete(keyDirPath(ownerID, dir.FullPath)); err != nil {
			return err
		}
		return txn.Delete(keyDirID(dir.ID))
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// ============================================================================
// Transaction helpers
// ============================================================================

// getDirectoryByID resolves a directory through its id mapping, enforcing
// owner scoping. Another owner's id behaves exactly like a missing id.
func getDirectoryByID(txn *badger.Txn, ownerID string, id uuid.UUID) (*metadata.Directory, error) {
	locData, err := getValue(txn, keyDirID(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errDirectoryNotFound("")
	}
	if err != nil {
		return nil, err
	}
	owner, path, err := decodeDirLocation(locData)
	if err != nil {
		return nil, err
	}
	if owner != ownerID {
		return nil, errDirectoryNotFound("")
	}

	data, err := getValue(txn, keyDirPath(owner, path))
	if err != nil {
		return nil, fmt.Errorf("directory id mapping points at missing record %q: %w", path, err)
	}
	return decodeDirectory(data)
}

// putDirectory writes the directory record and its id mapping.
func putDirectory(txn *badger.Txn, dir *metadata.Directory) error {
	encoded, err := encodeJSON(dir)
	if err != nil {
		return err
	}
	if err := txn.Set(keyDirPath(dir.OwnerID, dir.FullPath), encoded); err != nil {
		return err
	}
	return txn.Set(keyDirID(dir.ID), encodeDirLocation(dir.OwnerID, dir.FullPath))
}

// ensurePathFree returns ErrConflict when any directory or file occupies the
// path.
func ensurePathFree(txn *badger.Txn, ownerID, path string) error {
	if _, err := txn.Get(keyDirPath(ownerID, path)); err == nil {
		return &metadata.StoreError{
			Code:    metadata.ErrConflict,
			Message: "a directory already occupies this path",
			Path:    path,
		}
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	if _, err := txn.Get(keyFilePath(ownerID, path)); err == nil {
		return &metadata.StoreError{
			Code:    metadata.ErrConflict,
			Message: "a file already occupies this path",
			Path:    path,
		}
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return nil
}

// applyDefaults copies the non-empty default fields onto the directory.
func applyDefaults(dir *metadata.Directory, defaults *metadata.DirectoryDefaults) {
	if defaults.Permissions != "" {
		dir.DefaultPermissions = defaults.Permissions
	}
	if defaults.Retention != "" {
		dir.DefaultRetention = defaults.Retention
	}
}

// scanDirectories iterates every directory record under prefix in key order.
func scanDirectories(txn *badger.Txn, prefix []byte, visit func(*metadata.Directory)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		data, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		d, err := decodeDirectory(data)
		if err != nil {
			return err
		}
		visit(d)
	}
	return nil
}

// scanFilesByPath iterates the path index under prefix and loads each file
// record.
func scanFilesByPath(txn *badger.Txn, prefix []byte, visit func(*metadata.File)) error {
	var ids []uuid.UUID
	if err := scanFileIDs(txn, prefix, func(id uuid.UUID) {
		ids = append(ids, id)
	}); err != nil {
		return err
	}

	for _, id := range ids {
		data, err := getValue(txn, keyFile(id))
		if err != nil {
			return err
		}
		f, err := decodeFile(data)
		if err != nil {
			return err
		}
		visit(f)
	}
	return nil
}

// scanFileIDs iterates an index namespace and yields the file id stored in
// each entry.
func scanFileIDs(txn *badger.Txn, prefix []byte, visit func(uuid.UUID)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		data, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		id, err := decodeFileID(data)
		if err != nil {
			return err
		}
		visit(id)
	}
	return nil
}

// hasAnyKey reports whether any key exists under prefix.
func hasAnyKey(txn *badger.Txn, prefix []byte) (bool, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Rewind()
	return it.Valid(), nil
}
