package registry

import (
	"context"

	"github.com/google/uuid"

	"github.com/stashd/stashd/internal/logger"
	"github.com/stashd/stashd/pkg/metadata"
)

// Listing is one directory with its immediate contents.
type Listing struct {
	Directory      *metadata.Directory   `json:"directory"`
	Subdirectories []*metadata.Directory `json:"subdirectories"`
	Files          []*metadata.File      `json:"files"`
}

// EnsurePath materializes every directory along path, root first, and
// returns the leaf.
//
// Repeating the call with the same path is idempotent and returns the same
// directory ids; concurrent calls converge on the store's upsert. The
// optional defaults apply to the leaf only, so ensuring "/a/b/c" never
// rewrites the defaults of "/a" or "/a/b".
func (r *Registry) EnsurePath(ctx context.Context, ownerID, path string, defaults *metadata.DirectoryDefaults) (*metadata.Directory, error) {
	normalized, err := metadata.NormalizePath(path)
	if err != nil {
		return nil, err
	}

	current, err := r.store.UpsertDirectory(ctx, ownerID, metadata.RootPath, nil, nil)
	if err != nil {
		return nil, err
	}
	if normalized == metadata.RootPath {
		return current, nil
	}

	prefixes := metadata.PathPrefixes(normalized)
	for i, prefix := range prefixes {
		var leafDefaults *metadata.DirectoryDefaults
		if i == len(prefixes)-1 {
			leafDefaults = defaults
		}
		parentID := current.ID
		next, err := r.store.UpsertDirectory(ctx, ownerID, prefix, &parentID, leafDefaults)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// GetDirectory returns the directory by id.
func (r *Registry) GetDirectory(ctx context.Context, ownerID string, id uuid.UUID) (*metadata.Directory, error) {
	return r.store.GetDirectory(ctx, ownerID, id)
}

// GetDirectoryByPath returns the directory at path.
func (r *Registry) GetDirectoryByPath(ctx context.Context, ownerID, path string) (*metadata.Directory, error) {
	return r.store.GetDirectoryByPath(ctx, ownerID, path)
}

// ListDirectory returns the directory at path together with its immediate
// subdirectories and files.
func (r *Registry) ListDirectory(ctx context.Context, ownerID, path string) (*Listing, error) {
	dir, err := r.store.GetDirectoryByPath(ctx, ownerID, path)
	if err != nil {
		return nil, err
	}

	dirID := dir.ID
	subdirs, err := r.store.ListDirectories(ctx, ownerID, metadata.DirectoryFilter{ParentID: &dirID})
	if err != nil {
		return nil, err
	}
	files, err := r.store.ListFilesByDirectory(ctx, ownerID, dir.ID)
	if err != nil {
		return nil, err
	}

	return &Listing{Directory: dir, Subdirectories: subdirs, Files: files}, nil
}

// ListSubtree returns every directory under path (path included), ordered by
// FullPath.
func (r *Registry) ListSubtree(ctx context.Context, ownerID, path string) ([]*metadata.Directory, error) {
	return r.store.ListDirectories(ctx, ownerID, metadata.DirectoryFilter{Path: path, Recursive: true})
}

// RenameDirectory moves a directory (and its whole subtree) to newPath.
//
// The new parent chain is materialized first, then the store performs the
// rename cascade in one transaction. The cycle check runs before
// materialization so that a rename into the moved subtree cannot create
// stray parent directories inside it.
func (r *Registry) RenameDirectory(ctx context.Context, ownerID string, id uuid.UUID, newPath string) (*metadata.Directory, error) {
	normalized, err := metadata.NormalizePath(newPath)
	if err != nil {
		return nil, err
	}

	dir, err := r.store.GetDirectory(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if normalized == dir.FullPath {
		return dir, nil
	}
	if metadata.IsPathDescendant(dir.FullPath, normalized) {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidOperation,
			Message: "cannot move a directory into its own subtree",
			Path:    normalized,
		}
	}

	parentPath, _ := metadata.SplitPath(normalized)
	if _, err := r.EnsurePath(ctx, ownerID, parentPath, nil); err != nil {
		return nil, err
	}

	renamed, err := r.store.RenameDirectory(ctx, ownerID, id, normalized)
	if err != nil {
		return nil, err
	}
	logger.Info("renamed directory %s: %s -> %s (owner %s)", id, dir.FullPath, renamed.FullPath, ownerID)
	return renamed, nil
}

// DeleteDirectory removes an empty-of-subdirectories directory together with
// the files directly inside it, returning how many files went with it.
//
// The metadata transaction commits first; object removals run in the
// background afterwards and never fail the call.
func (r *Registry) DeleteDirectory(ctx context.Context, ownerID string, id uuid.UUID) (int, error) {
	removed, err := r.store.RemoveDirectory(ctx, ownerID, id)
	if err != nil {
		return 0, err
	}

	var keys []string
	for _, f := range removed {
		if f.ObjectKey != "" {
			keys = append(keys, f.ObjectKey)
		}
	}
	r.cleanup.enqueue(keys)

	logger.Info("deleted directory %s with %d files (owner %s)", id, len(removed), ownerID)
	return len(removed), nil
}
