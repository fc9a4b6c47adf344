// Package memory provides an in-memory metadata.Store implementation.
//
// All state lives in maps guarded by a single read-write mutex, which makes
// the multi-step operations (rename cascade, directory removal) trivially
// atomic. Nothing survives a restart; the store exists for tests and for
// local development where persistence is noise.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stashd/stashd/pkg/metadata"
)

// Store implements metadata.Store with plain maps.
//
// Records are copied on the way in and out, so callers can never alias
// internal state.
type Store struct {
	mu sync.RWMutex

	owners map[string]*metadata.Owner

	// dirsByPath holds the primary directory records: owner -> path -> dir.
	dirsByPath map[string]map[string]*metadata.Directory
	dirsByID   map[uuid.UUID]*metadata.Directory

	filesByID map[uuid.UUID]*metadata.File

	// filesByPath indexes file ids by owner -> full path.
	filesByPath map[string]map[string]uuid.UUID

	// filesByDir indexes file ids by directory -> filename.
	filesByDir map[uuid.UUID]map[string]uuid.UUID

	closed bool
}

// NewStore creates an empty in-memory metadata store.
func NewStore() *Store {
	return &Store{
		owners:      make(map[string]*metadata.Owner),
		dirsByPath:  make(map[string]map[string]*metadata.Directory),
		dirsByID:    make(map[uuid.UUID]*metadata.Directory),
		filesByID:   make(map[uuid.UUID]*metadata.File),
		filesByPath: make(map[string]map[string]uuid.UUID),
		filesByDir:  make(map[uuid.UUID]map[string]uuid.UUID),
	}
}

// ============================================================================
// Owners
// ============================================================================

// EnsureOwner registers an owner id if it is not yet known. Idempotent.
func (s *Store) EnsureOwner(ctx context.Context, ownerID string) (*metadata.Owner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := metadata.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.owners[ownerID]; ok {
		return copyOwner(owner), nil
	}
	owner := &metadata.Owner{ID: ownerID, CreatedAt: time.Now().UTC()}
	s.owners[ownerID] = owner
	return copyOwner(owner), nil
}

// GetOwner returns the owner record, or ErrNotFound for unknown ids.
func (s *Store) GetOwner(ctx context.Context, ownerID string) (*metadata.Owner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := metadata.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.owners[ownerID]
	if !ok {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrNotFound,
			Message: fmt.Sprintf("owner %q not found", ownerID),
		}
	}
	return copyOwner(owner), nil
}

// ============================================================================
// Directories
// ============================================================================

// UpsertDirectory creates a directory at fullPath, or returns the existing
// one. When the directory exists and defaults is non-nil the defaults are
// applied; otherwise an existing row is untouched.
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.owners[ownerID]; !ok {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrNotFound,
			Message: fmt.Sprintf("owner %q not found", ownerID),
		}
	}

	if existing, ok := s.dirsByPath[ownerID][path]; ok {
		if defaults != nil {
			applyDefaults(existing, defaults)
			existing.UpdatedAt = time.Now().UTC()
		}
		return copyDirectory(existing), nil
	}
	if _, ok := s.filesByPath[ownerID][path]; ok {
		return nil, errPathTakenByFile(path)
	}

	var resolvedParent *uuid.UUID
	if path != metadata.RootPath {
		if parentID == nil {
			return nil, &metadata.StoreError{
				Code:    metadata.ErrValidation,
				Message: "parent id required for non-root directories",
				Path:    path,
			}
		}
		parent, err := s.directoryByID(ownerID, *parentID)
		if err != nil {
			return nil, err
		}
		parentPath, _ := metadata.SplitPath(path)
		if parent.FullPath != parentPath {
			return nil, &metadata.StoreError{
				Code:    metadata.ErrInvalidOperation,
				Message: fmt.Sprintf("parent directory is %q, expected %q", parent.FullPath, parentPath),
				Path:    path,
			}
		}
		id := parent.ID
		resolvedParent = &id
	}

	now := time.Now().UTC()
	dir := &metadata.Directory{
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
		applyDefaults(dir, defaults)
	}
	if s.dirsByPath[ownerID] == nil {
		s.dirsByPath[ownerID] = make(map[string]*metadata.Directory)
	}
	s.dirsByPath[ownerID][path] = dir
	s.dirsByID[dir.ID] = dir
	return copyDirectory(dir), nil
}

// GetDirectory returns the directory by id, owner-scoped.
func (s *Store) GetDirectory(ctx context.Context, ownerID string, id uuid.UUID) (*metadata.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dir, err := s.directoryByID(ownerID, id)
	if err != nil {
		return nil, err
	}
	return copyDirectory(dir), nil
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

	s.mu.RLock()
	defer s.mu.RUnlock()

	dir, ok := s.dirsByPath[ownerID][path]
	if !ok {
		return nil, errDirNotFound(path)
	}
	return copyDirectory(dir), nil
}

// ListDirectories returns directories matching the filter, ordered by
// FullPath.
func (s *Store) ListDirectories(ctx context.Context, ownerID string, filter metadata.DirectoryFilter) ([]*metadata.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := metadata.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var dirs []*metadata.Directory
	switch {
	case filter.ParentID != nil:
		parent, err := s.directoryByID(ownerID, *filter.ParentID)
		if err != nil {
			return nil, err
		}
		for _, d := range s.dirsByPath[ownerID] {
			if d.ParentID != nil && *d.ParentID == parent.ID {
				dirs = append(dirs, copyDirectory(d))
			}
		}

	case filter.Path != "":
		path, err := metadata.NormalizePath(filter.Path)
		if err != nil {
			return nil, err
		}
		for _, d := range s.dirsByPath[ownerID] {
			if d.FullPath == path || (filter.Recursive && metadata.IsPathDescendant(path, d.FullPath)) {
				dirs = append(dirs, copyDirectory(d))
			}
		}

	default:
		for _, d := range s.dirsByPath[ownerID] {
			dirs = append(dirs, copyDirectory(d))
		}
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].FullPath < dirs[j].FullPath })
	return dirs, nil
}

// RenameDirectory moves the directory to newFullPath and rewrites every
// descendant path under the lock, so the cascade is atomic.
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

	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.directoryByID(ownerID, id)
	if err != nil {
		return nil, err
	}
	if dir.IsRoot() {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidOperation,
			Message: "the root directory cannot be renamed",
		}
	}

	oldPath := dir.FullPath
	if newPath == oldPath {
		return copyDirectory(dir), nil
	}
	if metadata.IsPathDescendant(oldPath, newPath) {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidOperation,
			Message: "cannot move a directory into its own subtree",
			Path:    newPath,
		}
	}
	if _, ok := s.dirsByPath[ownerID][newPath]; ok {
		return nil, errPathTakenByDir(newPath)
	}
	if _, ok := s.filesByPath[ownerID][newPath]; ok {
		return nil, errPathTakenByFile(newPath)
	}

	newParentPath, _ := metadata.SplitPath(newPath)
	newParent, ok := s.dirsByPath[ownerID][newParentPath]
	if !ok {
		return nil, errDirNotFound(newParentPath)
	}

	// Rewrite descendants first, then the directory itself.
	for path, d := range s.dirsByPath[ownerID] {
		if !metadata.IsPathDescendant(oldPath, path) {
			continue
		}
		delete(s.dirsByPath[ownerID], path)
		d.FullPath = metadata.ReplacePathPrefix(path, oldPath, newPath)
		s.dirsByPath[ownerID][d.FullPath] = d
	}
	for path, fid := range s.filesByPath[ownerID] {
		if !metadata.IsPathDescendant(oldPath, path) {
			continue
		}
		delete(s.filesByPath[ownerID], path)
		f := s.filesByID[fid]
		f.FullPath = metadata.ReplacePathPrefix(path, oldPath, newPath)
		s.filesByPath[ownerID][f.FullPath] = fid
	}

	delete(s.dirsByPath[ownerID], oldPath)
	parentID := newParent.ID
	dir.FullPath = newPath
	dir.ParentID = &parentID
	dir.UpdatedAt = time.Now().UTC()
	s.dirsByPath[ownerID][newPath] = dir

	return copyDirectory(dir), nil
}

// RemoveDirectory deletes the directory and every file directly inside it,
// returning the deleted file rows.
func (s *Store) RemoveDirectory(ctx context.Context, ownerID string, id uuid.UUID) ([]*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.directoryByID(ownerID, id)
	if err != nil {
		return nil, err
	}
	if dir.IsRoot() {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidOperation,
			Message: "the root directory cannot be removed",
		}
	}
	for path := range s.dirsByPath[ownerID] {
		if metadata.IsPathDescendant(dir.FullPath, path) {
			return nil, &metadata.StoreError{
				Code:    metadata.ErrNotEmpty,
				Message: "directory has child directories",
				Path:    dir.FullPath,
			}
		}
	}

	var removed []*metadata.File
	for _, fid := range s.filesByDir[dir.ID] {
		f := s.filesByID[fid]
		delete(s.filesByID, fid)
		delete(s.filesByPath[ownerID], f.FullPath)
		removed = append(removed, copyFile(f))
	}
	delete(s.filesByDir, dir.ID)
	delete(s.dirsByPath[ownerID], dir.FullPath)
	delete(s.dirsByID, dir.ID)

	sort.Slice(removed, func(i, j int) bool { return removed[i].Filename < removed[j].Filename })
	return removed, nil
}

// ============================================================================
// Files
// ============================================================================

// PutFile inserts a new file row.
func (s *Store) PutFile(ctx context.Context, file *metadata.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := metadata.ValidateOwnerID(file.OwnerID); err != nil {
		return err
	}
	if err := metadata.ValidateFilename(file.Filename); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.directoryByID(file.OwnerID, file.DirectoryID)
	if err != nil {
		return err
	}
	if expected := metadata.JoinPath(dir.FullPath, file.Filename); file.FullPath != expected {
		return &metadata.StoreError{
			Code:    metadata.ErrValidation,
			Message: "file path does not match its directory and filename",
			Path:    file.FullPath,
		}
	}
	if _, ok := s.filesByPath[file.OwnerID][file.FullPath]; ok {
		return errPathTakenByFile(file.FullPath)
	}
	if _, ok := s.dirsByPath[file.OwnerID][file.FullPath]; ok {
		return errPathTakenByDir(file.FullPath)
	}

	stored := copyFile(file)
	s.filesByID[stored.ID] = stored
	if s.filesByPath[file.OwnerID] == nil {
		s.filesByPath[file.OwnerID] = make(map[string]uuid.UUID)
	}
	s.filesByPath[file.OwnerID][stored.FullPath] = stored.ID
	if s.filesByDir[dir.ID] == nil {
		s.filesByDir[dir.ID] = make(map[string]uuid.UUID)
	}
	s.filesByDir[dir.ID][stored.Filename] = stored.ID
	return nil
}

// GetFile returns the file by id, owner-scoped.
func (s *Store) GetFile(ctx context.Context, ownerID string, id uuid.UUID) (*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.fileByID(ownerID, id)
	if err != nil {
		return nil, err
	}
	return copyFile(f), nil
}

// GetFileByPath returns the file at the normalized fullPath.
func (s *Store) GetFileByPath(ctx context.Context, ownerID, fullPath string) (*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := metadata.NormalizePath(fullPath)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	fid, ok := s.filesByPath[ownerID][path]
	if !ok {
		return nil, errFileNotFoundAt(path)
	}
	return copyFile(s.filesByID[fid]), nil
}

// ListFilesByDirectory returns the files directly inside the directory,
// ordered by filename.
func (s *Store) ListFilesByDirectory(ctx context.Context, ownerID string, directoryID uuid.UUID) ([]*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dir, err := s.directoryByID(ownerID, directoryID)
	if err != nil {
		return nil, err
	}

	var files []*metadata.File
	for _, fid := range s.filesByDir[dir.ID] {
		files = append(files, copyFile(s.filesByID[fid]))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	return files, nil
}

// UpdateFile applies mutate to a copy of the current row and persists the
// result, moving index entries when the path changed.
func (s *Store) UpdateFile(ctx context.Context, ownerID string, id uuid.UUID, mutate func(*metadata.File) error) (*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.fileByID(ownerID, id)
	if err != nil {
		return nil, err
	}

	next := copyFile(current)
	if err := mutate(next); err != nil {
		return nil, err
	}
	if next.ID != current.ID || next.OwnerID != current.OwnerID {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidOperation,
			Message: "file identity cannot be changed",
			Path:    current.FullPath,
		}
	}
	if current.ObjectKey != "" && next.ObjectKey != current.ObjectKey {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidOperation,
			Message: "object key is immutable once assigned",
			Path:    current.FullPath,
		}
	}
	if err := metadata.ValidateFilename(next.Filename); err != nil {
		return nil, err
	}

	moved := next.FullPath != current.FullPath ||
		next.DirectoryID != current.DirectoryID ||
		next.Filename != current.Filename
	if moved {
		dir, err := s.directoryByID(ownerID, next.DirectoryID)
		if err != nil {
			return nil, err
		}
		if expected := metadata.JoinPath(dir.FullPath, next.Filename); next.FullPath != expected {
			return nil, &metadata.StoreError{
				Code:    metadata.ErrValidation,
				Message: "file path does not match its directory and filename",
				Path:    next.FullPath,
			}
		}
		if next.FullPath != current.FullPath {
			if _, ok := s.filesByPath[ownerID][next.FullPath]; ok {
				return nil, errPathTakenByFile(next.FullPath)
			}
			if _, ok := s.dirsByPath[ownerID][next.FullPath]; ok {
				return nil, errPathTakenByDir(next.FullPath)
			}
		}
		delete(s.filesByPath[ownerID], current.FullPath)
		delete(s.filesByDir[current.DirectoryID], current.Filename)
		s.filesByPath[ownerID][next.FullPath] = next.ID
		if s.filesByDir[next.DirectoryID] == nil {
			s.filesByDir[next.DirectoryID] = make(map[string]uuid.UUID)
		}
		s.filesByDir[next.DirectoryID][next.Filename] = next.ID
	}

	next.UpdatedAt = time.Now().UTC()
	s.filesByID[next.ID] = next
	return copyFile(next), nil
}

// DeleteFile removes the file row and returns it.
func (s *Store) DeleteFile(ctx context.Context, ownerID string, id uuid.UUID) (*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileByID(ownerID, id)
	if err != nil {
		return nil, err
	}
	delete(s.filesByID, f.ID)
	delete(s.filesByPath[ownerID], f.FullPath)
	delete(s.filesByDir[f.DirectoryID], f.Filename)
	return copyFile(f), nil
}

// ============================================================================
// Health & lifecycle
// ============================================================================

// Healthcheck reports whether the store is open.
func (s *Store) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return &metadata.StoreError{
			Code:    metadata.ErrTransient,
			Message: "store is closed",
		}
	}
	return nil
}

// Close marks the store closed. Data is discarded with the process.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ============================================================================
// Internal helpers (callers hold the lock)
// ============================================================================

func (s *Store) directoryByID(ownerID string, id uuid.UUID) (*metadata.Directory, error) {
	dir, ok := s.dirsByID[id]
	if !ok || dir.OwnerID != ownerID {
		return nil, errDirNotFound("")
	}
	return dir, nil
}

func (s *Store) fileByID(ownerID string, id uuid.UUID) (*metadata.File, error) {
	f, ok := s.filesByID[id]
	if !ok || f.OwnerID != ownerID {
		return nil, errFileNotFoundAt("")
	}
	return f, nil
}

func applyDefaults(dir *metadata.Directory, defaults *metadata.DirectoryDefaults) {
	if defaults.Permissions != "" {
		dir.DefaultPermissions = defaults.Permissions
	}
	if defaults.Retention != "" {
		dir.DefaultRetention = defaults.Retention
	}
}

func copyOwner(o *metadata.Owner) *metadata.Owner {
	c := *o
	return &c
}

func copyDirectory(d *metadata.Directory) *metadata.Directory {
	c := *d
	if d.ParentID != nil {
		pid := *d.ParentID
		c.ParentID = &pid
	}
	return &c
}

func copyFile(f *metadata.File) *metadata.File {
	c := *f
	if f.SizeBytes != nil {
		size := *f.SizeBytes
		c.SizeBytes = &size
	}
	if f.ExpiresAt != nil {
		exp := *f.ExpiresAt
		c.ExpiresAt = &exp
	}
	return &c
}

func errDirNotFound(path string) error {
	return &metadata.StoreError{
		Code:    metadata.ErrNotFound,
		Message: "directory not found",
		Path:    path,
	}
}

func errFileNotFoundAt(path string) error {
	return &metadata.StoreError{
		Code:    metadata.ErrNotFound,
		Message: "file not found",
		Path:    path,
	}
}

func errPathTakenByDir(path string) error {
	return &metadata.StoreError{
		Code:    metadata.ErrConflict,
		Message: "a directory already occupies this path",
		Path:    path,
	}
}

func errPathTakenByFile(path string) error {
	return &metadata.StoreError{
		Code:    metadata.ErrConflict,
		Message: "a file already occupies this path",
		Path:    path,
	}
}
