package badger

import (
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/stashd/stashd/pkg/metadata"
)

// ============================================================================
// File operations
// ============================================================================

// PutFile inserts a new file row together with its path and directory index
// entries.
//
// Returns:
//   - error: ErrConflict when a file or directory already occupies
//     file.FullPath, ErrNotFound when file.DirectoryID does not resolve for
//     the owner, ErrValidation for malformed filenames
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

	return s.update(func(txn *badger.Txn) error {
		dir, err := getDirectoryByID(txn, file.OwnerID, file.DirectoryID)
		if err != nil {
			return err
		}
		expected := metadata.JoinPath(dir.FullPath, file.Filename)
		if file.FullPath != expected {
			return &metadata.StoreError{
				Code:    metadata.ErrValidation,
				Message: "file path does not match its directory and filename",
				Path:    file.FullPath,
			}
		}
		if err := ensurePathFree(txn, file.OwnerID, file.FullPath); err != nil {
			return err
		}
		return putFile(txn, file)
	})
}

// GetFile returns the file by id, owner-scoped.
func (s *Store) GetFile(ctx context.Context, ownerID string, id uuid.UUID) (*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var file *metadata.File
	err := s.view(func(txn *badger.Txn) error {
		var err error
		file, err = getFileByID(txn, ownerID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return file, nil
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

	var file *metadata.File
	err = s.view(func(txn *badger.Txn) error {
		data, err := getValue(txn, keyFilePath(ownerID, path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errFileNotFound(path)
		}
		if err != nil {
			return err
		}
		id, err := decodeFileID(data)
		if err != nil {
			return err
		}
		record, err := getValue(txn, keyFile(id))
		if err != nil {
			return err
		}
		file, err = decodeFile(record)
		return err
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// ListFilesByDirectory returns the files directly inside the directory,
// ordered by filename.
//
// The per-directory index is keyed by filename, so BadgerDB's key order
// yields the sort for free.
func (s *Store) ListFilesByDirectory(ctx context.Context, ownerID string, directoryID uuid.UUID) ([]*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var files []*metadata.File
	err := s.view(func(txn *badger.Txn) error {
		dir, err := getDirectoryByID(txn, ownerID, directoryID)
		if err != nil {
			return err
		}

		var ids []uuid.UUID
		if err := scanFileIDs(txn, keyDirFilesPrefix(dir.ID), func(id uuid.UUID) {
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
			files = append(files, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// UpdateFile applies mutate to the current row inside a transaction and
// persists the result.
//
// The id and, once assigned, the object key are immutable; a mutation that
// tries to change either fails with ErrInvalidOperation. When the mutation
// moves the file (new FullPath, DirectoryID or Filename) the path and
// directory indexes move with it, the target directory is re-resolved, and a
// collision at the new path fails with ErrConflict.
func (s *Store) UpdateFile(ctx context.Context, ownerID string, id uuid.UUID, mutate func(*metadata.File) error) (*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var updated *metadata.File
	err := s.update(func(txn *badger.Txn) error {
		current, err := getFileByID(txn, ownerID, id)
		if err != nil {
			return err
		}

		next := *current
		if err := mutate(&next); err != nil {
			return err
		}
		if next.ID != current.ID || next.OwnerID != current.OwnerID {
			return &metadata.StoreError{
				Code:    metadata.ErrInvalidOperation,
				Message: "file identity cannot be changed",
				Path:    current.FullPath,
			}
		}
		if current.ObjectKey != "" && next.ObjectKey != current.ObjectKey {
			return &metadata.StoreError{
				Code:    metadata.ErrInvalidOperation,
				Message: "object key is immutable once assigned",
				Path:    current.FullPath,
			}
		}
		if err := metadata.ValidateFilename(next.Filename); err != nil {
			return err
		}

		moved := next.FullPath != current.FullPath ||
			next.DirectoryID != current.DirectoryID ||
			next.Filename != current.Filename
		if moved {
			dir, err := getDirectoryByID(txn, ownerID, next.DirectoryID)
			if err != nil {
				return err
			}
			expected := metadata.JoinPath(dir.FullPath, next.Filename)
			if next.FullPath != expected {
				return &metadata.StoreError{
					Code:    metadata.ErrValidation,
					Message: "file path does not match its directory and filename",
					Path:    next.FullPath,
				}
			}
			if next.FullPath != current.FullPath {
				if err := ensurePathFree(txn, ownerID, next.FullPath); err != nil {
					return err
				}
			}
			if err := txn.Delete(keyFilePath(ownerID, current.FullPath)); err != nil {
				return err
			}
			if err := txn.Delete(keyDirFile(current.DirectoryID, current.Filename)); err != nil {
				return err
			}
		}

		next.UpdatedAt = time.Now().UTC()
		if err := putFile(txn, &next); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteFile removes the file row and its index entries, returning the
// deleted row so the caller can run best-effort object cleanup afterwards.
func (s *Store) DeleteFile(ctx context.Context, ownerID string, id uuid.UUID) (*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var deleted *metadata.File
	err := s.update(func(txn *badger.Txn) error {
		file, err := getFileByID(txn, ownerID, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(keyFile(file.ID)); err != nil {
			return err
		}
		if err := txn.Delete(keyFilePath(ownerID, file.FullPath)); err != nil {
			return err
		}
		if err := txn.Delete(keyDirFile(file.DirectoryID, file.Filename)); err != nil {
			return err
		}
		deleted = file
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// ============================================================================
// Transaction helpers
// ============================================================================

// getFileByID loads a file record and enforces owner scoping. Another
// owner's id behaves exactly like a missing id.
func getFileByID(txn *badger.Txn, ownerID string, id uuid.UUID) (*metadata.File, error) {
	data, err := getValue(txn, keyFile(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errFileNotFound("")
	}
	if err != nil {
		return nil, err
	}
	file, err := decodeFile(data)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != ownerID {
		return nil, errFileNotFound("")
	}
	return file, nil
}

// putFile writes the file record and both index entries.
func putFile(txn *badger.Txn, file *metadata.File) error {
	encoded, err := encodeJSON(file)
	if err != nil {
		return err
	}
	if err := txn.Set(keyFile(file.ID), encoded); err != nil {
		return err
	}
	if err := txn.Set(keyFilePath(file.OwnerID, file.FullPath), encodeFileID(file.ID)); err != nil {
		return err
	}
	return txn.Set(keyDirFile(file.DirectoryID, file.Filename), encodeFileID(file.ID))
}
