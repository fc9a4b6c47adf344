package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stashd/stashd/internal/logger"
	"github.com/stashd/stashd/pkg/metadata"
	"github.com/stashd/stashd/pkg/objectstore"
)

// CreateFileParams describes a file reservation request.
type CreateFileParams struct {
	// DirectoryPath is the directory the file lands in. Missing ancestors are
	// materialized.
	DirectoryPath string

	// Filename is the final path segment.
	Filename string

	// MIMEType is the client-declared content type. Optional; verification
	// backfills it from the backend when left empty.
	MIMEType string

	// Permissions is "public", "private" or "inherit". Empty means private.
	Permissions string

	// Retention names a retention policy. Empty adopts the directory's
	// default. Malformed values are rejected, never defaulted.
	Retention string

	// SizeHint is the client-declared size in bytes. Advisory only;
	// verification overwrites it with the backend's answer.
	SizeHint *int64
}

// CreateFile reserves a file and returns the upload ticket for it.
//
// Sequence:
//  1. Resolve the owner and materialize the directory path.
//  2. Snapshot the effective permission ("inherit" resolves against the
//     directory's defaults now, not at read time).
//  3. Compute ExpiresAt exactly once from the retention policy.
//  4. Persist the row as reserved, then have the gateway sign the upload URL
//     and persist the object key.
//
// If signing fails the reserved row is rolled back, so a retryable error
// never leaves a row without an upload capability. The returned file is in
// status reserved; nothing about the object's existence is known until
// MarkUploaded.
func (r *Registry) CreateFile(ctx context.Context, ownerID string, params CreateFileParams) (*metadata.File, *objectstore.UploadTicket, error) {
	if _, err := r.store.GetOwner(ctx, ownerID); err != nil {
		return nil, nil, err
	}
	if err := metadata.ValidateFilename(params.Filename); err != nil {
		return nil, nil, err
	}

	permission := metadata.PermissionPrivate
	if params.Permissions != "" {
		parsed, ok := metadata.ParsePermission(params.Permissions)
		if !ok {
			return nil, nil, &metadata.StoreError{
				Code:    metadata.ErrValidation,
				Message: fmt.Sprintf("unknown permission %q", params.Permissions),
			}
		}
		permission = parsed
	}

	dir, err := r.EnsurePath(ctx, ownerID, params.DirectoryPath, nil)
	if err != nil {
		return nil, nil, err
	}

	if permission == metadata.PermissionInherit {
		permission = dir.DefaultPermissions
		if permission == metadata.PermissionInherit || permission == "" {
			permission = metadata.PermissionPrivate
		}
	}

	retention := dir.DefaultRetention
	if params.Retention != "" {
		parsed, ok := metadata.ParseRetentionPolicy(params.Retention)
		if !ok {
			return nil, nil, &metadata.StoreError{
				Code:    metadata.ErrValidation,
				Message: fmt.Sprintf("unknown retention policy %q", params.Retention),
			}
		}
		retention = parsed
	}
	if retention == "" {
		retention = metadata.RetentionInfinite
	}

	now := time.Now().UTC()
	file := &metadata.File{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		DirectoryID: dir.ID,
		Filename:    params.Filename,
		FullPath:    metadata.JoinPath(dir.FullPath, params.Filename),
		MIMEType:    params.MIMEType,
		SizeBytes:   params.SizeHint,
		Permissions: permission,
		Status:      metadata.StatusReserved,
		Retention:   retention,
		ExpiresAt:   retention.ExpiresAt(now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.PutFile(ctx, file); err != nil {
		return nil, nil, err
	}

	key := objectstore.MakeKey(objectstore.KeyParts{
		Environment: r.environment,
		Retention:   string(retention),
		OwnerID:     ownerID,
		FileID:      file.ID.String(),
	})
	ticket, err := r.gateway.IssueUploadURL(ctx, key, file.MIMEType, r.urlTTL)
	if err != nil {
		// Roll the reservation back: a row without an upload capability is
		// useless and would squat on the path forever.
		if _, delErr := r.store.DeleteFile(ctx, ownerID, file.ID); delErr != nil {
			logger.Error("failed to roll back reservation %s after signing error: %v", file.ID, delErr)
		}
		return nil, nil, &metadata.StoreError{
			Code:    metadata.ErrTransient,
			Message: fmt.Sprintf("failed to issue upload URL: %v", err),
			Path:    file.FullPath,
		}
	}

	persisted, err := r.store.UpdateFile(ctx, ownerID, file.ID, func(f *metadata.File) error {
		f.ObjectKey = key
		return nil
	})
	if err != nil {
		// Same rollback as the signing branch: a row that never recorded its
		// key cannot be verified and would squat on the path forever.
		if _, delErr := r.store.DeleteFile(ctx, ownerID, file.ID); delErr != nil {
			logger.Error("failed to roll back reservation %s after key persist error: %v", file.ID, delErr)
		}
		return nil, nil, err
	}

	logger.Info("reserved file %s at %s (owner %s, retention %s)", file.ID, file.FullPath, ownerID, retention)
	return persisted, ticket, nil
}

// MarkUploaded verifies the client's claimed upload against the backend and
// settles the file's state.
//
// The backend is authoritative: a present object moves the file to
// validated, its size is backfilled unconditionally and its content type
// only when the client never declared one. A definitely-absent object moves
// the file to failed (persisted) before the mismatch error returns. When the
// backend cannot be reached the file stays reserved and the caller may
// retry.
//
// Verifying an already-validated file is a no-op returning the current row;
// a failed file cannot be retried, the client must reserve a new one.
func (r *Registry) MarkUploaded(ctx context.Context, ownerID string, id uuid.UUID) (*metadata.File, error) {
	file, err := r.store.GetFile(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	switch file.Status {
	case metadata.StatusValidated:
		return file, nil
	case metadata.StatusFailed:
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidOperation,
			Message: "upload verification already failed for this file",
			Path:    file.FullPath,
		}
	}
	if file.ObjectKey == "" {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrInvalidOperation,
			Message: "file has no upload key",
			Path:    file.FullPath,
		}
	}

	info, err := r.gateway.Inspect(ctx, file.ObjectKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			// Definite absence is a terminal verdict and is persisted before
			// the error surfaces. Any size hint from the reservation is
			// cleared: no object means no confirmed size.
			if _, updErr := r.store.UpdateFile(ctx, ownerID, id, func(f *metadata.File) error {
				f.Status = metadata.StatusFailed
				f.SizeBytes = nil
				return nil
			}); updErr != nil {
				return nil, updErr
			}
			return nil, &metadata.StoreError{
				Code:    metadata.ErrStorageMismatch,
				Message: "no object found behind the upload key",
				Path:    file.FullPath,
			}
		}
		// Could not check: leave the file reserved, let the caller retry.
		return nil, &metadata.StoreError{
			Code:    metadata.ErrTransient,
			Message: fmt.Sprintf("failed to verify upload: %v", err),
			Path:    file.FullPath,
		}
	}

	validated, err := r.store.UpdateFile(ctx, ownerID, id, func(f *metadata.File) error {
		size := info.SizeBytes
		f.Status = metadata.StatusValidated
		f.SizeBytes = &size
		if f.MIMEType == "" && info.ContentType != "" {
			f.MIMEType = info.ContentType
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("validated file %s (%d bytes, owner %s)", id, info.SizeBytes, ownerID)
	return validated, nil
}

// GetFile returns the file by id, owner-scoped.
func (r *Registry) GetFile(ctx context.Context, ownerID string, id uuid.UUID) (*metadata.File, error) {
	return r.store.GetFile(ctx, ownerID, id)
}

// GetFileByPath returns the file at path.
func (r *Registry) GetFileByPath(ctx context.Context, ownerID, path string) (*metadata.File, error) {
	return r.store.GetFileByPath(ctx, ownerID, path)
}

// UpdateFileParams describes a metadata update. Nil fields stay untouched.
type UpdateFileParams struct {
	// NewDirectoryPath moves the file; missing ancestors are materialized.
	NewDirectoryPath *string

	// NewFilename renames the file.
	NewFilename *string

	// Permissions switches between "public" and "private". "inherit" is
	// resolved at creation and cannot be reintroduced later.
	Permissions *string
}

// UpdateFile moves or renames a file and adjusts its permission.
//
// The object key, retention, expiry and lifecycle status never change here:
// storage location is keyed by the file id, so a logical move is a pure
// metadata operation.
func (r *Registry) UpdateFile(ctx context.Context, ownerID string, id uuid.UUID, params UpdateFileParams) (*metadata.File, error) {
	var permission metadata.Permission
	if params.Permissions != nil {
		parsed, ok := metadata.ParsePermission(*params.Permissions)
		if !ok || parsed == metadata.PermissionInherit {
			return nil, &metadata.StoreError{
				Code:    metadata.ErrValidation,
				Message: fmt.Sprintf("permission must be public or private, got %q", *params.Permissions),
			}
		}
		permission = parsed
	}

	var targetDir *metadata.Directory
	if params.NewDirectoryPath != nil {
		dir, err := r.EnsurePath(ctx, ownerID, *params.NewDirectoryPath, nil)
		if err != nil {
			return nil, err
		}
		targetDir = dir
	}

	return r.store.UpdateFile(ctx, ownerID, id, func(f *metadata.File) error {
		if params.NewFilename != nil {
			f.Filename = *params.NewFilename
		}
		if targetDir != nil {
			f.DirectoryID = targetDir.ID
		}
		if params.NewFilename != nil || targetDir != nil {
			dirPath, _ := metadata.SplitPath(f.FullPath)
			if targetDir != nil {
				dirPath = targetDir.FullPath
			}
			f.FullPath = metadata.JoinPath(dirPath, f.Filename)
		}
		if permission != "" {
			f.Permissions = permission
		}
		return nil
	})
}

// DeleteFile removes the file row, then schedules best-effort removal of the
// object behind it.
//
// Row first, object second: if the object removal fails the worst case is an
// orphaned object, which retention rules eventually reclaim. The reverse
// order could leave a row pointing at nothing.
func (r *Registry) DeleteFile(ctx context.Context, ownerID string, id uuid.UUID) error {
	deleted, err := r.store.DeleteFile(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if deleted.ObjectKey != "" {
		r.cleanup.enqueue([]string{deleted.ObjectKey})
	}
	logger.Info("deleted file %s at %s (owner %s)", id, deleted.FullPath, ownerID)
	return nil
}

// IssueDownload resolves read access for requesterID on the owner's file and
// returns a presigned download URL.
//
// Every denial surfaces as not-found, so a requester without access cannot
// learn whether the file exists. requesterID may be empty for anonymous
// requests; those can only reach public files.
func (r *Registry) IssueDownload(ctx context.Context, requesterID, ownerID string, id uuid.UUID) (string, *metadata.File, error) {
	file, err := r.store.GetFile(ctx, ownerID, id)
	if err != nil {
		return "", nil, err
	}

	decision := ResolveAccess(file, requesterID, time.Now().UTC())
	if !decision.Allowed {
		logger.Debug("denied download of %s to %q: %s", id, requesterID, decision.Reason)
		return "", nil, &metadata.StoreError{
			Code:    metadata.ErrNotFound,
			Message: "file not found",
		}
	}

	url, err := r.gateway.IssueDownloadURL(ctx, file.ObjectKey, r.urlTTL)
	if err != nil {
		return "", nil, &metadata.StoreError{
			Code:    metadata.ErrTransient,
			Message: fmt.Sprintf("failed to issue download URL: %v", err),
			Path:    file.FullPath,
		}
	}
	return url, file, nil
}
