package metadata

import (
	"time"

	"github.com/google/uuid"
)

// Permission controls who may read a file or, for directories, the default
// applied to files created inside them with Permission "inherit".
type Permission string

const (
	// PermissionPublic allows read access to any requester holding the file id.
	PermissionPublic Permission = "public"

	// PermissionPrivate restricts read access to the owner.
	PermissionPrivate Permission = "private"

	// PermissionInherit resolves to the containing directory's
	// DefaultPermissions snapshot at file creation time. It is never stored
	// on a file row after resolution.
	PermissionInherit Permission = "inherit"
)

// ParsePermission parses a permission string.
//
// Returns the parsed permission and true, or ("", false) for unknown values.
func ParsePermission(s string) (Permission, bool) {
	switch Permission(s) {
	case PermissionPublic, PermissionPrivate, PermissionInherit:
		return Permission(s), true
	default:
		return "", false
	}
}

// RetentionPolicy is a named duration class controlling how long an object
// lives. The policy is encoded into the object key, where the storage
// backend's own lifecycle rules enforce it; the application never sweeps
// expired objects itself.
type RetentionPolicy string

const (
	RetentionInfinite RetentionPolicy = "infinite"
	Retention1Day     RetentionPolicy = "1d"
	Retention2Days    RetentionPolicy = "2d"
	Retention3Days    RetentionPolicy = "3d"
	Retention7Days    RetentionPolicy = "7d"
	Retention14Days   RetentionPolicy = "14d"
	Retention30Days   RetentionPolicy = "30d"
	Retention90Days   RetentionPolicy = "90d"
	Retention180Days  RetentionPolicy = "180d"
)

// retentionDurations maps each finite policy to its duration.
var retentionDurations = map[RetentionPolicy]time.Duration{
	Retention1Day:    24 * time.Hour,
	Retention2Days:   2 * 24 * time.Hour,
	Retention3Days:   3 * 24 * time.Hour,
	Retention7Days:   7 * 24 * time.Hour,
	Retention14Days:  14 * 24 * time.Hour,
	Retention30Days:  30 * 24 * time.Hour,
	Retention90Days:  90 * 24 * time.Hour,
	Retention180Days: 180 * 24 * time.Hour,
}

// ParseRetentionPolicy parses a retention policy string.
//
// Malformed input returns ("", false); the service layer rejects malformed
// policies with a validation error rather than silently defaulting them to
// infinite.
func ParseRetentionPolicy(s string) (RetentionPolicy, bool) {
	p := RetentionPolicy(s)
	if p == RetentionInfinite {
		return p, true
	}
	if _, ok := retentionDurations[p]; ok {
		return p, true
	}
	return "", false
}

// Duration returns the policy's duration and true, or (0, false) for
// RetentionInfinite.
func (p RetentionPolicy) Duration() (time.Duration, bool) {
	d, ok := retentionDurations[p]
	return d, ok
}

// ExpiresAt computes the expiry timestamp for a file created at now.
//
// Returns nil for RetentionInfinite. The result is computed exactly once at
// file creation and persisted; it is never re-derived later.
func (p RetentionPolicy) ExpiresAt(now time.Time) *time.Time {
	d, ok := retentionDurations[p]
	if !ok {
		return nil
	}
	t := now.Add(d)
	return &t
}

// FileStatus tracks a file through the reserve/verify state machine.
//
// Transitions: StatusReserved -> StatusValidated | StatusFailed. Validated
// and failed are terminal; a failed file is never retried automatically and
// the client must create a new file record.
type FileStatus string

const (
	// StatusReserved means a database row and an upload capability exist but
	// the object's presence in storage is unconfirmed.
	StatusReserved FileStatus = "reserved"

	// StatusValidated means the object store confirmed the object exists;
	// size (and possibly content type) were backfilled from store metadata.
	StatusValidated FileStatus = "validated"

	// StatusFailed means verification found no object behind the key.
	StatusFailed FileStatus = "failed"
)

// Owner is a registered principal. Owner ids arrive from the authentication
// collaborator and must be separator-free so they can be embedded in object
// keys.
type Owner struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Directory is a node in the materialized-path tree.
//
// The tree keeps both a denormalized FullPath string (for prefix queries) and
// a normalized ParentID edge. FullPath is unique per owner, always equals
// parent.FullPath + "/" + last segment for non-root nodes, and every ancestor
// segment exists as its own Directory row (no implicit directories).
type Directory struct {
	ID      uuid.UUID `json:"id"`
	OwnerID string    `json:"owner_id"`

	// FullPath is the absolute, slash-separated, normalized path. Root is "/".
	FullPath string `json:"full_path"`

	// ParentID is nil only for the root directory.
	ParentID *uuid.UUID `json:"parent_id,omitempty"`

	// DefaultPermissions is applied to files created inside this directory
	// with Permission "inherit".
	DefaultPermissions Permission `json:"default_permissions"`

	// DefaultRetention is the retention policy suggested for files created
	// inside this directory.
	DefaultRetention RetentionPolicy `json:"default_retention"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsRoot reports whether the directory is the owner's root node.
func (d *Directory) IsRoot() bool {
	return d.FullPath == RootPath
}

// File is a stored file record.
//
// FullPath is derived (directory path + filename) and kept in sync with
// directory moves and renames by the store's rename cascade. ObjectKey, once
// assigned, is immutable: storage location is keyed by the file id and never
// changes when the file moves logically.
type File struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     string    `json:"owner_id"`
	DirectoryID uuid.UUID `json:"directory_id"`
	Filename    string    `json:"filename"`
	FullPath    string    `json:"full_path"`

	// MIMEType is the client-declared content type. Verification backfills it
	// from store metadata only when it was never set.
	MIMEType string `json:"mime_type,omitempty"`

	// SizeBytes is nil until verification confirms the object and backfills
	// the authoritative size from store metadata.
	SizeBytes *int64 `json:"size_bytes,omitempty"`

	Permissions Permission      `json:"permissions"`
	Status      FileStatus      `json:"status"`
	Retention   RetentionPolicy `json:"retention"`

	// ExpiresAt is nil for RetentionInfinite; otherwise creation time plus
	// the policy duration, computed once at creation.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// ObjectKey is empty until the upload URL is issued, then immutable.
	ObjectKey string `json:"object_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the file's expiry, if any, has passed.
func (f *File) Expired(now time.Time) bool {
	return f.ExpiresAt != nil && now.After(*f.ExpiresAt)
}

// DirectoryDefaults carries the optional leaf defaults applied when a path is
// materialized through EnsurePath.
type DirectoryDefaults struct {
	Permissions Permission
	Retention   RetentionPolicy
}

// DirectoryFilter selects directories for listing.
//
// With Recursive false the filter matches the exact Path (or the direct
// children of ParentID). With Recursive true it matches every directory whose
// path starts with Path + "/", plus Path itself.
type DirectoryFilter struct {
	ParentID  *uuid.UUID
	Path      string
	Recursive bool
}
