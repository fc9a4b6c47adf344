package badger

import (
	"github.com/google/uuid"
)

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so we use prefixed keys to organize different
// data types into logical namespaces. This design:
//   - Prevents key collisions between different data types
//   - Enables efficient range scans (the materialized-path prefix queries)
//   - Makes the database structure self-documenting
//
// Owner ids may not contain ':' or '/' (enforced at registration) and every
// path starts with '/', so "<prefix><owner>:<path>" keys are unambiguous.
//
// Key Namespace Prefixes:
//
// Data Type             Prefix   Key Format                     Value Type
// ==========================================================================
// Owners                "o:"     o:<ownerID>                    Owner (JSON)
// Directories by path   "d:"     d:<ownerID>:<fullPath>         Directory (JSON)
// Directory locations   "di:"    di:<dirUUID>                   ownerID:fullPath (bytes)
// Files                 "f:"     f:<fileUUID>                   File (JSON)
// Files by path         "fp:"    fp:<ownerID>:<fullPath>        fileUUID (16 bytes)
// Files per directory   "fd:"    fd:<dirUUID>:<filename>        fileUUID (16 bytes)
// Schema metadata       "meta:"  meta:schema_version            version string
//
// Rationale:
//
// 1. Directories by path (d:)
//    - The primary directory record, keyed by (owner, materialized path)
//    - Doubles as the sorted-by-path index: BadgerDB iterates keys in
//      lexicographic order, so "d:<owner>:<path>/" prefix scans enumerate a
//      subtree in path order. The rename cascade and recursive listing are
//      built on this.
//
// 2. Directory locations (di:)
//    - Reverse mapping from directory UUID to its current (owner, path)
//    - Needed because callers address directories by id while the primary
//      record is path-keyed; updated as part of every rename cascade.
//
// 3. Files by path (fp:) and files per directory (fd:)
//    - fp: powers the bulk prefix rewrite during renames and path lookups
//    - fd: powers per-directory listing and the bulk delete when a directory
//      is removed; keying by filename also enforces name uniqueness inside
//      one directory.

const (
	// prefixOwner is the key prefix for owner records
	prefixOwner = "o:"

	// prefixDirPath is the key prefix for directory records keyed by path
	prefixDirPath = "d:"

	// prefixDirID is the key prefix for directory id -> location mappings
	prefixDirID = "di:"

	// prefixFile is the key prefix for file records keyed by UUID
	prefixFile = "f:"

	// prefixFilePath is the key prefix for file path index entries
	prefixFilePath = "fp:"

	// prefixDirFiles is the key prefix for per-directory file entries
	prefixDirFiles = "fd:"

	// prefixMeta is the key prefix for schema/bookkeeping singletons
	prefixMeta = "meta:"
)

// keyOwner generates the key for an owner record.
//
// Format: "o:<ownerID>"
func keyOwner(ownerID string) []byte {
	return []byte(prefixOwner + ownerID)
}

// keyDirPath generates the key for a directory record.
//
// Format: "d:<ownerID>:<fullPath>"
// Example: "d:alice:/projects/api"
func keyDirPath(ownerID, fullPath string) []byte {
	return []byte(prefixDirPath + ownerID + ":" + fullPath)
}

// keyDirSubtreePrefix generates the scan prefix covering every strict
// descendant of a directory path.
//
// Format: "d:<ownerID>:<fullPath>/" (root: "d:<ownerID>:/")
func keyDirSubtreePrefix(ownerID, fullPath string) []byte {
	if fullPath == "/" {
		return []byte(prefixDirPath + ownerID + ":/")
	}
	return []byte(prefixDirPath + ownerID + ":" + fullPath + "/")
}

// keyDirID generates the key for a directory id -> location mapping.
//
// Format: "di:<uuid>"
func keyDirID(id uuid.UUID) []byte {
	return []byte(prefixDirID + id.String())
}

// keyFile generates the key for a file record.
//
// Format: "f:<uuid>"
func keyFile(id uuid.UUID) []byte {
	return []byte(prefixFile + id.String())
}

// keyFilePath generates the key for a file path index entry.
//
// Format: "fp:<ownerID>:<fullPath>"
func keyFilePath(ownerID, fullPath string) []byte {
	return []byte(prefixFilePath + ownerID + ":" + fullPath)
}

// keyFileSubtreePrefix generates the scan prefix covering every file whose
// path lies under a directory path.
//
// Format: "fp:<ownerID>:<fullPath>/"
func keyFileSubtreePrefix(ownerID, fullPath string) []byte {
	if fullPath == "/" {
		return []byte(prefixFilePath + ownerID + ":/")
	}
	return []byte(prefixFilePath + ownerID + ":" + fullPath + "/")
}

// keyDirFile generates the key for a per-directory file entry.
//
// Format: "fd:<dirUUID>:<filename>"
func keyDirFile(dirID uuid.UUID, filename string) []byte {
	return []byte(prefixDirFiles + dirID.String() + ":" + filename)
}

// keyDirFilesPrefix generates the scan prefix for all files directly inside
// a directory.
//
// Format: "fd:<dirUUID>:"
func keyDirFilesPrefix(dirID uuid.UUID) []byte {
	return []byte(prefixDirFiles + dirID.String() + ":")
}

// keySchemaVersion generates the singleton schema version key.
func keySchemaVersion() []byte {
	return []byte(prefixMeta + "schema_version")
}
