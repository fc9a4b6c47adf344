package metadata

import (
	"fmt"
	"strings"
)

// RootPath is the materialized path of every owner's root directory.
const RootPath = "/"

const (
	// MaxFilenameLen is the longest accepted path segment, in bytes.
	MaxFilenameLen = 255

	// MaxPathLen is the longest accepted full path, in bytes.
	MaxPathLen = 4096
)

// NormalizePath canonicalizes a client-supplied path.
//
// The result always starts with "/", never ends with "/" (except the root
// itself), and contains no empty, "." or ".." segments. Malformed input
// returns a StoreError with ErrValidation.
func NormalizePath(p string) (string, error) {
	if p == "" || p == RootPath {
		return RootPath, nil
	}
	if len(p) > MaxPathLen {
		return "", &StoreError{
			Code:    ErrValidation,
			Message: fmt.Sprintf("path exceeds %d bytes", MaxPathLen),
		}
	}

	segments := strings.Split(strings.Trim(p, "/"), "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "":
			continue
		case ".", "..":
			return "", &StoreError{
				Code:    ErrValidation,
				Message: "path may not contain relative segments",
				Path:    p,
			}
		}
		if len(seg) > MaxFilenameLen {
			return "", &StoreError{
				Code:    ErrValidation,
				Message: fmt.Sprintf("path segment exceeds %d bytes", MaxFilenameLen),
				Path:    p,
			}
		}
		out = append(out, seg)
	}
	if len(out) == 0 {
		return RootPath, nil
	}

	return "/" + strings.Join(out, "/"), nil
}

// SplitPath splits a normalized path into its parent directory path and the
// final segment. SplitPath("/docs/readme.txt") returns ("/docs",
// "readme.txt"); a single-segment path returns the root as parent.
func SplitPath(p string) (dir, name string) {
	idx := strings.LastIndexByte(p, '/')
	if idx <= 0 {
		return RootPath, strings.TrimPrefix(p, "/")
	}
	return p[:idx], p[idx+1:]
}

// JoinPath appends a segment to a directory path.
func JoinPath(dir, name string) string {
	if dir == RootPath {
		return "/" + name
	}
	return dir + "/" + name
}

// PathPrefixes returns every ancestor prefix of a normalized path, shortest
// first, excluding the root and including the path itself.
//
// PathPrefixes("/a/b/c") returns ["/a", "/a/b", "/a/b/c"]; the root returns
// nil.
func PathPrefixes(p string) []string {
	if p == RootPath {
		return nil
	}
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	prefixes := make([]string, 0, len(segments))
	current := ""
	for _, seg := range segments {
		current += "/" + seg
		prefixes = append(prefixes, current)
	}
	return prefixes
}

// IsPathDescendant reports whether candidate lies strictly inside the subtree
// rooted at ancestor. The comparison is prefix-exact: "/documents" is not a
// descendant of "/doc".
func IsPathDescendant(ancestor, candidate string) bool {
	if ancestor == RootPath {
		return candidate != RootPath
	}
	return strings.HasPrefix(candidate, ancestor+"/")
}

// ReplacePathPrefix rewrites a path known to live under oldPrefix so that it
// lives under newPrefix instead. The caller must have established the prefix
// relationship first.
func ReplacePathPrefix(p, oldPrefix, newPrefix string) string {
	if p == oldPrefix {
		return newPrefix
	}
	return newPrefix + strings.TrimPrefix(p, oldPrefix)
}

// ValidateFilename rejects empty, oversized, or separator-bearing filenames.
func ValidateFilename(name string) error {
	if name == "" {
		return &StoreError{
			Code:    ErrValidation,
			Message: "filename must not be empty",
		}
	}
	if len(name) > MaxFilenameLen {
		return &StoreError{
			Code:    ErrValidation,
			Message: fmt.Sprintf("filename exceeds %d bytes", MaxFilenameLen),
			Path:    name,
		}
	}
	if strings.ContainsAny(name, "/\x00") {
		return &StoreError{
			Code:    ErrValidation,
			Message: "filename may not contain '/' or NUL",
			Path:    name,
		}
	}
	return nil
}

// ValidateOwnerID rejects owner ids that cannot be embedded in object keys.
func ValidateOwnerID(ownerID string) error {
	if ownerID == "" {
		return &StoreError{
			Code:    ErrValidation,
			Message: "owner id must not be empty",
		}
	}
	if strings.ContainsAny(ownerID, "/:\x00") {
		return &StoreError{
			Code:    ErrValidation,
			Message: "owner id may not contain '/', ':' or NUL",
		}
	}
	return nil
}
