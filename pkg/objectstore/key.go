package objectstore

import "strings"

// KeyParts are the four segments of an object key.
//
// Keys follow the fixed scheme
//
//	<environment>/<retentionPolicy>/<ownerID>/<fileID>
//
// The segments are deliberately ordered so that backend lifecycle rules can
// match on the "<environment>/<retentionPolicy>/" prefix and expire whole
// retention classes without consulting the metadata store. No segment may be
// empty or contain '/'.
type KeyParts struct {
	Environment string
	Retention   string
	OwnerID     string
	FileID      string
}

// MakeKey builds the object key for the given parts.
func MakeKey(parts KeyParts) string {
	return parts.Environment + "/" + parts.Retention + "/" + parts.OwnerID + "/" + parts.FileID
}

// ParseKey splits an object key back into its parts.
//
// ParseKey is the exact inverse of MakeKey: for every valid KeyParts value p,
// ParseKey(MakeKey(p)) returns p. Keys with anything other than four
// non-empty segments return nil.
func ParseKey(key string) *KeyParts {
	segments := strings.Split(key, "/")
	if len(segments) != 4 {
		return nil
	}
	for _, s := range segments {
		if s == "" {
			return nil
		}
	}
	return &KeyParts{
		Environment: segments[0],
		Retention:   segments[1],
		OwnerID:     segments[2],
		FileID:      segments[3],
	}
}
